// Package decodetest renders real barcodes for decoder tests.
package decodetest

import (
	"image"
	"image/color"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Render draws contents as a black-on-white barcode of roughly w x h
// pixels, including the writer's quiet zone.
func Render(t testing.TB, format gozxing.BarcodeFormat, contents string, w, h int) *image.Gray {
	t.Helper()

	var writer gozxing.Writer
	switch format {
	case gozxing.BarcodeFormat_CODE_128:
		writer = oned.NewCode128Writer()
	case gozxing.BarcodeFormat_EAN_13:
		writer = oned.NewEAN13Writer()
	case gozxing.BarcodeFormat_CODE_39:
		writer = oned.NewCode39Writer()
	case gozxing.BarcodeFormat_QR_CODE:
		writer = qrcode.NewQRCodeWriter()
	default:
		t.Fatalf("no writer for format %v", format)
	}

	matrix, err := writer.Encode(contents, format, w, h, nil)
	if err != nil {
		t.Fatalf("encode %q: %v", contents, err)
	}

	img := image.NewGray(image.Rect(0, 0, matrix.GetWidth(), matrix.GetHeight()))
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			c := color.Gray{Y: 255}
			if matrix.Get(x, y) {
				c = color.Gray{Y: 0}
			}
			img.SetGray(x, y, c)
		}
	}
	return img
}

// Place pastes img centered on a white canvas of w x h pixels.
func Place(img image.Image, w, h int) *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, w, h))
	for i := range canvas.Pix {
		canvas.Pix[i] = 255
	}
	b := img.Bounds()
	ox, oy := (w-b.Dx())/2, (h-b.Dy())/2
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			canvas.Set(ox+x-b.Min.X, oy+y-b.Min.Y, img.At(x, y))
		}
	}
	return canvas
}

// Blank returns a uniform white image.
func Blank(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}
