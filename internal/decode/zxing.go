package decode

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// zxingFormats maps symbologies to gozxing formats and reader constructors.
// Readers keep per-decode state, so each Detect builds fresh ones.
var zxingFormats = map[Symbology]struct {
	format    gozxing.BarcodeFormat
	newReader func() gozxing.Reader
}{
	Code128: {gozxing.BarcodeFormat_CODE_128, oned.NewCode128Reader},
	Code39:  {gozxing.BarcodeFormat_CODE_39, oned.NewCode39Reader},
	Code93:  {gozxing.BarcodeFormat_CODE_93, oned.NewCode93Reader},
	ITF:     {gozxing.BarcodeFormat_ITF, oned.NewITFReader},
	EAN13:   {gozxing.BarcodeFormat_EAN_13, oned.NewEAN13Reader},
	EAN8:    {gozxing.BarcodeFormat_EAN_8, oned.NewEAN8Reader},
	UPCA:    {gozxing.BarcodeFormat_UPC_A, oned.NewUPCAReader},
	UPCE:    {gozxing.BarcodeFormat_UPC_E, oned.NewUPCEReader},
	Codabar: {gozxing.BarcodeFormat_CODABAR, oned.NewCodaBarReader},
	QRCode:  {gozxing.BarcodeFormat_QR_CODE, qrcode.NewQRCodeReader},
}

func symbologyOf(format gozxing.BarcodeFormat) Symbology {
	for s, f := range zxingFormats {
		if f.format == format {
			return s
		}
	}
	return ""
}

// ZXing decodes with gozxing readers over a hybrid binarizer with
// TRY_HARDER set.
type ZXing struct {
	desc  Descriptor
	hints map[gozxing.DecodeHintType]interface{}
}

// NewZXing builds the general-purpose software backend for syms.
func NewZXing(priority int, syms []Symbology) *ZXing {
	return &ZXing{
		desc:  Descriptor{Name: "zxing", Priority: priority, Symbologies: supported(syms)},
		hints: zxingHints(syms),
	}
}

func (z *ZXing) Descriptor() Descriptor { return z.desc }

func (z *ZXing) Detect(ctx context.Context, img image.Image) (*Result, error) {
	src := gozxing.NewLuminanceSourceFromImage(img)
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return nil, err
	}
	return readAll(ctx, bmp, z.desc.Symbologies, z.hints), nil
}

// LowLight is the last-resort backend for dim or skewed frames. It
// normalises contrast, halves the resolution so bars blur into solid runs,
// binarizes with a global histogram and retries rotated by 90 degrees.
type LowLight struct {
	desc     Descriptor
	hints    map[gozxing.DecodeHintType]interface{}
	contrast float64
}

// minHalfSampleWidth keeps small crops at full resolution.
const minHalfSampleWidth = 320

// NewLowLight builds the low-light backend for syms.
func NewLowLight(priority int, syms []Symbology) *LowLight {
	return &LowLight{
		desc:     Descriptor{Name: "zxing-lowlight", Priority: priority, Symbologies: supported(syms)},
		hints:    zxingHints(syms),
		contrast: 40,
	}
}

func (l *LowLight) Descriptor() Descriptor { return l.desc }

func (l *LowLight) Detect(ctx context.Context, img image.Image) (*Result, error) {
	prepared := imaging.AdjustContrast(imaging.Grayscale(img), l.contrast)
	if w := prepared.Bounds().Dx(); w >= minHalfSampleWidth {
		prepared = imaging.Resize(prepared, w/2, 0, imaging.Box)
	}

	for _, variant := range []image.Image{prepared, imaging.Rotate90(prepared)} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := gozxing.NewLuminanceSourceFromImage(variant)
		bmp, err := gozxing.NewBinaryBitmap(gozxing.NewGlobalHistgramBinarizer(src))
		if err != nil {
			return nil, err
		}
		if res := readAll(ctx, bmp, l.desc.Symbologies, l.hints); res != nil {
			return res, nil
		}
	}
	return nil, nil
}

func readAll(ctx context.Context, bmp *gozxing.BinaryBitmap, syms []Symbology, hints map[gozxing.DecodeHintType]interface{}) *Result {
	for _, s := range syms {
		if ctx.Err() != nil {
			return nil
		}
		res, err := zxingFormats[s].newReader().Decode(bmp, hints)
		if err != nil || res == nil {
			continue
		}
		sym := symbologyOf(res.GetBarcodeFormat())
		if sym == "" {
			sym = s
		}
		return &Result{Text: res.GetText(), Symbology: sym}
	}
	return nil
}

func zxingHints(syms []Symbology) map[gozxing.DecodeHintType]interface{} {
	formats := make([]gozxing.BarcodeFormat, 0, len(syms))
	for _, s := range supported(syms) {
		formats = append(formats, zxingFormats[s].format)
	}
	return map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER:       true,
		gozxing.DecodeHintType_POSSIBLE_FORMATS: formats,
	}
}

func supported(syms []Symbology) []Symbology {
	out := make([]Symbology, 0, len(syms))
	for _, s := range syms {
		if _, ok := zxingFormats[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
