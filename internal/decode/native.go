package decode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// zbarExitNotFound is zbarimg's exit status when it finds no symbol.
const zbarExitNotFound = 4

// defaultNativeTimeout bounds one zbarimg run on a camera frame. Photo
// decodes are bounded by the caller's context only.
const defaultNativeTimeout = 2 * time.Second

// zbar symbology names: config name for -S<name>.enable and the type prefix
// printed before each result.
var zbarNames = map[Symbology]struct{ config, output string }{
	Code128: {"code128", "CODE-128"},
	Code39:  {"code39", "CODE-39"},
	Code93:  {"code93", "CODE-93"},
	ITF:     {"i25", "I2/5"},
	EAN13:   {"ean13", "EAN-13"},
	EAN8:    {"ean8", "EAN-8"},
	UPCA:    {"upca", "UPC-A"},
	UPCE:    {"upce", "UPC-E"},
	Codabar: {"codabar", "CODABAR"},
	QRCode:  {"qrcode", "QR-CODE"},
}

// Native runs the platform zbarimg multi-format detector.
type Native struct {
	desc    Descriptor
	path    string
	args    []string
	timeout time.Duration
}

// LookupNative probes PATH for zbarimg once. It returns nil when the tool
// is not installed.
func LookupNative(priority int, syms []Symbology) *Native {
	path, err := exec.LookPath("zbarimg")
	if err != nil {
		return nil
	}
	return NewNative(path, priority, syms)
}

// NewNative uses the zbarimg binary at path.
func NewNative(path string, priority int, syms []Symbology) *Native {
	var enabled []Symbology
	args := []string{"--quiet", "-Sdisable"}
	for _, s := range syms {
		if n, ok := zbarNames[s]; ok {
			enabled = append(enabled, s)
			args = append(args, "-S"+n.config+".enable")
		}
	}
	return &Native{
		desc:    Descriptor{Name: "native", Priority: priority, Symbologies: enabled},
		path:    path,
		args:    args,
		timeout: defaultNativeTimeout,
	}
}

func (n *Native) Descriptor() Descriptor { return n.desc }

// Detect writes img to a temporary PNG and runs zbarimg on it.
func (n *Native) Detect(ctx context.Context, img image.Image) (*Result, error) {
	tmp, err := os.CreateTemp("", "codescan-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	if SourceFrom(ctx) != SourcePhoto {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, n.path, slices.Concat(n.args, []string{tmp.Name()})...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && exitErr.ExitCode() == zbarExitNotFound:
		return nil, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("zbarimg interrupted: %w", ctx.Err())
	default:
		return nil, fmt.Errorf("zbarimg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseZbar(stdout.Bytes()), nil
}

// parseZbar returns the first "TYPE:data" line of zbarimg output.
func parseZbar(out []byte) *Result {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		kind, data, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		kind = strings.ToUpper(strings.TrimSpace(kind))
		for s, n := range zbarNames {
			if n.output == kind {
				return &Result{Text: data, Symbology: s}
			}
		}
	}
	return nil
}
