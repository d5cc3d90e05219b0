// Package decode turns images into barcode values by trying an ordered list
// of decoding backends. The first backend to produce an allowed, non-empty
// value wins; later backends are not consulted for that image.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/starknet/codescan/internal/logging"
)

// ErrNotFound means no backend found an allowed code in the image.
var ErrNotFound = errors.New("no code found")

// Symbology is a barcode encoding standard.
type Symbology string

const (
	Code128 Symbology = "code_128"
	Code39  Symbology = "code_39"
	Code93  Symbology = "code_93"
	ITF     Symbology = "itf"
	EAN13   Symbology = "ean_13"
	EAN8    Symbology = "ean_8"
	UPCA    Symbology = "upc_a"
	UPCE    Symbology = "upc_e"
	Codabar Symbology = "codabar"
	QRCode  Symbology = "qr_code"
)

// LinearSymbologies are the 1D codes printed on equipment labels.
var LinearSymbologies = []Symbology{Code128, Code39, Code93, ITF, EAN13, EAN8, UPCA, UPCE, Codabar}

// AllowList returns the default symbology allow-list, optionally with QR.
func AllowList(enableQR bool) []Symbology {
	list := slices.Clone(LinearSymbologies)
	if enableQR {
		list = append(list, QRCode)
	}
	return list
}

// Source is where the decoded image came from.
type Source string

const (
	SourceVideo Source = "video"
	SourcePhoto Source = "photo"
)

type sourceKey struct{}

// WithSource records on ctx where the image being decoded came from.
func WithSource(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, sourceKey{}, src)
}

// SourceFrom returns the source recorded by WithSource, SourceVideo when
// none was recorded.
func SourceFrom(ctx context.Context) Source {
	if src, ok := ctx.Value(sourceKey{}).(Source); ok {
		return src
	}
	return SourceVideo
}

// Result is one decoded code.
type Result struct {
	Text      string    `json:"text"`
	Symbology Symbology `json:"symbology,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Backend   string    `json:"backend"`
}

// Descriptor describes a backend: its name, its position in the decode
// order (lower runs first) and the symbologies it can report.
type Descriptor struct {
	Name        string      `json:"name"`
	Priority    int         `json:"priority"`
	Symbologies []Symbology `json:"symbologies"`
}

// Backend is one decoding strategy. Detect returns (nil, nil) when the image
// holds no code it recognises.
type Backend interface {
	Descriptor() Descriptor
	Detect(ctx context.Context, img image.Image) (*Result, error)
}

// Observer is told about every backend attempt.
type Observer func(backend string, found bool, elapsed time.Duration)

// Engine runs backends in priority order.
type Engine struct {
	backends []Backend
	allow    map[Symbology]bool
	observer Observer
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver reports every backend attempt to fn.
func WithObserver(fn Observer) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// NewEngine orders backends by Descriptor().Priority, keeping the given
// order for equal priorities. Results outside allow are discarded.
func NewEngine(backends []Backend, allow []Symbology, opts ...Option) *Engine {
	ordered := slices.Clone(backends)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Descriptor().Priority < ordered[j].Descriptor().Priority
	})

	e := &Engine{
		backends: ordered,
		allow:    make(map[Symbology]bool, len(allow)),
		logger:   logging.GetLogger("decode"),
	}
	for _, s := range allow {
		e.allow[s] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Descriptors lists the backends in the order they run.
func (e *Engine) Descriptors() []Descriptor {
	out := make([]Descriptor, len(e.backends))
	for i, b := range e.backends {
		out[i] = b.Descriptor()
	}
	return out
}

// Allowed reports whether s is on the allow-list. Results that carry no
// symbology are accepted.
func (e *Engine) Allowed(s Symbology) bool {
	return s == "" || e.allow[s]
}

// Decode returns the first allowed result for img. A backend error or panic
// counts as a miss for that backend only. ErrNotFound is returned when every
// backend misses; ctx errors are returned as is.
func (e *Engine) Decode(ctx context.Context, img image.Image, src Source) (Result, error) {
	if img == nil {
		return Result{}, ErrNotFound
	}
	ctx = WithSource(ctx, src)

	for _, b := range e.backends {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		name := b.Descriptor().Name
		start := time.Now()
		res, err := detect(ctx, b, img)
		found := err == nil && res != nil
		if found {
			res.Text = strings.TrimSpace(res.Text)
			found = res.Text != "" && e.Allowed(res.Symbology)
		}
		if e.observer != nil {
			e.observer(name, found, time.Since(start))
		}

		switch {
		case err != nil:
			e.logger.Debug("Backend failed", "backend", name, "error", err)
			continue
		case !found:
			continue
		}

		res.Source = src
		res.Backend = name
		if res.Timestamp.IsZero() {
			res.Timestamp = time.Now()
		}
		return *res, nil
	}
	return Result{}, ErrNotFound
}

func detect(ctx context.Context, b Backend, img image.Image) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("backend %s panicked: %v", b.Descriptor().Name, r)
		}
	}()
	return b.Detect(ctx, img)
}
