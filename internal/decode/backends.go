package decode

import (
	"fmt"
)

// Backend names accepted by Build.
const (
	BackendNative   = "native"
	BackendZXing    = "zxing"
	BackendLowLight = "zxing-lowlight"
)

// DefaultOrder is the standard decode chain: the fast platform detector,
// then the general software decoder, then the low-light fallback.
var DefaultOrder = []string{BackendNative, BackendZXing, BackendLowLight}

// Build constructs backends in the given order, assigning priorities by
// position. A missing native detector is skipped and reported in skipped.
func Build(order []string, syms []Symbology) (backends []Backend, skipped []string, err error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	seen := make(map[string]bool)
	for i, name := range order {
		if seen[name] {
			return nil, nil, fmt.Errorf("decode backend %q listed twice", name)
		}
		seen[name] = true

		switch name {
		case BackendNative:
			if n := LookupNative(i, syms); n != nil {
				backends = append(backends, n)
			} else {
				skipped = append(skipped, name)
			}
		case BackendZXing:
			backends = append(backends, NewZXing(i, syms))
		case BackendLowLight:
			backends = append(backends, NewLowLight(i, syms))
		default:
			return nil, nil, fmt.Errorf("unknown decode backend %q", name)
		}
	}
	return backends, skipped, nil
}
