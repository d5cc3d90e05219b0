package scanner

import (
	"time"

	"github.com/starknet/codescan/internal/config"
	"github.com/starknet/codescan/internal/frame"
)

// Options tune a scan session. A session keeps the options it started with.
type Options struct {
	// Interval is the minimum time between the starts of two decode attempts.
	Interval time.Duration
	ROI      frame.ROI
	// ProbeAfter hands a session with no decode over to auto-probe. Zero
	// disables the hand-off.
	ProbeAfter  time.Duration
	TrialWindow time.Duration
}

// OptionsFromConfig converts the [scanner] table.
func OptionsFromConfig(cfg config.ScannerConfig) Options {
	return Options{
		Interval: cfg.Interval(),
		ROI: frame.ROI{
			Top:    cfg.ROITop,
			Bottom: cfg.ROIBottom,
			Left:   cfg.ROILeft,
			Right:  cfg.ROIRight,
		},
		ProbeAfter:  cfg.ProbeAfter(),
		TrialWindow: cfg.TrialWindow(),
	}.normalized()
}

// DefaultOptions returns the options of the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultScanner())
}

func (o Options) normalized() Options {
	floor := time.Duration(config.MinIntervalMS) * time.Millisecond
	if o.Interval <= 0 {
		o.Interval = time.Duration(config.DefaultIntervalMS) * time.Millisecond
	}
	if o.Interval < floor {
		o.Interval = floor
	}
	if o.ROI.Validate() != nil {
		o.ROI = frame.DefaultROI
	}
	if o.ProbeAfter < 0 {
		o.ProbeAfter = 0
	}
	return o
}
