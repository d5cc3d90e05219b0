package led

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starknet/codescan/internal/events"
)

// Scan states the indicator reacts to. They mirror the scanner's state names.
const (
	stateStarting = "starting"
	stateRunning  = "running"
	stateSuccess  = "success"
)

// Indicator subscribes to scan state changes and drives the status LED.
// It also serves as the scanner's success feedback through Vibrate.
type Indicator struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe func()
	logger      *slog.Logger

	mu    sync.Mutex
	flash *time.Timer
}

// NewIndicator creates an indicator for controller's StatusLED.
func NewIndicator(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Indicator {
	return &Indicator{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start begins listening for scan state changes.
func (i *Indicator) Start() {
	i.unsubscribe = i.eventBus.Subscribe(func(e events.ScanStateChangedEvent) {
		i.handleEvent(e)
	})
	i.set(false, PatternSolid)
	i.logger.Info("LED indicator started")
}

// Stop unsubscribes and switches the LED off.
func (i *Indicator) Stop() {
	if i.unsubscribe != nil {
		i.unsubscribe()
	}
	i.mu.Lock()
	if i.flash != nil {
		i.flash.Stop()
		i.flash = nil
	}
	i.mu.Unlock()
	i.set(false, PatternSolid)
	i.logger.Info("LED indicator stopped")
}

// Vibrate lights the LED solid for d. It returns without waiting.
func (i *Indicator) Vibrate(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.controller.Set(StatusLED, true, PatternSolid); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.flash != nil {
		i.flash.Stop()
	}
	i.flash = time.AfterFunc(d, func() {
		i.mu.Lock()
		i.flash = nil
		i.mu.Unlock()
		i.set(false, PatternSolid)
	})
	return nil
}

func (i *Indicator) handleEvent(e events.ScanStateChangedEvent) {
	i.logger.Debug("Scan state changed", "from", e.From, "to", e.To)

	switch e.To {
	case stateStarting, stateRunning:
		i.set(true, PatternBlink)
	case stateSuccess:
		// The success flash owns the LED until it expires.
	default:
		i.mu.Lock()
		flashing := i.flash != nil
		i.mu.Unlock()
		if !flashing {
			i.set(false, PatternSolid)
		}
	}
}

func (i *Indicator) set(on bool, pattern string) {
	if err := i.controller.Set(StatusLED, on, pattern); err != nil {
		i.logger.Warn("Failed to set status LED", "on", on, "pattern", pattern, "error", err)
	}
}
