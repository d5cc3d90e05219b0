// Package led drives a board status LED as scan feedback: it blinks while a
// camera is scanning and lights solid for a moment on each read.
package led

// Patterns understood by Set.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
)

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set switches the named LED. pattern is PatternSolid, PatternBlink or
	// empty to leave the trigger unchanged.
	Set(name string, on bool, pattern string) error

	// Available returns the LED names this controller can drive.
	Available() []string
}
