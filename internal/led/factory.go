package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// StatusLED is the name the indicator drives.
const StatusLED = "status"

// New returns a controller for the board's status LED. sysfsName overrides
// board detection with an entry of /sys/class/leds. Without a known LED the
// controller is a no-op.
func New(logger *slog.Logger, sysfsName string) Controller {
	if sysfsName != "" {
		logger.Info("Using configured status LED", "led", sysfsName)
		return newSysfs("", map[string]string{StatusLED: sysfsName})
	}

	model := detectBoard()
	if dir := boardLED(model); dir != "" {
		logger.Info("Detected board status LED", "board_model", model, "led", dir)
		return newSysfs("", map[string]string{StatusLED: dir})
	}
	logger.Info("No status LED detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

// boardLED maps a device tree model to its user-controllable LED.
func boardLED(model string) string {
	switch {
	case strings.Contains(model, "NanoPC-T6"):
		return "usr_led"
	case strings.Contains(model, "Orange Pi"):
		return "green_led"
	case strings.Contains(model, "Raspberry Pi"):
		return "ACT"
	default:
		return ""
	}
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	// Device tree model contains null bytes, trim them
	return strings.TrimRight(string(data), "\x00")
}
