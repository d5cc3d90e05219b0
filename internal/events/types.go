package events

// Event type constants for kelindar/event.
const (
	TypeDeviceDiscovery uint32 = iota + 1
	TypeScanStateChanged
	TypeCodeDetected
	TypeScanError
	TypeProbeAttempt
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Device discovery actions.
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// DeviceDiscoveryEvent reports a camera being plugged in or removed.
type DeviceDiscoveryEvent struct {
	DeviceID  string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable device identifier"`
	Label     string `json:"label,omitempty" example:"HD Pro Webcam C920" doc:"Device label when known"`
	Node      string `json:"node,omitempty" example:"/dev/video0" doc:"Device node"`
	Action    string `json:"action" example:"added" doc:"Action type: added, removed"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDiscoveryEvent.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }

// ScanStateChangedEvent reports a scan session state transition.
type ScanStateChangedEvent struct {
	SessionID string `json:"session_id" example:"0b6a3d2e-8c1f-4f6e-9d53-9f0f2f3b8d11" doc:"Scan session identifier"`
	From      string `json:"from" example:"starting" doc:"Previous state"`
	To        string `json:"to" example:"running" doc:"New state"`
	DeviceID  string `json:"device_id,omitempty" doc:"Active device"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ScanStateChangedEvent.
func (e ScanStateChangedEvent) Type() uint32 { return TypeScanStateChanged }

// CodeDetectedEvent carries the single accepted result of a session.
type CodeDetectedEvent struct {
	SessionID string `json:"session_id,omitempty" doc:"Scan session identifier, empty for photo decodes"`
	Text      string `json:"text" example:"4006381333931" doc:"Decoded value"`
	Symbology string `json:"symbology" example:"ean_13" doc:"Barcode symbology"`
	Source    string `json:"source" example:"video" doc:"Frame source: video or photo"`
	Backend   string `json:"backend,omitempty" example:"zxing" doc:"Decode backend that produced the result"`
	DeviceID  string `json:"device_id,omitempty" doc:"Device that produced the frame"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Detection timestamp"`
}

// Type returns the event type identifier for CodeDetectedEvent.
func (e CodeDetectedEvent) Type() uint32 { return TypeCodeDetected }

// ScanErrorEvent reports a session that ended in the error state.
type ScanErrorEvent struct {
	SessionID string `json:"session_id" doc:"Scan session identifier"`
	Code      string `json:"code" example:"PERMISSION_DENIED" doc:"Error code"`
	Message   string `json:"message" doc:"User-facing message"`
	Retryable bool   `json:"retryable" doc:"Whether starting again may succeed"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ScanErrorEvent.
func (e ScanErrorEvent) Type() uint32 { return TypeScanError }

// Probe attempt outcomes.
const (
	ProbeOpened      = "opened"
	ProbeUnavailable = "unavailable"
	ProbeTimeout     = "timeout"
	ProbeSuccess     = "success"
)

// ProbeAttemptEvent reports one auto-probe candidate.
type ProbeAttemptEvent struct {
	DeviceID  string `json:"device_id" doc:"Candidate device"`
	Label     string `json:"label,omitempty" doc:"Candidate label"`
	Outcome   string `json:"outcome" example:"timeout" doc:"opened, unavailable, timeout or success"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProbeAttemptEvent.
func (e ProbeAttemptEvent) Type() uint32 { return TypeProbeAttempt }
