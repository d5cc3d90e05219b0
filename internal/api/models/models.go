// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/starknet/codescan/internal/camera"
	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/scanner"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.1" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Device models
type DeviceData struct {
	DeviceID  string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable device identifier"`
	Label     string `json:"label" example:"HD Pro Webcam C920" doc:"Device label, empty until the platform reveals it"`
	Score     int    `json:"score" example:"12" doc:"Lens-quality score derived from the label"`
	Default   bool   `json:"default" doc:"Whether this device is picked when none is requested"`
	Preferred bool   `json:"preferred" doc:"Whether this is the remembered device"`
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"Cameras, best ranked first"`
	Count   int          `json:"count" example:"2" doc:"Number of cameras"`
	Locked  bool         `json:"locked" doc:"Whether the user picked a device explicitly"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

type PreferredDeviceRequest struct {
	Body struct {
		DeviceID string `json:"device_id" minLength:"1" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Device to use from now on"`
	}
}

// Scanner models
type ScannerStartData struct {
	DeviceID string `json:"device_id,omitempty" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Camera to start with; the remembered or best-ranked one when empty"`
	WaitMS   int    `json:"wait_ms,omitempty" minimum:"0" maximum:"120000" example:"10000" doc:"Block up to this long for a result"`
}

type ScannerStartRequest struct {
	Body *ScannerStartData `required:"false"`
}

// DeviceID is the requested camera, empty when the body was omitted.
func (r *ScannerStartRequest) DeviceID() string {
	if r.Body == nil {
		return ""
	}
	return r.Body.DeviceID
}

// WaitMS is the requested wait, zero when the body was omitted.
func (r *ScannerStartRequest) WaitMS() int {
	if r.Body == nil {
		return 0
	}
	return r.Body.WaitMS
}

type SessionData struct {
	SessionID string                `json:"session_id" example:"0b6a3d2e-8c1f-4f6e-9d53-9f0f2f3b8d11" doc:"Scan session identifier"`
	Status    scanner.Status        `json:"status" doc:"Controller status after the call"`
	Result    *decode.Result        `json:"result,omitempty" doc:"Detected code when the call waited for one"`
	Error     *scanner.SessionError `json:"error,omitempty" doc:"Why the session ended without a code"`
}

type SessionResponse struct {
	Body SessionData
}

type StatusResponse struct {
	Body scanner.Status
}

type ZoomRequest struct {
	Body struct {
		Level float64 `json:"level" minimum:"0" example:"2" doc:"Requested zoom factor; clamped to the camera range"`
	}
}

type ZoomData struct {
	Level float64       `json:"level" example:"2" doc:"Applied zoom factor"`
	Range *camera.Range `json:"range,omitempty" doc:"Supported range"`
}

type ZoomResponse struct {
	Body ZoomData
}

type TorchRequest struct {
	Body struct {
		On bool `json:"on" doc:"Turn the torch on or off"`
	}
}

type TorchData struct {
	On bool `json:"on" doc:"Torch state"`
}

type TorchResponse struct {
	Body TorchData
}

// Photo models
type PhotoDecodeRequest struct {
	RawBody []byte `contentType:"application/octet-stream" doc:"Encoded image (JPEG, PNG, GIF, BMP, TIFF or WebP)"`
}

type PhotoDecodeData struct {
	Text      string           `json:"text" example:"4006381333931" doc:"Decoded value"`
	Symbology decode.Symbology `json:"symbology" example:"ean_13" doc:"Barcode symbology"`
	Backend   string           `json:"backend" example:"zxing" doc:"Backend that found the code"`
	Timestamp time.Time        `json:"timestamp" doc:"Decode time"`
}

type PhotoDecodeResponse struct {
	Body PhotoDecodeData
}

// Logging models
type LogLevelRequest struct {
	Module string `path:"module" example:"scanner" doc:"Logger module name"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

type LogLevelResponse struct {
	Body struct {
		Module string `json:"module" example:"scanner"`
		Level  string `json:"level" example:"debug"`
	}
}
