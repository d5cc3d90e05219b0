package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/starknet/codescan/internal/events"
	"github.com/starknet/codescan/internal/scanner"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Detected codes, scan state changes, scan errors, probe attempts and camera hot-plug. The first message is the current scanner status",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"scanner-status":     scanner.Status{},
		"code-detected":      events.CodeDetectedEvent{},
		"scan-state-changed": events.ScanStateChangedEvent{},
		"scan-error":         events.ScanErrorEvent{},
		"probe-attempt":      events.ProbeAttemptEvent{},
		"device-discovery":   events.DeviceDiscoveryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CodeDetectedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.ScanStateChangedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.ScanErrorEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.ProbeAttemptEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.DeviceDiscoveryEvent](s.options.Bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(s.options.Scanner.Status()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
