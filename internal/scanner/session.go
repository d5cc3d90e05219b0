package scanner

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/starknet/codescan/internal/decode"
	"github.com/starknet/codescan/internal/stream"
)

// Session is one scan from start to its terminal state. It owns the open
// stream; the stream is released before Done is closed.
type Session struct {
	id   string
	opts Options

	ctx    context.Context
	cancel context.CancelCauseFunc

	onDetected func(decode.Result)
	result     chan decode.Result
	done       chan struct{}

	mu       sync.Mutex
	handle   *stream.Handle
	deviceID string
	label    string
	err      *SessionError
}

func newSession(opts Options, onDetected func(decode.Result)) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Session{
		id:         uuid.NewString(),
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		onDetected: onDetected,
		result:     make(chan decode.Result, 1),
		done:       make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Result yields the session's single decode. It is closed without a value
// when the session ends any other way.
func (s *Session) Result() <-chan decode.Result { return s.result }

// Done is closed once the session has ended and released its camera.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the failure that ended the session, or nil.
func (s *Session) Err() *SessionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// DeviceID returns the camera the session is using or last used.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

func (s *Session) setErr(err *SessionError) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Session) current() *stream.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// attach records h as the session's open stream.
func (s *Session) attach(h *stream.Handle) {
	s.mu.Lock()
	s.handle = h
	s.deviceID = h.DeviceID()
	s.label = h.Label()
	s.mu.Unlock()
}
