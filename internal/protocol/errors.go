package protocol

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrUnavailable is returned when a forwarded call arrives while the
	// wrappee is restarting or has failed. Callers are expected to retry
	// once the restart completes; nothing is queued.
	ErrUnavailable = errors.New("wrapped server unavailable")

	// ErrNotFound is returned for a tool name that matches neither a
	// built-in nor a discovered wrappee tool.
	ErrNotFound = errors.New("tool not found")
)

// SpawnError reports that the wrappee process could not be created.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeError reports a failed initialize negotiation with the wrappee.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string { return fmt.Sprintf("handshake: %v", e.Err) }

func (e *HandshakeError) Unwrap() error { return e.Err }

// TimeoutError reports that a forwarded call exceeded its budget. The
// wrappee-side operation is not cancelled; only the waiting side gives up.
type TimeoutError struct {
	ID      RequestID
	Tool    ToolName
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call %d (%s) timed out after %s", e.ID, e.Tool, e.Timeout)
}

// ForwardingError wraps a protocol-level error returned by the wrappee. It
// is passed through to the client unchanged.
type ForwardingError struct {
	Tool ToolName
	Resp *ErrorObject
}

func (e *ForwardingError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Resp)
}

func (e *ForwardingError) Unwrap() error { return e.Resp }

// DiscoveryError reports a failed tools/list refresh. The previously
// cached tool set remains in effect.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string { return fmt.Sprintf("tool discovery: %v", e.Err) }

func (e *DiscoveryError) Unwrap() error { return e.Err }

// FileWatchError reports a watcher setup failure. Watching is disabled but
// the proxy keeps running.
type FileWatchError struct {
	Path string
	Err  error
}

func (e *FileWatchError) Error() string {
	return fmt.Sprintf("watch %s: %v", e.Path, e.Err)
}

func (e *FileWatchError) Unwrap() error { return e.Err }
