package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportClosed: the delegate went away mid-session.
	ErrTransportClosed = errors.New("transport closed")

	// ErrConnectionClosed: a file RPC observed an abort or a negative
	// helper status.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrProtocolViolation: the remote end produced output the state
	// machine cannot reconcile (unexpected status, malformed PID, bad
	// version line).
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrFileNotFound: the helper reported a positive status for a file
	// operation. The helper does not distinguish permission failures
	// from missing paths.
	ErrFileNotFound = errors.New("file not found")

	// ErrInternal: the helper's payload could not be decoded.
	ErrInternal = errors.New("internal error")

	// ErrNotImplemented: reserved RPCs that must fail until the helper
	// grows support.
	ErrNotImplemented = errors.New("not implemented")

	// ErrAborted: the command queue drained on delegate loss or a
	// forced reset before this operation completed.
	ErrAborted = errors.New("aborted")
)

// ProtocolViolation wraps ErrProtocolViolation with the offending
// detail.
func ProtocolViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}
