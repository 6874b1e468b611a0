package transport

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage marks a programmer/protocol bug: a null request ID, a
// response send missing reply_to, a chunked request, or malformed chunk
// headers. Callers should surface it, never retry.
var ErrInvalidMessage = errors.New("transport: invalid message")

// ErrMessageTooLarge marks a message that exceeds maximum_message_size_in_bytes
// even after considering chunking, or that would require chunking a peer
// that cannot receive chunks.
var ErrMessageTooLarge = errors.New("transport: message too large")

// ErrReceiveTimeout marks a receive that returned without a message, whether
// from a real BLPOP timeout or a discarded expired message. Non-fatal:
// callers (especially the server loop) treat this as "no work, try again."
var ErrReceiveTimeout = errors.New("transport: receive timeout")

// TimeoutReason distinguishes why a receive reported ErrReceiveTimeout.
type TimeoutReason string

const (
	// ReasonBLPopTimeout means no element arrived within the receive timeout.
	ReasonBLPopTimeout TimeoutReason = "blpop_timeout"
	// ReasonMessageExpired means a message arrived but its __expiry__ had
	// already passed, so it was discarded instead of delivered.
	ReasonMessageExpired TimeoutReason = "message_expired"
)

// TimeoutError is the concrete type behind ErrReceiveTimeout.
type TimeoutError struct {
	Queue  string
	Reason TimeoutReason
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport: receive timeout on queue %q (%s)", e.Queue, e.Reason)
}

// Is lets errors.Is(err, ErrReceiveTimeout) match any *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrReceiveTimeout
}

// SendError wraps a send failure: queue full after retries, an unexpected
// Redis response, or a connection error during send.
type SendError struct {
	Queue   string
	Retries int
	Cause   error
}

func (e *SendError) Error() string {
	if e.Retries > 0 {
		return fmt.Sprintf("transport: send to queue %q failed after %d retries: %v", e.Queue, e.Retries, e.Cause)
	}
	return fmt.Sprintf("transport: send to queue %q failed: %v", e.Queue, e.Cause)
}

func (e *SendError) Unwrap() error { return e.Cause }

// ReceiveError wraps a connection error encountered during receive.
type ReceiveError struct {
	Queue string
	Cause error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("transport: receive from queue %q failed: %v", e.Queue, e.Cause)
}

func (e *ReceiveError) Unwrap() error { return e.Cause }

// invalidMessage builds an error satisfying errors.Is(err, ErrInvalidMessage)
// with a specific reason string.
func invalidMessage(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// tooLarge builds an error satisfying errors.Is(err, ErrMessageTooLarge) with
// a specific reason string.
func tooLarge(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMessageTooLarge, fmt.Sprintf(format, args...))
}
