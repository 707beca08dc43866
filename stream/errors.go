package stream

import (
	"errors"
	"fmt"
)

// Sentinel errors for server lifecycle and request handling. These enable
// callers to distinguish failure modes using errors.Is.
var (
	ErrUnauthorized = errors.New("stream: password required or incorrect")
	ErrNoFrame      = errors.New("stream: no frame published yet")
	ErrClosed       = errors.New("stream: server closed")
)

// BindError reports that a listener could not be opened. Start returns it
// and the server stays stopped.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("stream: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// AuthReason tells why a request failed authentication.
type AuthReason string

const (
	AuthMissing  AuthReason = "missing"
	AuthMismatch AuthReason = "mismatch"
)

// AuthError rejects a single request. It matches ErrUnauthorized.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("stream: auth failed: %s password", e.Reason)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

// ConnectionError is a socket-level failure that ended one viewer session.
type ConnectionError struct {
	Session string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("stream: session %s: %v", e.Session, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
