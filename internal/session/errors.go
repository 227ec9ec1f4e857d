package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported indicates the platform carries no working capture backend.
	ErrUnsupported = errors.New("audio capture is not supported on this platform")
	// ErrInvalidDuration indicates the caller supplied a non-positive bound.
	ErrInvalidDuration = errors.New("max capture duration must be greater than zero")
	// ErrAlreadyCapturing indicates a start raced an active session.
	ErrAlreadyCapturing = errors.New("a capture session is already active")
	// ErrNotCapturing indicates a stop found no active session.
	ErrNotCapturing = errors.New("no capture session is active")
	// ErrAlreadyStopping indicates a stop found a finalize already in flight.
	ErrAlreadyStopping = errors.New("capture stop is already in progress")
)

// BackendError reports a device-level failure during acquisition or finalize.
// The underlying cause is preserved for errors.Is/As inspection.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("capture backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
