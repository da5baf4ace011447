package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered is returned for operations on a layer that was never
	// registered (or was cleared), and wrapped for out-of-range indices.
	ErrNotRegistered     = errors.New("layer not registered")
	ErrIndexOutOfRange   = fmt.Errorf("%w: index out of range", ErrNotRegistered)
	ErrAlreadyRegistered = errors.New("layer already registered")
	ErrNoTimeSteps       = errors.New("layer has no timesteps")
	// ErrUnorderedTimeSteps is returned when timesteps are not strictly
	// ascending in time.
	ErrUnorderedTimeSteps = errors.New("timesteps not in ascending order")
	ErrInvalidTransition = errors.New("invalid timestamp state transition")
	ErrNotLoaded         = errors.New("timestamp not loaded")
	ErrSchedulerClosed   = errors.New("scheduler disposed")
)

// NetworkError reports a failed or non-successful HTTP exchange.
type NetworkError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status code: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the request may succeed.
func (e *NetworkError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// FormatError reports a payload that is not a raw grid field.
type FormatError struct {
	URL    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("fetch %s: bad payload: %s", e.URL, e.Reason)
}

// IsNetworkError reports whether err carries a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsFormatError reports whether err carries a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
