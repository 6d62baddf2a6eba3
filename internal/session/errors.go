package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means every search attempt ended without a matching advertisement
	ErrNotFound = errors.New("not found")
	// ErrBusy means the peripheral was already connecting when the session tried to claim it
	ErrBusy = errors.New("not available: is on connection")
	// ErrUnavailable means the peripheral reported a state other than disconnected or connecting
	ErrUnavailable = errors.New("not available")
	// ErrConnectionFailed means the connect watchdog fired before the link came up
	ErrConnectionFailed = errors.New("connection failed")
	// ErrNoDevice is returned by operations that need a bound handle when there is none
	ErrNoDevice = errors.New("no device bound to session")
)

// FatalError marks a failure the owning process must not recover from.
// Callers are expected to abort the session and exit.
type FatalError struct {
	Identifier string
	Err        error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Identifier, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a *FatalError
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ReadError reports which attribute of a fan-out read failed
type ReadError struct {
	Attribute string
	Err       error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Attribute, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
