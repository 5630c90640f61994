package drm

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of key-system failure categories the
// controller reports outward.
type ErrorKind string

const (
	// KindNoKeys: an encrypted-content signal arrived before any access
	// negotiation was requested at all.
	KindNoKeys ErrorKind = "NO_KEYS"
	// KindNoAccess: a session-dependent operation ran with no session
	// item present.
	KindNoAccess ErrorKind = "NO_ACCESS"
	// KindNoSession: a session item exists but has no session object, or
	// the request-generation call itself failed.
	KindNoSession ErrorKind = "NO_SESSION"
	// KindNoInitData: request generation needed init data that is absent.
	KindNoInitData ErrorKind = "NO_INIT_DATA"
	// KindLicenseRequestFailed: the retry bound was exceeded, or building
	// or dispatching the license request failed outright.
	KindLicenseRequestFailed ErrorKind = "LICENSE_REQUEST_FAILED"
)

// ErrUnsupportedKeySystem is returned when negotiation is requested for an
// unknown key-system identifier. It fails synchronously and is never retried.
var ErrUnsupportedKeySystem = errors.New("unsupported key system")

// KeySystemError is the single structured error notification the controller
// emits. Fatal errors are expected to halt playback upstream; non-fatal ones
// are logged and leave the controller waiting for a new triggering event.
type KeySystemError struct {
	Kind  ErrorKind
	Fatal bool
	Err   error
}

func (e *KeySystemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key system error %s (fatal=%v): %v", e.Kind, e.Fatal, e.Err)
	}
	return fmt.Sprintf("key system error %s (fatal=%v)", e.Kind, e.Fatal)
}

func (e *KeySystemError) Unwrap() error { return e.Err }

// ErrorSink receives every non-recoverable condition exactly once. Injected
// by the surrounding system; never nil on a constructed Controller.
type ErrorSink func(*KeySystemError)

func keySystemError(kind ErrorKind, fatal bool, err error) *KeySystemError {
	return &KeySystemError{Kind: kind, Fatal: fatal, Err: err}
}
