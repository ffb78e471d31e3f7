package canctrl

import "errors"

// Every failure surfaced by this package maps to exactly one of these
// errors, either returned directly or wrapped with additional context.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnsupported        = errors.New("not supported in current mode or by backend")
	ErrBusy               = errors.New("controller must be stopped")
	ErrAlreadyInState     = errors.New("controller already in requested state")
	ErrNetworkDown        = errors.New("controller is stopped")
	ErrNetworkUnreachable = errors.New("controller is in bus-off")
	ErrResourceBusy       = errors.New("arbitration lost")
	ErrTimeout            = errors.New("operation timed out")
	ErrIo                 = errors.New("input/output error")
	ErrNoSpace            = errors.New("no free filter")
	ErrNotImplemented     = errors.New("not implemented by backend")
	ErrUnavailable        = errors.New("core clock unavailable")
)
