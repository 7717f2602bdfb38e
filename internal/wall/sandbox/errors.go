package sandbox

import "errors"

var (
	// ErrMalformedModule means the source ran but did not register a usable
	// client behavior.
	ErrMalformedModule = errors.New("malformed module")
	// ErrLoadFailure wraps any error raised while executing module source.
	ErrLoadFailure = errors.New("module load failed")

	ErrContextInUse   = errors.New("execution context id already in use")
	ErrEmptyContextID = errors.New("execution context id is empty")
	ErrUnknownRuntime = errors.New("unknown module runtime")
	ErrNoSource       = errors.New("module source has neither code nor uri")
	ErrContextClosed  = errors.New("execution context is closed")
	// ErrHookTimeout means module code ran past its time limit.
	ErrHookTimeout = errors.New("module code exceeded its time limit")
)
