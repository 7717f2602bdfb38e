package module

import "errors"

var (
	ErrHookFailure     = errors.New("module hook failed")
	ErrDisposalFailure = errors.New("module disposal failed")
	ErrInvalidState    = errors.New("operation not allowed in current state")
	ErrAbandoned       = errors.New("module disposed while preparing")
)
