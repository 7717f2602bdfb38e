package config

import "errors"

var (
	ErrFailedToLoadConfig     = errors.New("failed to load config")
	ErrFailedToValidateConfig = errors.New("failed to validate config")
	ErrUnsupportedConfigVer   = errors.New("unsupported config version")

	ErrNoNodes          = errors.New("at least one node is required")
	ErrDuplicateNodeID  = errors.New("duplicate node ID")
	ErrNodeOutsideWall  = errors.New("outside the wall")
	ErrTooManyPrimaries = errors.New("nodes are marked primary, at most one may be")
	ErrNoModules        = errors.New("at least one module is required")
	ErrDuplicateModule  = errors.New("duplicate module name")
)
