package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Runtime names.
const (
	RuntimeLua      = "lua"
	RuntimeRisor    = "risor"
	RuntimeStarlark = "starlark"
	RuntimeNative   = "native"
)

// Source is the code of one module and the runtime that executes it.
type Source struct {
	Runtime string `json:"runtime,omitempty"`
	Code    string `json:"code,omitempty"`
	URI     string `json:"uri,omitempty"`
}

// RuntimeName returns the runtime, defaulting to lua.
func (s Source) RuntimeName() string {
	if s.Runtime == "" {
		return RuntimeLua
	}
	return strings.ToLower(s.Runtime)
}

// Resolve returns the code, reading it from URI when no inline code is set.
// Only local files are supported; a file:// prefix is accepted.
func (s Source) Resolve() (string, error) {
	if s.Code != "" {
		return s.Code, nil
	}
	if s.URI == "" {
		return "", ErrNoSource
	}

	path := strings.TrimPrefix(s.URI, "file://")
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve relative path %q: %w", path, err)
		}
		path = abs
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read module source: %w", err)
	}
	return string(data), nil
}
