package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/atlanticdynamic/lumenwall/internal/interpolation"
	"github.com/pelletier/go-toml/v2"
)

// NewConfig loads, interpolates, and validates a TOML config file.
func NewConfig(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: config file does not exist: %s", ErrFailedToLoadConfig, filePath)
	}

	if ext := filepath.Ext(filePath); ext != ".toml" {
		return nil, fmt.Errorf(
			"%w: unsupported config format: %s, only .toml is supported",
			ErrFailedToLoadConfig, ext,
		)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadConfig, err)
	}
	return NewConfigFromBytes(data)
}

// NewConfigFromReader loads a config from TOML read from reader.
func NewConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config data: %w", ErrFailedToLoadConfig, err)
	}
	return NewConfigFromBytes(data)
}

// NewConfigFromBytes loads a config from TOML bytes using the process
// environment for interpolation and overrides.
func NewConfigFromBytes(data []byte) (*Config, error) {
	return decode(data, nil)
}

// NewConfigFromBytesWithEnv is NewConfigFromBytes with a fixed environment
// instead of the process one.
func NewConfigFromBytesWithEnv(data []byte, environ map[string]string) (*Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return decode(data, environ)
}

func decode(data []byte, environ map[string]string) (*Config, error) {
	var versionCheck struct {
		Version string `toml:"version"`
	}
	if err := toml.Unmarshal(data, &versionCheck); err != nil {
		return nil, fmt.Errorf("%w: failed to parse version: %w", ErrFailedToLoadConfig, err)
	}
	if versionCheck.Version == "" {
		versionCheck.Version = VersionLatest
	}
	if versionCheck.Version != VersionLatest {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigVer, versionCheck.Version)
	}

	cfg := &Config{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadConfig, err)
	}
	cfg.Version = versionCheck.Version

	var lookup interpolation.LookupFunc
	if environ != nil {
		lookup = interpolation.FromMap(environ)
	}
	if err := interpolation.NewExpander(lookup).Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: interpolation: %w", ErrFailedToLoadConfig, err)
	}

	if err := applyEnvOverrides(cfg, environ); err != nil {
		return nil, fmt.Errorf("%w: environment overrides: %w", ErrFailedToLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToValidateConfig, err)
	}
	return cfg, nil
}
