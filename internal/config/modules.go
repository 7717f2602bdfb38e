package config

import (
	"fmt"

	"github.com/atlanticdynamic/lumenwall/internal/wall/module"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/titlecard"
)

// ModuleConfig is one playlist entry.
type ModuleConfig struct {
	Name     string         `toml:"name"`
	Runtime  string         `toml:"runtime"`
	Code     string         `toml:"code"`
	URI      string         `toml:"uri"      env_interpolation:"yes"`
	Duration Duration       `toml:"duration"`
	Config   map[string]any `toml:"config"`
	Title    string         `toml:"title"`
	Author   string         `toml:"author"`
}

// ToDefinition converts the entry to a module definition.
func (m ModuleConfig) ToDefinition() module.Definition {
	return module.Definition{
		Name:     m.Name,
		Config:   m.Config,
		Source:   sandbox.Source{Runtime: m.Runtime, Code: m.Code, URI: m.URI},
		Title:    titlecard.Info{Title: m.Title, Author: m.Author},
		Duration: m.Duration.AsDuration(),
	}
}

// Definitions converts every playlist entry.
func (c *Config) Definitions() []module.Definition {
	out := make([]module.Definition, 0, len(c.Modules))
	for _, m := range c.Modules {
		out = append(out, m.ToDefinition())
	}
	return out
}

func (m ModuleConfig) validate() error {
	def := m.ToDefinition()
	if err := def.Validate(); err != nil {
		return err
	}
	if err := module.CheckName(m.Name); err != nil {
		return err
	}
	switch def.Source.RuntimeName() {
	case sandbox.RuntimeLua, sandbox.RuntimeRisor, sandbox.RuntimeStarlark, sandbox.RuntimeNative:
		return nil
	default:
		return fmt.Errorf("module %q: %w: %s", m.Name, sandbox.ErrUnknownRuntime, m.Runtime)
	}
}
