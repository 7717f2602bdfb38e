// Package module turns a module definition and a deadline into a running
// instance and drives it through its lifecycle.
package module

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox/natives"
	"github.com/atlanticdynamic/lumenwall/internal/wall/titlecard"
)

var (
	ErrInvalidDefinition = errors.New("invalid module definition")
	// ErrReservedName rejects assignments that borrow the placeholder's name.
	ErrReservedName = errors.New("module name is reserved")
)

// Definition describes a module: what to run and how to configure it.
type Definition struct {
	Name     string
	Config   map[string]any
	Source   sandbox.Source
	Title    titlecard.Info
	Duration time.Duration
}

// EmptyDefinition is the placeholder shown when nothing else can be.
func EmptyDefinition() Definition {
	return Definition{Name: natives.EmptyModuleName, Source: natives.EmptySource()}
}

// CheckName rejects the names reserved for built-in modules.
func CheckName(name string) error {
	if name == natives.EmptyModuleName {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	return nil
}

// Clone returns a copy whose config can be changed independently.
func (d Definition) Clone() Definition {
	out := d
	out.Config = maps.Clone(d.Config)
	return out
}

// Validate checks the fields every runtime needs.
func (d Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name is empty"))
	}
	if d.Source.Code == "" && d.Source.URI == "" {
		errs = append(errs, sandbox.ErrNoSource)
	}
	if d.Source.Code != "" && d.Source.URI != "" {
		errs = append(errs, errors.New("code and uri are mutually exclusive"))
	}
	if d.Duration < 0 {
		errs = append(errs, errors.New("duration is negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidDefinition, d.Name, errors.Join(errs...))
	}
	return nil
}

// Assignment asks every node to show a module from Deadline onward.
type Assignment struct {
	Definition Definition
	Deadline   time.Time
	Geometry   geometry.Polygon
}

// Identity is the name and deadline of the assigned module.
func (a Assignment) Identity() string {
	return Identity(a.Definition.Name, a.Deadline)
}

// Identity formats the identity of a module instance.
func Identity(name string, deadline time.Time) string {
	return fmt.Sprintf("%s@%d", name, deadline.UnixMilli())
}
