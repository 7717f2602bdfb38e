// Package interpolation expands ${VAR} and ${VAR:default} references in
// configuration values.
package interpolation

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// ErrUndefinedVariable is returned for a reference with no value and no default.
var ErrUndefinedVariable = errors.New("environment variable not defined")

var referencePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:)?([^}]*)\}`)

// LookupFunc finds the value of a variable.
type LookupFunc func(name string) (string, bool)

// Expander replaces variable references using a lookup function.
type Expander struct {
	lookup LookupFunc
}

// NewExpander returns an Expander reading from lookup, or from the process
// environment when lookup is nil.
func NewExpander(lookup LookupFunc) *Expander {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Expander{lookup: lookup}
}

// FromMap returns a LookupFunc backed by a fixed set of values.
func FromMap(vars map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// Expand replaces every reference in input. References without a value or a
// default are left in place and reported together.
func (e *Expander) Expand(input string) (string, error) {
	if input == "" {
		return "", nil
	}

	var missing []error
	out := referencePattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := referencePattern.FindStringSubmatch(match)
		name, hasDefault, def := sub[1], sub[2] == ":", sub[3]

		if v, ok := e.lookup(name); ok {
			return v
		}
		// ${VAR:} is an explicit empty default
		if hasDefault {
			return def
		}
		missing = append(missing, fmt.Errorf("%w: %s", ErrUndefinedVariable, name))
		return match
	})
	return out, errors.Join(missing...)
}

// ExpandEnvVars expands input against the process environment.
func ExpandEnvVars(input string) (string, error) {
	return NewExpander(nil).Expand(input)
}
