// Package natives holds modules compiled into the binary, including the
// empty placeholder shown whenever nothing else can be.
package natives

import (
	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
)

// Names of the built-in modules.
const (
	Empty = "empty"
	Hello = "hello"
)

// EmptyModuleName is the definition name of the placeholder module.
const EmptyModuleName = "empty-module"

// RegisterAll adds every built-in module to the native runtime.
func RegisterAll(n *sandbox.Native) {
	n.Register(Empty, sandbox.Pair{
		Server: behavior.NoServer,
		Client: func(map[string]any, capability.Locator) (behavior.Client, error) {
			return &EmptyClient{}, nil
		},
	})
	n.Register(Hello, sandbox.Pair{
		Server: NewHelloServer,
		Client: NewHelloClient,
	})
}

// EmptySource is the source of the placeholder module.
func EmptySource() sandbox.Source {
	return sandbox.Source{Runtime: sandbox.RuntimeNative, Code: Empty}
}

// EmptyClient draws nothing.
type EmptyClient struct {
	behavior.BaseClient
}
