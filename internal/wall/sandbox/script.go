package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
	"github.com/atlanticdynamic/lumenwall/internal/wall/titlecard"
	"github.com/robbyt/go-polyscript/engines/risor"
	"github.com/robbyt/go-polyscript/engines/starlark"
	"github.com/robbyt/go-polyscript/platform"
	"github.com/robbyt/go-polyscript/platform/constants"
	"github.com/robbyt/go-polyscript/platform/data"
	"github.com/robbyt/go-polyscript/platform/script/loader"
)

// DefaultHookTimeout bounds a single script evaluation.
const DefaultHookTimeout = 2 * time.Second

// Hook names passed to scripts in ctx["hook"].
const (
	HookRegister         = "register"
	HookInit             = "init"
	HookWillBeShownSoon  = "willBeShownSoon"
	HookWillBeHiddenSoon = "willBeHiddenSoon"
	HookBeginFadeIn      = "beginFadeIn"
	HookFinishFadeIn     = "finishFadeIn"
	HookBeginFadeOut     = "beginFadeOut"
	HookFinishFadeOut    = "finishFadeOut"
	HookDraw             = "draw"
	HookTick             = "tick"
	HookDispose          = "dispose"
	HookMessage          = "message"
)

var ErrScriptFailure = errors.New("script reported an error")

type compileFunc func(handler slog.Handler, ldr loader.Loader) (platform.Evaluator, error)

// ScriptRuntime runs modules through a go-polyscript engine. The script is
// compiled once per context and evaluated once per hook. It sees a ctx map
// with the keys hook, role, name, config, globals and args, and answers
// with a map that may contain:
//
//	client, server  behavior names (register hook only)
//	listen          event names delivered back as the message hook
//	globals         replacement for the caller's globals
//	emit            list of {event, payload} sent on the network channel
//	status          text for the title card
//	error           a message that fails the hook
type ScriptRuntime struct {
	name    string
	compile compileFunc
	timeout time.Duration
	logger  *slog.Logger
}

type ScriptOption func(*ScriptRuntime)

// WithHookTimeout overrides DefaultHookTimeout.
func WithHookTimeout(d time.Duration) ScriptOption {
	return func(r *ScriptRuntime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithScriptLogHandler sets the handler passed to the engine.
func WithScriptLogHandler(handler slog.Handler) ScriptOption {
	return func(r *ScriptRuntime) {
		r.logger = slog.New(handler).WithGroup("sandbox." + r.name)
	}
}

// NewRisor returns a runtime for Risor scripts.
func NewRisor(opts ...ScriptOption) *ScriptRuntime {
	return newScriptRuntime(RuntimeRisor, func(h slog.Handler, ldr loader.Loader) (platform.Evaluator, error) {
		return risor.FromRisorLoader(h, ldr)
	}, opts)
}

// NewStarlark returns a runtime for Starlark scripts. Starlark scripts return
// their answer by assigning it to _.
func NewStarlark(opts ...ScriptOption) *ScriptRuntime {
	return newScriptRuntime(RuntimeStarlark, func(h slog.Handler, ldr loader.Loader) (platform.Evaluator, error) {
		return starlark.FromStarlarkLoader(h, ldr)
	}, opts)
}

func newScriptRuntime(name string, compile compileFunc, opts []ScriptOption) *ScriptRuntime {
	r := &ScriptRuntime{
		name:    name,
		compile: compile,
		timeout: DefaultHookTimeout,
		logger:  slog.Default().WithGroup("sandbox." + name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ScriptRuntime) Name() string {
	return r.name
}

func (r *ScriptRuntime) Load(ctx context.Context, id string, code string) (*Loaded, error) {
	ldr, err := loader.NewFromString(code)
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %w", err)
	}
	eval, err := r.compile(r.logger.Handler(), ldr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s script: %w", r.name, err)
	}

	sc := &scriptContext{
		id:      id,
		eval:    eval,
		timeout: r.timeout,
		logger:  r.logger.With("context", id),
	}

	answer, err := sc.evaluate(ctx, map[string]any{"hook": HookRegister})
	if err != nil {
		return nil, err
	}

	clientName, _ := answer["client"].(string)
	if clientName == "" {
		return nil, fmt.Errorf("%w: register answer has no client", ErrMalformedModule)
	}
	serverName, _ := answer["server"].(string)
	sc.listen = stringList(answer["listen"])

	loaded := &Loaded{
		Client: func(config map[string]any, services capability.Locator) (behavior.Client, error) {
			inst, err := sc.instance("client", clientName, config, services)
			if err != nil {
				return nil, err
			}
			return &scriptClient{inst}, nil
		},
		Close: sc.close,
	}
	if serverName != "" {
		loaded.Server = func(config map[string]any, services capability.Locator) (behavior.Server, error) {
			inst, err := sc.instance("server", serverName, config, services)
			if err != nil {
				return nil, err
			}
			return &scriptServer{inst}, nil
		}
	}
	return loaded, nil
}

// scriptContext is one compiled script. Evaluations are serialized.
type scriptContext struct {
	id      string
	timeout time.Duration
	logger  *slog.Logger
	listen  []string

	mu     sync.Mutex
	eval   platform.Evaluator
	closed bool
}

func (sc *scriptContext) close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.closed = true
	sc.eval = nil
	return nil
}

func (sc *scriptContext) evaluate(parent context.Context, input map[string]any) (map[string]any, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil, ErrContextClosed
	}

	ctx, cancel := context.WithTimeout(parent, sc.timeout)
	defer cancel()

	ctx, err := data.NewContextProvider(constants.EvalData).AddDataToContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to add script data: %w", err)
	}
	result, err := sc.eval.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s evaluation failed: %w", input["hook"], err)
	}

	answer, ok := result.Interface().(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	if msg, ok := answer["error"].(string); ok && msg != "" {
		return answer, fmt.Errorf("%w: %s", ErrScriptFailure, msg)
	}
	return answer, nil
}

// scriptInstance is one behavior built from a script context. Each instance
// carries its own globals between hooks.
type scriptInstance struct {
	sc     *scriptContext
	role   string
	name   string
	config map[string]any
	ch     *network.Channel
	title  *titlecard.API

	mu      sync.Mutex
	globals map[string]any
}

func (sc *scriptContext) instance(role, name string, config map[string]any, services capability.Locator) (*scriptInstance, error) {
	inst := &scriptInstance{
		sc:      sc,
		role:    role,
		name:    name,
		config:  config,
		globals: map[string]any{},
	}
	if services != nil {
		if ch, err := capability.As[*network.Channel](services, capability.Network); err == nil {
			inst.ch = ch
		}
		if api, err := capability.As[*titlecard.API](services, capability.TitleCard); err == nil {
			inst.title = api
		}
	}
	if inst.ch != nil {
		for _, event := range sc.listen {
			inst.ch.On(event, func(payload any) {
				err := inst.hook(context.Background(), HookMessage, map[string]any{"event": event, "payload": payload})
				if err != nil {
					sc.logger.Warn("Message hook failed", "role", role, "event", event, "error", err)
				}
			})
		}
	}
	if err := inst.hook(context.Background(), HookInit, nil); err != nil {
		return nil, fmt.Errorf("%s init: %w", role, err)
	}
	return inst, nil
}

func (i *scriptInstance) hook(ctx context.Context, hook string, args map[string]any) error {
	i.mu.Lock()
	globals := maps.Clone(i.globals)
	i.mu.Unlock()

	if args == nil {
		args = map[string]any{}
	}
	config := i.config
	if config == nil {
		config = map[string]any{}
	}

	answer, err := i.sc.evaluate(ctx, map[string]any{
		"hook":    hook,
		"role":    i.role,
		"name":    i.name,
		"config":  config,
		"globals": globals,
		"args":    args,
	})
	if err != nil {
		return err
	}

	if g, ok := answer["globals"].(map[string]any); ok {
		i.mu.Lock()
		i.globals = g
		i.mu.Unlock()
	}
	if status, ok := answer["status"].(string); ok && i.title != nil {
		i.title.SetStatus(status)
	}
	if i.ch != nil {
		for _, e := range anyList(answer["emit"]) {
			msg, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if event, ok := msg["event"].(string); ok && event != "" {
				i.ch.Emit(event, msg["payload"])
			}
		}
	}
	return nil
}

// Globals returns a copy of the instance's globals.
func (i *scriptInstance) Globals() map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return maps.Clone(i.globals)
}

type scriptClient struct {
	*scriptInstance
}

func (c *scriptClient) WillBeShownSoon(ctx context.Context, s surface.Surface, deadline time.Time) error {
	return c.hook(ctx, HookWillBeShownSoon, map[string]any{
		"surface":  surfaceValue(s),
		"deadline": deadline.UnixMilli(),
	})
}

func (c *scriptClient) WillBeHiddenSoon() error {
	return c.hook(context.Background(), HookWillBeHiddenSoon, nil)
}

func (c *scriptClient) BeginFadeIn(deadline time.Time) error {
	return c.hook(context.Background(), HookBeginFadeIn, map[string]any{"deadline": deadline.UnixMilli()})
}

func (c *scriptClient) FinishFadeIn() error {
	return c.hook(context.Background(), HookFinishFadeIn, nil)
}

func (c *scriptClient) BeginFadeOut(deadline time.Time) error {
	return c.hook(context.Background(), HookBeginFadeOut, map[string]any{"deadline": deadline.UnixMilli()})
}

func (c *scriptClient) FinishFadeOut() error {
	return c.hook(context.Background(), HookFinishFadeOut, nil)
}

func (c *scriptClient) Draw(t, delta float64) error {
	return c.hook(context.Background(), HookDraw, map[string]any{"t": t, "delta": delta})
}

type scriptServer struct {
	*scriptInstance
}

func (s *scriptServer) Tick(t, delta float64) error {
	return s.hook(context.Background(), HookTick, map[string]any{"t": t, "delta": delta})
}

func (s *scriptServer) Dispose() error {
	return s.hook(context.Background(), HookDispose, nil)
}

func anyList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}

func stringList(v any) []string {
	var out []string
	for _, e := range anyList(v) {
		if s, ok := e.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if ss, ok := v.([]string); ok {
		out = append(out, ss...)
	}
	return out
}
