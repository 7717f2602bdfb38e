package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
)

const (
	luaRegServer = "lumenwall.server"
	luaRegClient = "lumenwall.client"
	luaRegLoaded = "lumenwall.loaded"
)

// luaHookInterval is the number of instructions between time limit checks.
const luaHookInterval = 1000

// globals removed from the base library
var luaUnsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"}

// LuaRuntime runs modules written in lua. Every context gets its own
// interpreter with only the base, string, table and math libraries.
type LuaRuntime struct {
	libs    map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

// NewLua returns the lua runtime.
func NewLua(opts ...LuaOption) *LuaRuntime {
	r := &LuaRuntime{
		libs:    luaHostLibraries,
		timeout: DefaultHookTimeout,
		logger:  slog.Default().WithGroup("sandbox.lua"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type LuaOption func(*LuaRuntime)

// WithLuaLogHandler sets the handler used for module debug output.
func WithLuaLogHandler(handler slog.Handler) LuaOption {
	return func(r *LuaRuntime) {
		r.logger = slog.New(handler).WithGroup("sandbox.lua")
	}
}

// WithLuaHookTimeout bounds every entry into module code: the initial run,
// constructors, hooks and network handlers.
func WithLuaHookTimeout(d time.Duration) LuaOption {
	return func(r *LuaRuntime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLuaLibrary makes an extra library available to require.
func WithLuaLibrary(name, code string) LuaOption {
	return func(r *LuaRuntime) {
		libs := make(map[string]string, len(r.libs)+1)
		for k, v := range r.libs {
			libs[k] = v
		}
		libs[name] = code
		r.libs = libs
	}
}

func (r *LuaRuntime) Name() string {
	return RuntimeLua
}

// Load runs code once. The code must call register(server, client) exactly
// once; client must be a table with a new(config, services) function and
// server must be nil or a table of the same shape.
func (r *LuaRuntime) Load(ctx context.Context, id string, code string) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lc := newLuaContext(id, r.libs, r.timeout, r.logger.With("context", id))
	if err := lc.run(ctx, code); err != nil {
		_ = lc.close()
		return nil, err
	}

	loaded := &Loaded{Client: lc.newClient, Close: lc.close}
	if lc.hasServer {
		loaded.Server = lc.newServer
	}
	return loaded, nil
}

// luaContext owns one interpreter. Every entry into the interpreter holds mu,
// including network callbacks, so module code never runs concurrently.
type luaContext struct {
	id      string
	libs    map[string]string
	timeout time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	state      *lua.State
	closed     bool
	registered bool
	hasServer  bool
	nextRef    int

	// limits of the call in progress, read by the count hook
	callCtx  context.Context
	deadline time.Time
	expired  error
}

func newLuaContext(id string, libs map[string]string, timeout time.Duration, logger *slog.Logger) *luaContext {
	l := lua.NewState()
	for _, lib := range []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "table", Function: lua.TableOpen},
		{Name: "math", Function: lua.MathOpen},
	} {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range luaUnsafeGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.NewTable()
	l.SetField(lua.RegistryIndex, luaRegLoaded)

	c := &luaContext{id: id, libs: libs, timeout: timeout, logger: logger, state: l}
	lua.SetDebugHook(l, c.checkLimits, lua.MaskCount, luaHookInterval)
	l.PushGoFunction(c.register)
	l.SetGlobal("register")
	l.PushGoFunction(c.require)
	l.SetGlobal("require")
	return c
}

func (c *luaContext) register(l *lua.State) int {
	if c.registered {
		lua.Errorf(l, "register called more than once")
		return 0
	}
	c.registered = true
	l.SetTop(2)
	l.PushValue(1)
	l.SetField(lua.RegistryIndex, luaRegServer)
	l.PushValue(2)
	l.SetField(lua.RegistryIndex, luaRegClient)
	return 0
}

func (c *luaContext) require(l *lua.State) int {
	name := lua.CheckString(l, 1)

	l.Field(lua.RegistryIndex, luaRegLoaded)
	l.Field(-1, name)
	if !isNil(l, -1) {
		return 1
	}
	l.Pop(2)

	src, ok := c.libs[name]
	if !ok {
		lua.Errorf(l, "module '%s' is not available", name)
		return 0
	}
	if err := lua.LoadBuffer(l, src, "="+name, ""); err != nil {
		lua.Errorf(l, "module '%s' failed to load: %s", name, err.Error())
		return 0
	}
	l.Call(0, 1)
	if isNil(l, -1) {
		l.Pop(1)
		l.PushBoolean(true)
	}

	l.Field(lua.RegistryIndex, luaRegLoaded)
	l.PushValue(-2)
	l.SetField(-2, name)
	l.Pop(1)
	return 1
}

// checkLimits raises a lua error once the call in progress is cancelled or
// past its deadline. Runs with mu held.
func (c *luaContext) checkLimits(l *lua.State, _ lua.Debug) {
	if c.deadline.IsZero() {
		return
	}
	if c.callCtx != nil {
		if err := c.callCtx.Err(); err != nil {
			c.expired = err
			lua.Errorf(l, "%s", err.Error())
			return
		}
	}
	if time.Now().After(c.deadline) {
		c.expired = fmt.Errorf("%w (%s)", ErrHookTimeout, c.timeout)
		lua.Errorf(l, "%s", c.expired.Error())
	}
}

// protectedCall runs the function on the stack under the context's time
// limit and ctx. Called with mu held.
func (c *luaContext) protectedCall(ctx context.Context, args, results int) error {
	c.callCtx = ctx
	c.deadline = time.Now().Add(c.timeout)
	c.expired = nil
	defer func() {
		c.callCtx = nil
		c.deadline = time.Time{}
	}()

	if err := c.state.ProtectedCall(args, results, 0); err != nil {
		if c.expired != nil {
			return c.expired
		}
		return c.errorAt(err)
	}
	return nil
}

func (c *luaContext) run(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.state
	top := l.Top()
	defer l.SetTop(top)

	if err := lua.LoadBuffer(l, code, "="+c.id, ""); err != nil {
		return fmt.Errorf("syntax error: %w", c.errorAt(err))
	}
	if err := c.protectedCall(ctx, 0, 0); err != nil {
		return err
	}

	if !c.registered {
		return fmt.Errorf("%w: register was never called", ErrMalformedModule)
	}
	if err := c.checkBehavior(luaRegClient, "client", true); err != nil {
		return err
	}
	return c.checkBehavior(luaRegServer, "server", false)
}

func (c *luaContext) checkBehavior(key, role string, required bool) error {
	l := c.state
	l.Field(lua.RegistryIndex, key)
	defer l.Pop(1)

	switch l.TypeOf(-1) {
	case lua.TypeNil, lua.TypeNone:
		if required {
			return fmt.Errorf("%w: %s behavior is missing", ErrMalformedModule, role)
		}
		return nil
	case lua.TypeTable:
		l.Field(-1, "new")
		isFunc := l.TypeOf(-1) == lua.TypeFunction
		l.Pop(1)
		if !isFunc {
			return fmt.Errorf("%w: %s behavior has no new(config, services) constructor", ErrMalformedModule, role)
		}
		if role == "server" {
			c.hasServer = true
		}
		return nil
	default:
		return fmt.Errorf("%w: %s behavior must be a table, got %s", ErrMalformedModule, role, lua.TypeNameOf(l, -1))
	}
}

// errorAt reads the error object left on the stack by a failed call.
func (c *luaContext) errorAt(err error) error {
	if msg, ok := c.state.ToString(-1); ok && msg != "" {
		return errors.New(msg)
	}
	return err
}

func (c *luaContext) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = nil
	return nil
}

// construct calls behavior.new(config, services) and pins the returned
// instance in the registry under a fresh key.
func (c *luaContext) construct(key string, config map[string]any, services capability.Locator) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrContextClosed
	}

	l := c.state
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, key)
	l.Field(-1, "new")
	if config == nil {
		config = map[string]any{}
	}
	pushValue(l, config, 0)
	c.pushServices(l, services)
	if err := c.protectedCall(context.Background(), 2, 1); err != nil {
		return "", err
	}
	if l.TypeOf(-1) != lua.TypeTable {
		return "", fmt.Errorf("constructor returned %s, not a table", lua.TypeNameOf(l, -1))
	}

	c.nextRef++
	ref := fmt.Sprintf("lumenwall.instance.%d", c.nextRef)
	l.PushValue(-1)
	l.SetField(lua.RegistryIndex, ref)
	return ref, nil
}

// call invokes instance:method(args...). A missing method is a no-op.
func (c *luaContext) call(ctx context.Context, ref, method string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}

	l := c.state
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, ref)
	if l.TypeOf(-1) != lua.TypeTable {
		return fmt.Errorf("instance %s is not available", ref)
	}
	l.Field(-1, method)
	if l.TypeOf(-1) != lua.TypeFunction {
		return nil
	}
	l.PushValue(-2)
	for _, arg := range args {
		pushValue(l, arg, 0)
	}
	if err := c.protectedCall(ctx, len(args)+1, 0); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// dispatch runs a network handler stored under key.
func (c *luaContext) dispatch(key string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	l := c.state
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, key)
	if l.TypeOf(-1) != lua.TypeFunction {
		return
	}
	pushValue(l, payload, 0)
	if err := c.protectedCall(context.Background(), 1, 0); err != nil {
		c.logger.Warn("Network handler failed", "error", err)
	}
}

func (c *luaContext) newClient(config map[string]any, services capability.Locator) (behavior.Client, error) {
	ref, err := c.construct(luaRegClient, config, services)
	if err != nil {
		return nil, fmt.Errorf("client constructor: %w", err)
	}
	return &luaClient{ctx: c, ref: ref}, nil
}

func (c *luaContext) newServer(config map[string]any, services capability.Locator) (behavior.Server, error) {
	ref, err := c.construct(luaRegServer, config, services)
	if err != nil {
		return nil, fmt.Errorf("server constructor: %w", err)
	}
	return &luaServer{ctx: c, ref: ref}, nil
}

type luaClient struct {
	ctx *luaContext
	ref string
}

func (c *luaClient) WillBeShownSoon(ctx context.Context, s surface.Surface, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ctx.call(ctx, c.ref, "willBeShownSoon", surfaceValue(s), deadline)
}

func (c *luaClient) WillBeHiddenSoon() error {
	return c.ctx.call(context.Background(), c.ref, "willBeHiddenSoon")
}

func (c *luaClient) BeginFadeIn(deadline time.Time) error {
	return c.ctx.call(context.Background(), c.ref, "beginFadeIn", deadline)
}

func (c *luaClient) FinishFadeIn() error {
	return c.ctx.call(context.Background(), c.ref, "finishFadeIn")
}

func (c *luaClient) BeginFadeOut(deadline time.Time) error {
	return c.ctx.call(context.Background(), c.ref, "beginFadeOut", deadline)
}

func (c *luaClient) FinishFadeOut() error {
	return c.ctx.call(context.Background(), c.ref, "finishFadeOut")
}

func (c *luaClient) Draw(t, delta float64) error {
	return c.ctx.call(context.Background(), c.ref, "draw", t, delta)
}

type luaServer struct {
	ctx *luaContext
	ref string
}

func (s *luaServer) Tick(t, delta float64) error {
	return s.ctx.call(context.Background(), s.ref, "tick", t, delta)
}

func (s *luaServer) Dispose() error {
	return s.ctx.call(context.Background(), s.ref, "dispose")
}

func surfaceValue(s surface.Surface) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	r := s.Rect()
	return map[string]any{
		"id":     s.ID(),
		"module": s.ModuleName(),
		"x":      r.X,
		"y":      r.Y,
		"width":  r.W,
		"height": r.H,
	}
}

func isNil(l *lua.State, index int) bool {
	t := l.TypeOf(index)
	return t == lua.TypeNil || t == lua.TypeNone
}
