package module

// Lifecycle states of a running module.
const (
	StateConstructed = "constructed"
	StateLoaded      = "loaded"
	StateWillShow    = "will_show"
	StateFadingIn    = "fading_in"
	StateVisible     = "visible"
	StateFadingOut   = "fading_out"
	StateDisposed    = "disposed"
	// StateFailed is the terminal state of an instance whose load or
	// preparation failed. It is disposed in every other respect.
	StateFailed = "failed"
)

var lifecycle = map[string][]string{
	StateConstructed: {StateLoaded, StateFailed, StateDisposed},
	StateLoaded:      {StateWillShow, StateFailed, StateDisposed},
	StateWillShow:    {StateFadingIn, StateFailed, StateDisposed},
	StateFadingIn:    {StateVisible, StateFadingOut, StateFailed, StateDisposed},
	StateVisible:     {StateFadingOut, StateFailed, StateDisposed},
	StateFadingOut:   {StateFailed, StateDisposed},
	StateDisposed:    {},
	StateFailed:      {},
}

// Terminal reports whether state is Disposed or Failed.
func Terminal(state string) bool {
	return state == StateDisposed || state == StateFailed
}
