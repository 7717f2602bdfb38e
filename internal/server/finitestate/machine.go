// Package finitestate wraps go-fsm for the runnables and module instances
// of the wall. Runnables use the typical supervisor statuses; module
// instances bring their own transition table.
package finitestate

import (
	"context"
	"log/slog"
	"time"

	"github.com/robbyt/go-fsm"
)

const (
	StatusNew       = fsm.StatusNew
	StatusBooting   = fsm.StatusBooting
	StatusRunning   = fsm.StatusRunning
	StatusReloading = fsm.StatusReloading
	StatusStopping  = fsm.StatusStopping
	StatusStopped   = fsm.StatusStopped
	StatusError     = fsm.StatusError
	StatusUnknown   = fsm.StatusUnknown
)

// TypicalTransitions is the transition table used by every runnable.
var TypicalTransitions = fsm.TypicalTransitions

// SubscriberOption configures a state channel.
type SubscriberOption = fsm.SubscriberOption

// WithSyncTimeout makes state broadcasts wait up to the timeout for a reader.
var WithSyncTimeout = fsm.WithSyncTimeout

// broadcastTimeout keeps shutdown states from being dropped by slow readers.
const broadcastTimeout = 5 * time.Second

// Machine is the subset of go-fsm used here.
type Machine interface {
	Transition(state string) error
	TransitionBool(state string) bool
	TransitionIfCurrentState(currentState, newState string) error
	SetState(state string) error
	GetState() string
	// GetStateChan emits the state on every change until ctx is cancelled.
	GetStateChan(ctx context.Context) <-chan string
	GetStateChanWithOptions(ctx context.Context, opts ...SubscriberOption) <-chan string
}

type syncMachine struct {
	*fsm.Machine
}

func (m *syncMachine) GetStateChan(ctx context.Context) <-chan string {
	return m.GetStateChanWithOptions(ctx, WithSyncTimeout(broadcastTimeout))
}

// New returns a runnable state machine starting at StatusNew.
func New(handler slog.Handler) (Machine, error) {
	return NewMachine(handler, StatusNew, TypicalTransitions)
}

// NewMachine returns a state machine with a custom transition table.
func NewMachine(handler slog.Handler, initial string, transitions map[string][]string) (Machine, error) {
	machine, err := fsm.New(handler, initial, transitions)
	if err != nil {
		return nil, err
	}
	return &syncMachine{Machine: machine}, nil
}
