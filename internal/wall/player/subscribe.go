package player

import (
	"context"
	"fmt"

	"github.com/atlanticdynamic/lumenwall/internal/wall/module"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
)

// Subscribe feeds wire-encoded assignments published on
// network.AssignmentTopic into Assign until ctx is done or the returned
// channel is closed. Undecodable and rejected assignments are logged.
func (r *Runner) Subscribe(ctx context.Context, hub *network.Hub) *network.Channel {
	ch := hub.Open(network.AssignmentTopic)
	ch.On(network.AssignmentEvent, func(payload any) {
		a, err := decodePayload(payload)
		if err != nil {
			r.logger.Warn("Dropping undecodable assignment", "error", err)
			return
		}
		if err := r.Assign(ctx, a); err != nil {
			r.logger.Warn("Assignment rejected", "identity", a.Identity(), "error", err)
		}
	})
	return ch
}

func decodePayload(payload any) (module.Assignment, error) {
	switch p := payload.(type) {
	case []byte:
		return module.DecodeAssignment(p)
	case string:
		return module.DecodeAssignment([]byte(p))
	case module.Wire:
		return module.FromWire(p)
	default:
		return module.Assignment{}, fmt.Errorf("%w: unexpected payload %T", module.ErrInvalidWire, payload)
	}
}
