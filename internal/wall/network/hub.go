// Package network routes events between the server and client halves of a
// module. Every running module opens its own topic so that two instances
// loaded at the same time, such as an outgoing and an incoming module
// during a cross-fade, never see each other's traffic.
package network

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/geometry"
)

// AssignmentTopic carries wire-encoded playlist assignments to every node.
const AssignmentTopic = "wall:assignments"

// AssignmentEvent carries one wire-encoded assignment on AssignmentTopic.
const AssignmentEvent = "assign"

const defaultInboxSize = 64

// InstanceTopic names the topic of one module instance. The wall extents and
// the deadline together identify the instance across every node.
func InstanceTopic(extents geometry.Rect, deadline time.Time) string {
	return extents.Serialize() + "-" + strconv.FormatInt(deadline.UnixMilli(), 10)
}

// PeerTopic names the client-to-client topic paired with an instance topic.
func PeerTopic(topic string) string {
	return topic + "/peer"
}

// Stats counts deliveries on a hub or channel.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Hub is an in-process event router keyed by topic. Emits never block: a
// message for a subscriber whose inbox is full is dropped and counted.
type Hub struct {
	mu        sync.RWMutex
	topics    map[string]map[*Channel]struct{}
	logger    *slog.Logger
	inboxSize int
	nextID    atomic.Uint64

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics:    make(map[string]map[*Channel]struct{}),
		logger:    slog.Default().WithGroup("network.Hub"),
		inboxSize: defaultInboxSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open attaches a new channel to topic. The channel must be closed by the
// caller once it is no longer needed.
func (h *Hub) Open(topic string, opts ...ChannelOption) *Channel {
	c := &Channel{
		hub:      h,
		topic:    topic,
		id:       h.nextID.Add(1),
		inbox:    make(chan message, h.inboxSize),
		done:     make(chan struct{}),
		handlers: make(map[string][]Handler),
		logger:   h.logger.With("topic", topic),
	}
	for _, opt := range opts {
		opt(c)
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Channel]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	h.mu.Unlock()

	c.wg.Add(1)
	go c.dispatch()
	return c
}

// Topics lists topics with at least one open channel.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.topics))
	for topic := range h.topics {
		out = append(out, topic)
	}
	return out
}

// Subscribers is the number of open channels on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Stats returns hub-wide delivery counters.
func (h *Hub) Stats() Stats {
	return Stats{Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

func (h *Hub) publish(from *Channel, msg message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.topics[from.topic] {
		if sub == from && !from.loopback {
			continue
		}
		select {
		case sub.inbox <- msg:
			sub.received.Add(1)
			h.sent.Add(1)
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
			h.logger.Debug("Inbox full, dropping event", "topic", from.topic, "event", msg.event)
		}
	}
}

func (h *Hub) detach(c *Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[c.topic]
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, c.topic)
	}
}
