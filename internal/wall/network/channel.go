package network

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives the payload of one event.
type Handler func(payload any)

// AnyHandler receives every event delivered to a channel.
type AnyHandler func(event string, payload any)

type message struct {
	event   string
	payload any
	from    uint64
}

// Channel is one endpoint on a topic. Handlers run on the channel's own
// dispatch goroutine in delivery order, never on the emitter's goroutine.
type Channel struct {
	hub      *Hub
	topic    string
	id       uint64
	loopback bool
	logger   *slog.Logger

	inbox chan message
	done  chan struct{}
	wg    sync.WaitGroup

	mu          sync.RWMutex
	handlers    map[string][]Handler
	anyHandlers []AnyHandler

	closeOnce sync.Once
	closed    atomic.Bool

	emitted  atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// Topic returns the topic this channel is attached to.
func (c *Channel) Topic() string {
	return c.topic
}

// Emit sends an event to every other channel on the topic. It reports false
// when the channel is already closed.
func (c *Channel) Emit(event string, payload any) bool {
	if c.closed.Load() {
		c.dropped.Add(1)
		return false
	}
	c.emitted.Add(1)
	c.hub.publish(c, message{event: event, payload: payload, from: c.id})
	return true
}

// On registers a handler for one event name.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnAny registers a handler for every event.
func (c *Channel) OnAny(h AnyHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anyHandlers = append(c.anyHandlers, h)
}

// Close detaches the channel and waits for the dispatch goroutine to exit.
// Pending events are discarded. Close is safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.hub.detach(c)
		close(c.done)
		c.wg.Wait()
	})
	return nil
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	return c.closed.Load()
}

// Stats returns the delivery counters of this channel. Sent counts events
// emitted, Dropped counts events that could not be queued for this channel
// or were emitted after close.
func (c *Channel) Stats() Stats {
	return Stats{Sent: c.emitted.Load(), Dropped: c.dropped.Load()}
}

func (c *Channel) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.inbox:
			c.deliver(msg)
		}
	}
}

func (c *Channel) deliver(msg message) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[msg.event]...)
	anyHandlers := append([]AnyHandler(nil), c.anyHandlers...)
	c.mu.RUnlock()

	for _, h := range handlers {
		c.safeCall(msg.event, func() { h(msg.payload) })
	}
	for _, h := range anyHandlers {
		c.safeCall(msg.event, func() { h(msg.event, msg.payload) })
	}
}

func (c *Channel) safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Event handler panicked", "event", event, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
