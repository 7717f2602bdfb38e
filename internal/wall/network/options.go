package network

import "log/slog"

type HubOption func(*Hub)

// WithLogHandler sets the log handler used by the hub and its channels.
func WithLogHandler(handler slog.Handler) HubOption {
	return func(h *Hub) {
		h.logger = slog.New(handler).WithGroup("network.Hub")
	}
}

// WithInboxSize sets the per-channel queue length. Values below one are
// ignored.
func WithInboxSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.inboxSize = size
		}
	}
}

type ChannelOption func(*Channel)

// WithLoopback makes a channel receive its own emits.
func WithLoopback() ChannelOption {
	return func(c *Channel) {
		c.loopback = true
	}
}
