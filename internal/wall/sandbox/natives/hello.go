package natives

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
)

// ColorEvent is emitted by the hello server whenever its color changes.
const ColorEvent = "color"

var helloPalette = []string{"#ff5f5f", "#5fafff", "#5fff87", "#ffd75f", "#d787ff"}

// HelloServer cycles through a palette and broadcasts the current color.
type HelloServer struct {
	behavior.BaseServer
	ch       *network.Channel
	interval float64
	last     float64
	index    int
}

// NewHelloServer builds the hello server. config["interval_ms"] sets how
// often the color changes.
func NewHelloServer(config map[string]any, services capability.Locator) (behavior.Server, error) {
	ch, err := capability.As[*network.Channel](services, capability.Network)
	if err != nil {
		return nil, err
	}
	interval := float64(time.Second / time.Millisecond)
	if v, ok := config["interval_ms"]; ok {
		if f, ok := toFloat(v); ok && f > 0 {
			interval = f
		}
	}
	return &HelloServer{ch: ch, interval: interval, index: -1}, nil
}

func (s *HelloServer) Tick(t, _ float64) error {
	if s.index >= 0 && t-s.last < s.interval {
		return nil
	}
	s.last = t
	s.index = (s.index + 1) % len(helloPalette)
	s.ch.Emit(ColorEvent, helloPalette[s.index])
	return nil
}

// HelloClient remembers the last color announced by the server.
type HelloClient struct {
	behavior.BaseClient
	logger *slog.Logger

	mu     sync.Mutex
	color  string
	frames int
}

func NewHelloClient(_ map[string]any, services capability.Locator) (behavior.Client, error) {
	ch, err := capability.As[*network.Channel](services, capability.Network)
	if err != nil {
		return nil, err
	}
	logger, err := capability.As[*slog.Logger](services, capability.Debug)
	if err != nil {
		logger = slog.Default()
	}

	c := &HelloClient{logger: logger, color: helloPalette[0]}
	ch.On(ColorEvent, func(payload any) {
		color := fmt.Sprint(payload)
		c.mu.Lock()
		c.color = color
		c.mu.Unlock()
		c.logger.Debug("Color changed", "color", color)
	})
	return c, nil
}

func (c *HelloClient) Draw(float64, float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	return nil
}

// Color returns the last color received.
func (c *HelloClient) Color() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.color
}

// Frames returns the number of frames drawn.
func (c *HelloClient) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
