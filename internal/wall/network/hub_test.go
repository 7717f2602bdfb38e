package network

import (
	"sync"
	"testing"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestInstanceTopic(t *testing.T) {
	t.Parallel()

	deadline := time.UnixMilli(1700000000123)
	topic := InstanceTopic(geometry.Rect{W: 3840, H: 1080}, deadline)
	assert.Equal(t, "0,0,3840,1080-1700000000123", topic)
	assert.Equal(t, topic+"/peer", PeerTopic(topic))
}

func TestEmitReachesOtherChannelsOnTopic(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	server := hub.Open("a")
	client := hub.Open("a")
	other := hub.Open("b")
	t.Cleanup(func() {
		require.NoError(t, server.Close())
		require.NoError(t, client.Close())
		require.NoError(t, other.Close())
	})

	got := &recorder{}
	client.On("color", func(p any) { got.add(p.(string)) })
	server.On("color", func(p any) { got.add("server:" + p.(string)) })
	other.On("color", func(p any) { got.add("other:" + p.(string)) })

	assert.True(t, server.Emit("color", "red"))

	assert.Eventually(t, func() bool {
		return len(got.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	// give stray deliveries a chance to show up
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"red"}, got.snapshot())
}

func TestLoopback(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch := hub.Open("self", WithLoopback())
	t.Cleanup(func() { require.NoError(t, ch.Close()) })

	got := &recorder{}
	ch.OnAny(func(event string, p any) { got.add(event) })
	ch.Emit("ping", nil)

	assert.Eventually(t, func() bool {
		return len(got.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEmitNeverBlocksOnFullInbox(t *testing.T) {
	t.Parallel()

	hub := NewHub(WithInboxSize(1))
	sender := hub.Open("t")
	receiver := hub.Open("t")
	t.Cleanup(func() {
		require.NoError(t, sender.Close())
		require.NoError(t, receiver.Close())
	})

	release := make(chan struct{})
	receiver.On("e", func(any) { <-release })

	done := make(chan struct{})
	go func() {
		for range 50 {
			sender.Emit("e", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
	close(release)
	assert.Positive(t, hub.Stats().Dropped)
}

func TestCloseIsIdempotentAndDetaches(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := hub.Open("t")
	b := hub.Open("t")
	assert.Equal(t, 2, hub.Subscribers("t"))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.True(t, a.Closed())
	assert.Equal(t, 1, hub.Subscribers("t"))
	assert.False(t, a.Emit("late", nil))

	require.NoError(t, b.Close())
	assert.Empty(t, hub.Topics())
}

func TestHandlerPanicIsContained(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sender := hub.Open("t")
	receiver := hub.Open("t")
	t.Cleanup(func() {
		require.NoError(t, sender.Close())
		require.NoError(t, receiver.Close())
	})

	got := &recorder{}
	receiver.On("e", func(p any) {
		if p == "bad" {
			panic("module bug")
		}
		got.add(p.(string))
	})

	sender.Emit("e", "bad")
	sender.Emit("e", "good")

	assert.Eventually(t, func() bool {
		return len(got.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}
