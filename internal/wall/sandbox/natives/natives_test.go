package natives

import (
	"log/slog"
	"testing"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	n := sandbox.NewNative()
	RegisterAll(n)
	assert.Equal(t, []string{Empty, Hello}, n.Names())

	l := sandbox.New(sandbox.WithRuntime(n))
	ctx, err := l.Load(t.Context(), EmptySource(), "empty")
	require.NoError(t, err)
	client, err := ctx.Client()(nil, nil)
	require.NoError(t, err)
	require.NoError(t, client.Draw(0, 0))
}

func TestHelloServerDrivesClient(t *testing.T) {
	t.Parallel()

	hub := network.NewHub()
	serverCh := hub.Open("hello")
	clientCh := hub.Open("hello")
	t.Cleanup(func() {
		require.NoError(t, serverCh.Close())
		require.NoError(t, clientCh.Close())
	})

	serverServices := capability.NewRegistry()
	serverServices.RegisterValue(capability.Network, serverCh)
	clientServices := capability.NewRegistry()
	clientServices.RegisterValue(capability.Network, clientCh)
	clientServices.RegisterValue(capability.Debug, slog.Default())

	server, err := NewHelloServer(map[string]any{"interval_ms": 100}, serverServices)
	require.NoError(t, err)
	client, err := NewHelloClient(nil, clientServices)
	require.NoError(t, err)
	hello := client.(*HelloClient)

	require.NoError(t, server.Tick(0, 0))
	require.NoError(t, server.Tick(50, 50))
	require.NoError(t, server.Tick(100, 50))

	assert.Eventually(t, func() bool {
		return hello.Color() == helloPalette[1]
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Draw(0, 16))
	assert.Equal(t, 1, hello.Frames())
}

func TestHelloNeedsNetwork(t *testing.T) {
	t.Parallel()

	_, err := NewHelloServer(nil, capability.NewRegistry())
	require.ErrorIs(t, err, capability.ErrUnknownCapability)
}
