//go:build e2e

package wall

import (
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleWallPlays(t *testing.T) {
	w := startExampleWall(t)

	require.Eventually(t, func() bool {
		return w.showing("hello", "left", "right")
	}, 15*time.Second, 50*time.Millisecond, "both nodes should show the first playlist entry")

	resp, err := http.Get("http://" + w.listen + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	left, err := w.status("left")
	require.NoError(t, err)
	right, err := w.status("right")
	require.NoError(t, err)
	assert.Equal(t, left.Identity, right.Identity, "nodes play the same assignment")
	assert.Zero(t, left.Failures)
}

// TestReloadOnHangup keeps only the last playlist entry and sends SIGHUP. The
// supervisor reloads the playlist, which cuts the current entry short.
func TestReloadOnHangup(t *testing.T) {
	w := startExampleWall(t)

	require.Eventually(t, func() bool {
		return w.showing("hello", "left", "right")
	}, 15*time.Second, 50*time.Millisecond)

	data, err := os.ReadFile(w.configPath)
	require.NoError(t, err)
	text := string(data)
	first := strings.Index(text, "[[modules]]")
	last := strings.LastIndex(text, "[[modules]]")
	require.Greater(t, last, first)
	require.NoError(t, os.WriteFile(w.configPath, []byte(text[:first]+text[last:]), 0o644))

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	require.Eventually(t, func() bool {
		return w.showing("counter", "left", "right")
	}, 15*time.Second, 50*time.Millisecond, "reload should switch to the new playlist")
}
