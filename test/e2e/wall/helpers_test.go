//go:build e2e

package wall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlanticdynamic/lumenwall/cmd/lumenwall/server"
	"github.com/atlanticdynamic/lumenwall/examples"
	"github.com/atlanticdynamic/lumenwall/internal/config"
	"github.com/atlanticdynamic/lumenwall/internal/testutil"
	"github.com/atlanticdynamic/lumenwall/internal/wall/monitor"
	"github.com/stretchr/testify/require"
)

type runningWall struct {
	listen     string
	configPath string
	logs       *testutil.ThreadSafeBuffer
	cancel     context.CancelFunc
	done       chan error
}

// startExampleWall runs the example wall config with its status API on a
// free port.
func startExampleWall(t *testing.T) *runningWall {
	t.Helper()

	data, err := examples.Configs.ReadFile("config/wall.toml")
	require.NoError(t, err)

	w := &runningWall{
		listen:     testutil.GetRandomListeningPort(t),
		configPath: filepath.Join(t.TempDir(), "wall.toml"),
		logs:       &testutil.ThreadSafeBuffer{},
		done:       make(chan error, 1),
	}
	require.NoError(t, os.WriteFile(w.configPath, data, 0o644))
	t.Setenv("LUMENWALL_EXAMPLE_LISTEN", w.listen)

	cfg, err := config.NewConfig(w.configPath)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(w.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(t.Context())
	w.cancel = cancel
	go func() { w.done <- server.Run(ctx, logger, cfg, w.configPath) }()

	t.Cleanup(func() {
		w.stop(t)
		if t.Failed() {
			t.Logf("wall logs:\n%s", w.logs.String())
		}
	})
	return w
}

func (w *runningWall) stop(t *testing.T) {
	t.Helper()
	w.cancel()
	select {
	case <-w.done:
	case <-time.After(15 * time.Second):
		t.Error("wall did not shut down")
	}
}

func (w *runningWall) status(node string) (monitor.Snapshot, error) {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/status/%s", w.listen, node))
	if err != nil {
		return monitor.Snapshot{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return monitor.Snapshot{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var snap monitor.Snapshot
	err = json.NewDecoder(resp.Body).Decode(&snap)
	return snap, err
}

// showing reports whether every node has module visible.
func (w *runningWall) showing(module string, nodes ...string) bool {
	for _, n := range nodes {
		snap, err := w.status(n)
		if err != nil || snap.ModuleName != module || snap.State != "visible" {
			return false
		}
	}
	return true
}
