package monitor

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(node, identity, state string, failures int) Snapshot {
	return Snapshot{
		Node:       node,
		ModuleName: "rings",
		Identity:   identity,
		Deadline:   time.UnixMilli(1772366405000),
		State:      state,
		Failures:   failures,
		Time:       time.UnixMilli(1772366406000),
	}
}

func TestSnapshotChanged(t *testing.T) {
	t.Parallel()

	a := snap("left", "rings@1", "visible", 0)
	b := a
	b.Time = b.Time.Add(time.Second)
	assert.False(t, a.Changed(b), "time alone is not a change")

	b.State = "fading_out"
	assert.True(t, a.Changed(b))
}

func TestMultiContainsPanics(t *testing.T) {
	t.Parallel()

	var got []Snapshot
	m := NewMulti(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		SinkFunc(func(Snapshot) { panic("sink broke") }),
		Nop{},
		SinkFunc(func(s Snapshot) { got = append(got, s) }),
	)

	assert.NotPanics(t, func() { m.Update(snap("left", "a@1", "visible", 0)) })
	require.Len(t, got, 1)
	assert.Equal(t, "left", got[0].Node)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var delivered []string

	a := NewAsync(SinkFunc(func(s Snapshot) {
		once.Do(func() {
			close(started)
			<-release
		})
		mu.Lock()
		delivered = append(delivered, s.Identity)
		mu.Unlock()
	}), 1, nil)

	a.Update(snap("left", "first", "visible", 0))
	<-started
	a.Update(snap("left", "second", "visible", 0))
	a.Update(snap("left", "third", "visible", 0))
	assert.Equal(t, uint64(1), a.Dropped())

	close(release)
	a.Close()
	a.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, delivered)

	a.Update(snap("left", "late", "visible", 0))
	assert.Equal(t, uint64(2), a.Dropped())
}

func TestStore(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Update(snap("right", "a@1", "visible", 0))
	s.Update(snap("left", "a@1", "visible", 0))
	s.Update(snap("left", "b@2", "fading_in", 0))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "left", all[0].Node)
	assert.Equal(t, "b@2", all[0].Identity)
	assert.Equal(t, "right", all[1].Node)

	_, ok := s.Get("center")
	assert.False(t, ok)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewLogSink(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	l.Update(snap("left", "a@1", "visible", 0))
	assert.Empty(t, buf.String())

	failed := snap("left", "a@1", "visible", 1)
	failed.LastError = "draw exploded"
	l.Update(failed)
	assert.Contains(t, buf.String(), "Module failure reported")
	assert.Contains(t, buf.String(), "draw exploded")
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.Update(snap("left", "rings@1772366405000", "visible", 2))
	srv, err := NewServer("127.0.0.1:0", store)
	require.NoError(t, err)
	assert.Equal(t, "monitor.Server[127.0.0.1:0]", srv.String())

	tests := []struct {
		name       string
		path       string
		wantStatus int
		check      func(t *testing.T, body []byte)
	}{
		{
			name:       "all nodes",
			path:       "/api/status",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				t.Helper()
				var got []Snapshot
				require.NoError(t, json.Unmarshal(body, &got))
				require.Len(t, got, 1)
				assert.Equal(t, 2, got[0].Failures)
			},
		},
		{
			name:       "one node",
			path:       "/api/status/left",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				t.Helper()
				var got Snapshot
				require.NoError(t, json.Unmarshal(body, &got))
				assert.Equal(t, "rings@1772366405000", got.Identity)
			},
		},
		{
			name:       "unknown node",
			path:       "/api/status/center",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "health",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Contains(t, string(body), `"status":"ok"`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.check != nil {
				tt.check(t, rec.Body.Bytes())
			}
		})
	}
}
