package testutil

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRandomPortUnique(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			p := GetRandomPort(t)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[p], "port %d handed out twice", p)
			seen[p] = true
		})
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestGetRandomListeningPort(t *testing.T) {
	t.Parallel()

	addr := GetRandomListeningPort(t)
	l, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestThreadSafeBuffer(t *testing.T) {
	t.Parallel()

	var buf ThreadSafeBuffer
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			_, _ = fmt.Fprintf(&buf, "line %d\n", i)
		})
	}
	wg.Wait()
	assert.Len(t, buf.Lines(), 10)

	buf.Reset()
	assert.Empty(t, buf.String())
	assert.Empty(t, buf.Lines())
}
