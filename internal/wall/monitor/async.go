package monitor

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 32

// Async hands snapshots to a wrapped sink on its own goroutine. When the
// queue is full the snapshot is dropped and counted.
type Async struct {
	next    Sink
	queue   chan Snapshot
	logger  *slog.Logger
	dropped atomic.Uint64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAsync starts the worker. A size below 1 uses the default.
func NewAsync(next Sink, size int, logger *slog.Logger) *Async {
	if size < 1 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:   next,
		queue:  make(chan Snapshot, size),
		logger: logger.WithGroup("monitor.Async"),
		done:   make(chan struct{}),
	}
	go a.work()
	return a
}

func (a *Async) work() {
	defer close(a.done)
	for s := range a.queue {
		Deliver(a.logger, a.next, s)
	}
}

// Update enqueues s without blocking.
func (a *Async) Update(s Snapshot) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- s:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of snapshots that never reached the wrapped sink.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting snapshots and waits for the queue to drain.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}
