// Package monitor carries playback snapshots from the scheduler to whatever
// watches the wall: logs, the status API and the history database.
package monitor

import (
	"log/slog"
	"time"
)

// Snapshot is the playback state of one node at one moment.
type Snapshot struct {
	Node       string    `json:"node"`
	ModuleName string    `json:"module"`
	Identity   string    `json:"identity"`
	Deadline   time.Time `json:"deadline"`
	State      string    `json:"state"`
	Failures   int       `json:"failures"`
	LastError  string    `json:"lastError,omitempty"`
	Time       time.Time `json:"time"`
}

// Changed reports whether s differs from prev in anything but Time.
func (s Snapshot) Changed(prev Snapshot) bool {
	return s.Identity != prev.Identity ||
		s.State != prev.State ||
		s.Failures != prev.Failures ||
		s.LastError != prev.LastError
}

// Sink receives snapshots. Update must not block for long; wrap slow sinks
// in Async.
type Sink interface {
	Update(Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) Update(s Snapshot) { f(s) }

// Nop discards snapshots.
type Nop struct{}

func (Nop) Update(Snapshot) {}

// Multi fans a snapshot out to several sinks. A panicking sink is logged and
// does not stop the others.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sinks: sinks, logger: logger.WithGroup("monitor.Multi")}
}

func (m *Multi) Update(s Snapshot) {
	for _, sink := range m.sinks {
		Deliver(m.logger, sink, s)
	}
}

// Deliver calls sink.Update, recovering a panic into a log line.
func Deliver(logger *slog.Logger, sink Sink, s Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Monitoring sink panicked", "panic", r, "node", s.Node)
		}
	}()
	sink.Update(s)
}
