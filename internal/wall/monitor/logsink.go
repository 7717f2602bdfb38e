package monitor

import "log/slog"

// LogSink writes every snapshot as a debug line, and failures as warnings.
type LogSink struct {
	logger *slog.Logger
	last   map[string]Snapshot
}

func NewLogSink(handler slog.Handler) *LogSink {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &LogSink{
		logger: slog.New(handler).WithGroup("monitor"),
		last:   make(map[string]Snapshot),
	}
}

// Update is not safe for concurrent use; put it behind Async or Multi.
func (l *LogSink) Update(s Snapshot) {
	prev, seen := l.last[s.Node]
	l.last[s.Node] = s

	attrs := []any{
		"node", s.Node,
		"identity", s.Identity,
		"state", s.State,
		"failures", s.Failures,
	}
	if seen && s.Failures > prev.Failures {
		l.logger.Warn("Module failure reported", append(attrs, "error", s.LastError)...)
		return
	}
	l.logger.Debug("Playback snapshot", attrs...)
}
