package player

import "errors"

var (
	// ErrDeadlineRewind rejects an assignment whose deadline is not after
	// the last deadline seen for the same module.
	ErrDeadlineRewind = errors.New("deadline is not after the previous deadline for this module")

	// ErrPlaceholder means the empty module could not be shown. Playback
	// cannot continue without it.
	ErrPlaceholder = errors.New("failed to show the empty module")

	ErrNotRunning = errors.New("player is not running")
)
