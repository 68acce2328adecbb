package playback

import "github.com/cockroachdb/errors"

// Errors surfaced to the command layer.
var (
	ErrNoTrack       = errors.New("no track playing")
	ErrNotPlaying    = errors.New("not playing")
	ErrNotPaused     = errors.New("not paused")
	ErrSessionClosed = errors.New("session closed")
)
