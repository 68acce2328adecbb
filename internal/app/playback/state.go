// Package playback provides the per-chat playback session state machine
// and its queue.
package playback

// State represents the playback session state.
type State int

const (
	StateIdle      State = iota // No track in flight (queue may still hold entries)
	StateResolving              // Head track is being resolved into a playable handle
	StatePlaying                // Transport is streaming the in-flight track
	StatePaused                 // Transport stream suspended, in-flight track retained
	StateStopping               // Queue being cleared and transport released
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// InFlight reports whether the state has a track being worked on.
// At most one track per session is ever in such a state.
func (s State) InFlight() bool {
	return s == StateResolving || s == StatePlaying || s == StatePaused
}
