package playback

import (
	"context"

	"github.com/tunedeck/tunedeck/internal/domain/track"
)

// Resolver turns a free-text query into a playable media handle.
// Implementations must be safe for concurrent use across chats.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*track.Handle, error)
}

// Transport streams audio into a chat's live voice session.
// Join/Play/Pause/Resume/Stop/Leave are expected to return quickly;
// completion is reported asynchronously through Events.
type Transport interface {
	Join(ctx context.Context, chatID string) error
	Play(ctx context.Context, chatID string, handle track.Handle) error
	Pause(ctx context.Context, chatID string) error
	Resume(ctx context.Context, chatID string) error
	Stop(ctx context.Context, chatID string) error
	Leave(ctx context.Context, chatID string) error

	// Events emits trackFinished / streamError notifications. The channel
	// is owned by the transport and closed on shutdown.
	Events() <-chan TransportEvent
}

// TransportEventKind represents an asynchronous transport event kind.
type TransportEventKind int

const (
	EventTrackFinished TransportEventKind = iota // Current stream played to the end
	EventStreamError                             // Current stream failed mid-flight
)

// String returns the string representation of the event kind.
func (k TransportEventKind) String() string {
	switch k {
	case EventTrackFinished:
		return "track_finished"
	case EventStreamError:
		return "stream_error"
	default:
		return "unknown"
	}
}

// TransportEvent is an out-of-band completion or error notification
// for one chat's stream.
type TransportEvent struct {
	ChatID string
	Kind   TransportEventKind
	Cause  error // set for EventStreamError
}

// Submitter posts a function onto a chat's serialized execution lane.
// Sessions use it to re-enter their own lane with async results.
type Submitter interface {
	Submit(chatID string, fn func())
}
