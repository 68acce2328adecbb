package playback

import "github.com/tunedeck/tunedeck/internal/domain/track"

// NotificationType represents a playback notification type.
type NotificationType int

const (
	NotificationTrackStarted     NotificationType = iota // Track started streaming
	NotificationTrackFailed                              // Track dropped after resolve/transport failure
	NotificationTrackSkipped                             // Track was skipped
	NotificationStateChanged                             // Pause/resume
	NotificationQueueEmpty                               // Queue drained, session idle
	NotificationPlaybackStalled                          // Consecutive-failure limit reached
	NotificationJoinFailed                               // Voice session could not be joined
)

// String returns the string representation of the notification type.
func (n NotificationType) String() string {
	switch n {
	case NotificationTrackStarted:
		return "track_started"
	case NotificationTrackFailed:
		return "track_failed"
	case NotificationTrackSkipped:
		return "track_skipped"
	case NotificationStateChanged:
		return "state_changed"
	case NotificationQueueEmpty:
		return "queue_empty"
	case NotificationPlaybackStalled:
		return "playback_stalled"
	case NotificationJoinFailed:
		return "join_failed"
	default:
		return "unknown"
	}
}

// Notification is a playback event published to the outer command layer.
// The core has no knowledge of how these are rendered.
type Notification struct {
	Type   NotificationType
	ChatID string
	Track  *track.Ref // Affected track (nil for some types)
	State  State      // Session state after the event
	Cause  error      // Failure cause (nil for non-failure types)
}
