// Package notification provides the notification manager for broadcasting
// playback events to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunedeck/tunedeck/internal/app/playback"
)

// sendTimeout bounds how long a single subscriber may block a delivery.
const sendTimeout = 500 * time.Millisecond

// Envelope wraps a playback notification with a global sequence number.
type Envelope struct {
	SequenceNo   uint64
	Notification playback.Notification
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Envelope) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Publish assigns a sequence number to the notification and fans it out
// to all subscribers. Sequence numbers are assigned in call order;
// delivery itself runs in the background so callers never block on a
// slow subscriber.
func (m *Manager) Publish(n playback.Notification) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	env := Envelope{SequenceNo: m.sequenceNo, Notification: n}
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		go func(s *subscription) {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(env)
			}()

			select {
			case err := <-done:
				if err != nil {
					// Error is silently ignored - subscription will be cleaned up on next failure
				}
			case <-ctx.Done():
				// Timeout - continue to next subscriber
			}
		}(sub)
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
