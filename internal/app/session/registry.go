// Package session provides per-chat session lifecycle and the
// command-level facade over playback.
package session

import (
	"sync"

	"github.com/tunedeck/tunedeck/internal/app/playback"
)

// Registry maps chat IDs to their playback sessions. Lookups and
// creation are safe for concurrent use; exactly one session exists per
// chat at any time.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*playback.Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*playback.Session)}
}

// GetOrCreate returns the session for chatID, creating it with create
// when absent. The second result is true when a new session was created.
// create runs under the registry lock so concurrent callers observe the
// same session.
func (r *Registry) GetOrCreate(chatID string, create func() *playback.Session) (*playback.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[chatID]; ok {
		return sess, false
	}
	sess := create()
	r.sessions[chatID] = sess
	return sess, true
}

// Get returns the session for chatID, if any.
func (r *Registry) Get(chatID string) (*playback.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[chatID]
	return sess, ok
}

// Remove unregisters the session for chatID.
func (r *Registry) Remove(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, chatID)
}

// RemoveIf unregisters chatID only while it still maps to sess. Returns
// true when the entry was removed.
func (r *Registry) RemoveIf(chatID string, sess *playback.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[chatID]; !ok || cur != sess {
		return false
	}
	delete(r.sessions, chatID)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ChatIDs returns the chat IDs with a registered session.
func (r *Registry) ChatIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
