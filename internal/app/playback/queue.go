package playback

import "github.com/tunedeck/tunedeck/internal/domain/track"

// Queue is the ordered sequence of track references for one chat.
// Insertion order is playback order. The head entry may be marked
// in-flight; it stays at the head until playback for it terminates.
//
// A Queue is owned exclusively by its Session and is not safe for
// concurrent use on its own.
type Queue struct {
	items    []track.Ref
	inFlight bool
}

// Enqueue appends a track to the tail and returns the new queue length.
func (q *Queue) Enqueue(ref track.Ref) int {
	q.items = append(q.items, ref)
	return len(q.items)
}

// PeekNext returns the first track that is not in flight.
func (q *Queue) PeekNext() (track.Ref, bool) {
	idx := 0
	if q.inFlight {
		idx = 1
	}
	if idx >= len(q.items) {
		return track.Ref{}, false
	}
	return q.items[idx], true
}

// MarkInFlight marks the head entry as the one being resolved or played.
// Returns false if the queue is empty or a track is already in flight.
func (q *Queue) MarkInFlight() bool {
	if q.inFlight || len(q.items) == 0 {
		return false
	}
	q.inFlight = true
	return true
}

// Unmark clears the in-flight marker without removing the head,
// returning the track to the front of the pending queue.
func (q *Queue) Unmark() {
	q.inFlight = false
}

// InFlight returns the in-flight head entry, if any. The pointer is only
// valid until the next mutation.
func (q *Queue) InFlight() (*track.Ref, bool) {
	if !q.inFlight || len(q.items) == 0 {
		return nil, false
	}
	return &q.items[0], true
}

// AttachHandle attaches a resolved media handle to the in-flight head.
func (q *Queue) AttachHandle(h *track.Handle) bool {
	if !q.inFlight || len(q.items) == 0 {
		return false
	}
	q.items[0].Handle = h
	return true
}

// RemoveHead removes the in-flight head entry. It is a no-op returning
// false when nothing is in flight.
func (q *Queue) RemoveHead() bool {
	if !q.inFlight || len(q.items) == 0 {
		return false
	}
	q.items = q.items[1:]
	q.inFlight = false
	return true
}

// Clear removes all entries, including the in-flight one, and returns
// the number removed.
func (q *Queue) Clear() int {
	n := len(q.items)
	q.items = nil
	q.inFlight = false
	return n
}

// Snapshot returns a copy of the first limit entries for display.
// A limit <= 0 returns all entries. Mutating the result does not
// affect the queue.
func (q *Queue) Snapshot(limit int) []track.Ref {
	n := len(q.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]track.Ref, n)
	copy(out, q.items[:n])
	return out
}

// Len returns the number of entries, including the in-flight one.
func (q *Queue) Len() int {
	return len(q.items)
}
