// Package dispatch serializes stimuli per chat while letting different
// chats proceed fully in parallel.
package dispatch

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// mailboxSize bounds how many stimuli may be queued per chat before
// submitters block. Order is preserved either way.
const mailboxSize = 64

// Dispatcher owns one mailbox goroutine per chat. Functions submitted for
// the same chat run in arrival order and never concurrently; functions for
// different chats run independently. This is what lets the playback state
// machine reason sequentially under system-wide concurrency.
type Dispatcher struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
	wg        sync.WaitGroup
	closed    bool
}

// A nil function is the lane termination sentinel; lanes are never closed
// so a submission racing with teardown is dropped instead of panicking.
type mailbox struct {
	ch chan func()
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		mailboxes: make(map[string]*mailbox),
	}
}

// Submit enqueues fn on the chat's lane, creating the lane on first use.
// Submissions after Close are dropped. fn must not be nil.
func (d *Dispatcher) Submit(chatID string, fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		zlog.Debug().Msgf("dispatch: dropped stimulus for closed dispatcher: chat=%s", chatID)
		return
	}
	mb, ok := d.mailboxes[chatID]
	if !ok {
		mb = &mailbox{ch: make(chan func(), mailboxSize)}
		d.mailboxes[chatID] = mb
		d.wg.Add(1)
		go d.run(mb)
	}
	d.mu.Unlock()

	mb.ch <- fn
}

func (d *Dispatcher) run(mb *mailbox) {
	defer d.wg.Done()
	for fn := range mb.ch {
		if fn == nil {
			return
		}
		fn()
	}
}

// Release tears down a chat's lane after its queued stimuli have run.
// Used when a session is destroyed.
func (d *Dispatcher) Release(chatID string) {
	d.mu.Lock()
	mb, ok := d.mailboxes[chatID]
	if ok {
		delete(d.mailboxes, chatID)
	}
	d.mu.Unlock()

	if ok {
		mb.ch <- nil
	}
}

// Lanes returns the number of active chat lanes.
func (d *Dispatcher) Lanes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

// Close stops accepting stimuli, lets queued ones finish, and waits for
// all lanes to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	boxes := make([]*mailbox, 0, len(d.mailboxes))
	for _, mb := range d.mailboxes {
		boxes = append(boxes, mb)
	}
	d.mailboxes = make(map[string]*mailbox)
	d.mu.Unlock()

	for _, mb := range boxes {
		mb.ch <- nil
	}
	d.wg.Wait()
}
