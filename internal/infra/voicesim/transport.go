// Package voicesim provides a simulated voice transport. It models join,
// stream and leave semantics with wall-clock timers instead of a real
// voice connection, emitting track-finished events when a stream's
// duration elapses.
package voicesim

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tunedeck/tunedeck/internal/app/playback"
	"github.com/tunedeck/tunedeck/internal/domain/track"
)

const eventBufferSize = 64

// Options holds transport tuning.
type Options struct {
	// DefaultTrackDuration is used when a handle carries no duration.
	DefaultTrackDuration time.Duration

	// TickInterval is the timer resolution. Zero means 100ms.
	TickInterval time.Duration
}

// call is the live voice session of one chat.
type call struct {
	handle      *track.Handle
	remaining   time.Duration
	startedAt   time.Time
	paused      bool
	timerCancel func()
}

// Transport is a simulated playback.Transport implementation.
type Transport struct {
	mu     sync.Mutex
	calls  map[string]*call
	events chan playback.TransportEvent
	opts   Options
	closed bool
}

// New creates a simulated transport.
func New(opts Options) *Transport {
	if opts.DefaultTrackDuration <= 0 {
		opts.DefaultTrackDuration = 3 * time.Minute
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	return &Transport{
		calls:  make(map[string]*call),
		events: make(chan playback.TransportEvent, eventBufferSize),
		opts:   opts,
	}
}

// Join opens a voice session for the chat.
func (t *Transport) Join(ctx context.Context, chatID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.calls[chatID]; ok {
		return nil // already joined
	}
	t.calls[chatID] = &call{}
	zlog.Debug().Msgf("voicesim: joined: chat=%s", chatID)
	return nil
}

// Play starts streaming a track on the chat's voice session. The
// session must be joined.
func (t *Transport) Play(ctx context.Context, chatID string, h track.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[chatID]
	if !ok {
		return errors.Newf("not joined: chat=%s", chatID)
	}

	c.cancelTimerLocked()
	duration := h.Duration
	if duration <= 0 {
		duration = t.opts.DefaultTrackDuration
	}
	handle := h
	c.handle = &handle
	c.remaining = duration
	c.paused = false
	c.startedAt = toWallTime(time.Now())
	c.timerCancel = t.startWallClockTimer(duration, func() {
		t.finishTrack(chatID, &handle)
	})

	zlog.Debug().Msgf("voicesim: streaming: chat=%s title=%q duration=%s", chatID, h.Title, duration)
	return nil
}

// Pause suspends the chat's stream, keeping the remaining duration.
func (t *Transport) Pause(ctx context.Context, chatID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[chatID]
	if !ok || c.handle == nil {
		return errors.Newf("nothing streaming: chat=%s", chatID)
	}
	if c.paused {
		return nil
	}

	c.cancelTimerLocked()
	elapsed := toWallTime(time.Now()).Sub(c.startedAt)
	c.remaining -= elapsed
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.paused = true
	zlog.Debug().Msgf("voicesim: paused: chat=%s remaining=%s", chatID, c.remaining)
	return nil
}

// Resume continues a paused stream.
func (t *Transport) Resume(ctx context.Context, chatID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[chatID]
	if !ok || c.handle == nil {
		return errors.Newf("nothing streaming: chat=%s", chatID)
	}
	if !c.paused {
		return nil
	}

	handle := c.handle
	c.paused = false
	c.startedAt = toWallTime(time.Now())
	c.timerCancel = t.startWallClockTimer(c.remaining, func() {
		t.finishTrack(chatID, handle)
	})
	zlog.Debug().Msgf("voicesim: resumed: chat=%s remaining=%s", chatID, c.remaining)
	return nil
}

// Stop halts the chat's stream without leaving the voice session. No
// finished event is emitted for a stopped stream.
func (t *Transport) Stop(ctx context.Context, chatID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[chatID]
	if !ok {
		return nil
	}
	c.cancelTimerLocked()
	c.handle = nil
	c.paused = false
	c.remaining = 0
	return nil
}

// Leave tears down the chat's voice session.
func (t *Transport) Leave(ctx context.Context, chatID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[chatID]
	if !ok {
		return nil
	}
	c.cancelTimerLocked()
	delete(t.calls, chatID)
	zlog.Debug().Msgf("voicesim: left: chat=%s", chatID)
	return nil
}

// Events returns the transport event stream.
func (t *Transport) Events() <-chan playback.TransportEvent {
	return t.events
}

// Joined reports whether the chat has a live voice session.
func (t *Transport) Joined(chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[chatID]
	return ok
}

// Close stops all timers and closes the event stream.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, c := range t.calls {
		c.cancelTimerLocked()
	}
	t.calls = make(map[string]*call)
	close(t.events)
}

// finishTrack emits a track-finished event if the given handle is still
// the one streaming.
func (t *Transport) finishTrack(chatID string, handle *track.Handle) {
	t.mu.Lock()
	c, ok := t.calls[chatID]
	if t.closed || !ok || c.handle != handle {
		// Stream was stopped or replaced while the timer was firing.
		t.mu.Unlock()
		return
	}
	c.handle = nil
	c.timerCancel = nil
	t.mu.Unlock()

	zlog.Debug().Msgf("voicesim: track finished: chat=%s title=%q", chatID, handle.Title)
	select {
	case t.events <- playback.TransportEvent{ChatID: chatID, Kind: playback.EventTrackFinished}:
	default:
		zlog.Warn().Msgf("voicesim: event buffer full, finished event dropped: chat=%s", chatID)
	}
}

func (c *call) cancelTimerLocked() {
	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}
}

// startWallClockTimer runs callback after duration, measured on the wall
// clock so suspend/resume of the host does not stretch playback.
func (t *Transport) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(t.opts.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).After(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
