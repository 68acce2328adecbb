package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tunedeck/tunedeck/internal/domain/track"
)

// Config holds session policy configuration.
type Config struct {
	MaxConsecutiveFailures int // Dropped tracks in a row before the session stalls
	QueueDisplayLimit      int // Default snapshot size for queue listings
}

// Params holds the dependencies for a Session.
type Params struct {
	ChatID    string
	Config    Config
	Resolver  Resolver
	Transport Transport
	Exec      Submitter

	// Notify publishes a playback notification. Must not block.
	// May be nil.
	Notify func(Notification)

	// OnIdle is called whenever the session settles idle with an empty
	// queue, with the epoch current at that moment. May be nil.
	OnIdle func(epoch uint64)
}

// Session is the queue + state machine pair for one chat. All stimuli for
// a chat are applied in arrival order on its dispatcher lane; the internal
// mutex additionally guards the read accessors.
//
// Invariant: at most one track is in flight (resolving, playing or paused)
// at any time. The epoch counter is bumped whenever the session starts new
// work or discards old work and stamped onto outstanding resolve calls and
// idle callbacks; completions or eviction checks carrying a stale epoch are
// discarded. A destroyed session rejects all further commands.
type Session struct {
	mu sync.Mutex

	chatID    string
	state     State
	queue     Queue
	epoch     uint64
	destroyed bool

	joined       bool
	failures     int
	lastErr      error
	lastActivity time.Time

	cfg       Config
	resolver  Resolver
	transport Transport
	exec      Submitter
	notify    func(Notification)
	onIdle    func(epoch uint64)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates an idle session for one chat.
func NewSession(p Params) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		chatID:       p.ChatID,
		state:        StateIdle,
		cfg:          p.Config,
		resolver:     p.Resolver,
		transport:    p.Transport,
		exec:         p.Exec,
		notify:       p.Notify,
		onIdle:       p.OnIdle,
		lastActivity: time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ChatID returns the chat this session belongs to.
func (s *Session) ChatID() string {
	return s.chatID
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Epoch returns the current generation counter.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// NowPlaying returns a copy of the in-flight track, if any.
func (s *Session) NowPlaying() (track.Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.queue.InFlight(); ok {
		return *cur, true
	}
	return track.Ref{}, false
}

// QueueLen returns the queue length including the in-flight entry.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// ContainsQuery reports whether a pending entry has the given query text.
func (s *Session) ContainsQuery(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.queue.Snapshot(0) {
		if ref.Query == query {
			return true
		}
	}
	return false
}

// Snapshot returns a read-only copy of the first limit queue entries.
// A limit <= 0 falls back to the configured display limit.
func (s *Session) Snapshot(limit int) []track.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = s.cfg.QueueDisplayLimit
	}
	return s.queue.Snapshot(limit)
}

// LastError returns the most recent track failure, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Enqueue appends tracks to the queue and returns the new queue length.
// If the session is idle it starts resolving the next track. A destroyed
// session rejects with ErrSessionClosed.
func (s *Session) Enqueue(refs ...track.Ref) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return 0, ErrSessionClosed
	}
	s.lastActivity = time.Now()
	n := s.queue.Len()
	for _, ref := range refs {
		n = s.queue.Enqueue(ref)
	}
	zlog.Debug().Msgf("playback: enqueued: chat=%s added=%d queue_len=%d state=%s",
		s.chatID, len(refs), n, s.state)

	if s.state == StateIdle && n > 0 {
		s.startNextLocked()
	}
	return n, nil
}

// Skip drops the in-flight track and advances to the next queued one.
// Returns the skipped track, or ErrNoTrack when nothing is in flight.
func (s *Session) Skip() (track.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return track.Ref{}, ErrSessionClosed
	}
	s.lastActivity = time.Now()
	cur, ok := s.queue.InFlight()
	if !ok {
		return track.Ref{}, ErrNoTrack
	}

	if s.state == StatePlaying || s.state == StatePaused {
		if err := s.transport.Stop(s.ctx, s.chatID); err != nil {
			zlog.Warn().Msgf("playback: transport stop on skip: chat=%s error=%v", s.chatID, err)
		}
	}

	skipped := *cur
	s.queue.RemoveHead()
	s.failures = 0
	s.notifyLocked(Notification{Type: NotificationTrackSkipped, ChatID: s.chatID, Track: &skipped, State: s.state})

	s.startNextLocked()
	return skipped, nil
}

// Pause suspends the current stream.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrSessionClosed
	}
	s.lastActivity = time.Now()
	if _, ok := s.queue.InFlight(); !ok {
		return ErrNoTrack
	}
	if s.state != StatePlaying {
		return ErrNotPlaying
	}

	if err := s.transport.Pause(s.ctx, s.chatID); err != nil {
		return errors.Wrap(err, "transport pause")
	}
	s.state = StatePaused
	s.notifyLocked(Notification{Type: NotificationStateChanged, ChatID: s.chatID, State: s.state})
	return nil
}

// Resume continues a paused stream.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrSessionClosed
	}
	s.lastActivity = time.Now()
	if _, ok := s.queue.InFlight(); !ok {
		return ErrNoTrack
	}
	if s.state != StatePaused {
		return ErrNotPaused
	}

	if err := s.transport.Resume(s.ctx, s.chatID); err != nil {
		return errors.Wrap(err, "transport resume")
	}
	s.state = StatePlaying
	s.notifyLocked(Notification{Type: NotificationStateChanged, ChatID: s.chatID, State: s.state})
	return nil
}

// Clear removes all queued tracks including the in-flight one and
// releases the voice session. The session itself stays registered.
func (s *Session) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return 0
	}
	return s.clearLocked()
}

// Stop clears the queue, releases the voice session, cancels any
// outstanding adapter work and destroys the session. The caller is
// expected to unregister it afterwards.
func (s *Session) Stop() int {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return 0
	}
	n := s.clearLocked()
	s.destroyed = true
	s.mu.Unlock()
	s.cancel()
	return n
}

func (s *Session) clearLocked() int {
	s.lastActivity = time.Now()
	s.epoch++
	s.state = StateStopping

	if s.joined {
		if err := s.transport.Leave(s.ctx, s.chatID); err != nil {
			zlog.Warn().Msgf("playback: transport leave: chat=%s error=%v", s.chatID, err)
		}
		s.joined = false
	}

	n := s.queue.Clear()
	s.state = StateIdle
	s.failures = 0
	zlog.Debug().Msgf("playback: cleared: chat=%s removed=%d", s.chatID, n)

	s.notifyLocked(Notification{Type: NotificationQueueEmpty, ChatID: s.chatID, State: s.state})
	if s.onIdle != nil {
		s.onIdle(s.epoch)
	}
	return n
}

// HandleTrackFinished applies a transport "track finished" event.
func (s *Session) HandleTrackFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		zlog.Debug().Msgf("playback: finished event ignored: chat=%s state=%s", s.chatID, s.state)
		return
	}

	if cur, ok := s.queue.InFlight(); ok {
		zlog.Debug().Msgf("playback: track finished: chat=%s title=%q", s.chatID, cur.DisplayTitle())
	}
	s.queue.RemoveHead()
	s.failures = 0
	s.startNextLocked()
}

// HandleStreamError applies a transport error event for the in-flight track.
func (s *Session) HandleStreamError(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying && s.state != StatePaused {
		return
	}
	s.failCurrentLocked(errors.Wrap(cause, "stream error"))
}

// TryEvict destroys the session if it is still idle with an empty queue
// and the epoch matches the one observed when the eviction was armed.
// Returns true when the session was evicted.
func (s *Session) TryEvict(epoch uint64) bool {
	s.mu.Lock()
	if s.destroyed || epoch != s.epoch || s.state != StateIdle || s.queue.Len() > 0 {
		s.mu.Unlock()
		return false
	}
	if s.joined {
		if err := s.transport.Leave(s.ctx, s.chatID); err != nil {
			zlog.Warn().Msgf("playback: transport leave on evict: chat=%s error=%v", s.chatID, err)
		}
		s.joined = false
	}
	s.destroyed = true
	s.mu.Unlock()
	s.cancel()
	zlog.Debug().Msgf("playback: session evicted: chat=%s", s.chatID)
	return true
}

// startNextLocked begins resolving the next queued track, or settles idle
// when the queue is drained. Bumps the epoch so that resolve completions
// and idle timers from before this point no longer match. Must be called
// with the lock held.
func (s *Session) startNextLocked() {
	s.epoch++
	if !s.queue.MarkInFlight() {
		s.becomeIdleLocked()
		return
	}

	cur, _ := s.queue.InFlight()
	s.state = StateResolving
	epoch := s.epoch
	query := cur.Query
	zlog.Debug().Msgf("playback: resolving: chat=%s query=%q epoch=%d", s.chatID, query, epoch)

	go func() {
		handle, err := s.resolver.Resolve(s.ctx, query)
		s.exec.Submit(s.chatID, func() {
			s.completeResolve(epoch, handle, err)
		})
	}()
}

// completeResolve applies the outcome of an asynchronous resolve call.
// Results stamped with a stale epoch are dropped silently.
func (s *Session) completeResolve(epoch uint64, handle *track.Handle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		zlog.Debug().Msgf("playback: stale resolve result dropped: chat=%s epoch=%d current=%d",
			s.chatID, epoch, s.epoch)
		return
	}
	if s.state != StateResolving {
		return
	}

	if err != nil {
		s.failCurrentLocked(errors.Wrap(err, "resolve"))
		return
	}

	s.queue.AttachHandle(handle)

	if !s.joined {
		if err := s.transport.Join(s.ctx, s.chatID); err != nil {
			// Join-level failure: no live voice session. Put the track
			// back and surface the error instead of burning the queue.
			s.queue.Unmark()
			s.state = StateIdle
			s.lastErr = errors.Wrap(err, "join voice session")
			zlog.Warn().Msgf("playback: join failed: chat=%s error=%v", s.chatID, err)
			s.notifyLocked(Notification{Type: NotificationJoinFailed, ChatID: s.chatID, State: s.state, Cause: s.lastErr})
			return
		}
		s.joined = true
	}

	if err := s.transport.Play(s.ctx, s.chatID, *handle); err != nil {
		s.failCurrentLocked(errors.Wrap(err, "transport play"))
		return
	}

	cur, _ := s.queue.InFlight()
	started := *cur
	s.state = StatePlaying
	s.failures = 0
	s.lastErr = nil
	zlog.Info().Msgf("playback: now playing: chat=%s title=%q source=%s",
		s.chatID, started.DisplayTitle(), handle.Source)
	s.notifyLocked(Notification{Type: NotificationTrackStarted, ChatID: s.chatID, Track: &started, State: s.state})
}

// failCurrentLocked drops the in-flight track after a resolution or
// transport failure and advances, bounded by the consecutive-failure
// limit. Must be called with the lock held.
func (s *Session) failCurrentLocked(cause error) {
	var failed *track.Ref
	if cur, ok := s.queue.InFlight(); ok {
		c := *cur
		failed = &c
	}
	s.queue.RemoveHead()
	s.failures++
	s.lastErr = cause

	title := ""
	if failed != nil {
		title = failed.DisplayTitle()
	}
	zlog.Warn().Msgf("playback: track dropped: chat=%s title=%q failures=%d error=%v",
		s.chatID, title, s.failures, cause)
	s.notifyLocked(Notification{Type: NotificationTrackFailed, ChatID: s.chatID, Track: failed, State: s.state, Cause: cause})

	if s.failures >= s.cfg.MaxConsecutiveFailures {
		s.state = StateIdle
		if s.queue.Len() == 0 && s.joined {
			if err := s.transport.Leave(s.ctx, s.chatID); err != nil {
				zlog.Warn().Msgf("playback: transport leave: chat=%s error=%v", s.chatID, err)
			}
			s.joined = false
		}
		zlog.Warn().Msgf("playback: stalled after %d consecutive failures: chat=%s", s.failures, s.chatID)
		s.notifyLocked(Notification{Type: NotificationPlaybackStalled, ChatID: s.chatID, State: s.state, Cause: cause})
		if s.queue.Len() == 0 && s.onIdle != nil {
			s.onIdle(s.epoch)
		}
		return
	}

	s.startNextLocked()
}

// becomeIdleLocked settles the session idle with an empty pending queue,
// leaving the voice session the way the queue-drained path always does.
// Must be called with the lock held.
func (s *Session) becomeIdleLocked() {
	s.state = StateIdle
	if s.joined {
		if err := s.transport.Leave(s.ctx, s.chatID); err != nil {
			zlog.Warn().Msgf("playback: transport leave: chat=%s error=%v", s.chatID, err)
		}
		s.joined = false
	}
	s.notifyLocked(Notification{Type: NotificationQueueEmpty, ChatID: s.chatID, State: s.state})
	if s.onIdle != nil {
		s.onIdle(s.epoch)
	}
}

// notifyLocked publishes a notification. The callback must not block.
func (s *Session) notifyLocked(n Notification) {
	if s.notify != nil {
		s.notify(n)
	}
}
