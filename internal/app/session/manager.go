package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tunedeck/tunedeck/internal/app/dispatch"
	"github.com/tunedeck/tunedeck/internal/app/filter"
	"github.com/tunedeck/tunedeck/internal/app/importer"
	"github.com/tunedeck/tunedeck/internal/app/notification"
	"github.com/tunedeck/tunedeck/internal/app/playback"
	"github.com/tunedeck/tunedeck/internal/domain/track"
)

// ErrNoSession is returned when a command targets a chat without an
// active session.
var ErrNoSession = errors.New("no active session for this chat")

// ErrEmptyQuery is returned when a play request carries no query text.
var ErrEmptyQuery = errors.New("empty query")

// Rejection is returned when a filter rejects a track request.
type Rejection struct {
	Code string
}

func (e *Rejection) Error() string {
	return "request rejected: " + e.Code
}

// Options holds manager policy configuration.
type Options struct {
	Playback playback.Config

	// IdleTimeout is how long an idle session with an empty queue is
	// kept before eviction. Zero disables eviction.
	IdleTimeout time.Duration
}

// PlayResult summarizes the outcome of a play command.
type PlayResult struct {
	Queued       int    // tracks accepted into the queue
	Rejected     int    // tracks rejected by filters
	QueueLen     int    // queue length after enqueueing
	PlaylistName string // set when a playlist link was expanded
}

// QueueInfo is a read-only view of a chat's queue.
type QueueInfo struct {
	ChatID     string
	State      playback.State
	NowPlaying *track.Ref
	Entries    []track.Ref
	Total      int
}

// Manager is the command-level facade. It owns the session registry,
// the per-chat dispatcher and the notification fan-out, and routes all
// session mutations through the chat's dispatcher lane.
type Manager struct {
	opts       Options
	registry   *Registry
	dispatcher *dispatch.Dispatcher
	resolver   playback.Resolver
	transport  playback.Transport
	importers  *importer.Chain
	filters    *filter.Chain
	notifier   *notification.Manager

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a manager and starts the transport event pump.
// importers and filters may be nil.
func NewManager(opts Options, resolver playback.Resolver, transport playback.Transport,
	importers *importer.Chain, filters *filter.Chain) *Manager {
	m := &Manager{
		opts:       opts,
		registry:   NewRegistry(),
		dispatcher: dispatch.New(),
		resolver:   resolver,
		transport:  transport,
		importers:  importers,
		filters:    filters,
		notifier:   notification.NewManager(),
		done:       make(chan struct{}),
	}
	go m.pumpEvents()
	return m
}

// Subscribe registers a notification stream and returns its subscription ID.
func (m *Manager) Subscribe(stream notification.Stream) string {
	return m.notifier.Subscribe(stream)
}

// Unsubscribe removes a notification subscription.
func (m *Manager) Unsubscribe(id string) {
	m.notifier.Unsubscribe(id)
}

// ActiveSessions returns the number of registered sessions.
func (m *Manager) ActiveSessions() int {
	return m.registry.Len()
}

// Play queues a track query or, for recognized playlist links, every
// entry of the playlist. The session for the chat is created on demand.
func (m *Manager) Play(ctx context.Context, chatID string, requester track.Requester, query string) (*PlayResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	refs, playlistName, err := m.buildRefs(ctx, requester, query)
	if err != nil {
		return nil, err
	}

	sess := m.sessionFor(chatID)
	result := &PlayResult{PlaylistName: playlistName}

	err = m.run(ctx, chatID, func() error {
		accepted := make([]track.Ref, 0, len(refs))
		for _, ref := range refs {
			if m.filters != nil {
				verdict := m.filters.Execute(ctx, filter.Request{
					ChatID:    chatID,
					Requester: ref.Requester,
					Query:     ref.Query,
				}, sess)
				if !verdict.Accepted {
					result.Rejected++
					if len(refs) == 1 {
						return &Rejection{Code: verdict.Code}
					}
					continue
				}
			}
			accepted = append(accepted, ref)
		}
		if len(accepted) > 0 {
			n, err := sess.Enqueue(accepted...)
			if errors.Is(err, playback.ErrSessionClosed) {
				// The idle timer destroyed the session between the lookup
				// and this closure. Start over with a fresh one.
				m.registry.RemoveIf(chatID, sess)
				sess = m.sessionFor(chatID)
				n, err = sess.Enqueue(accepted...)
			}
			if err != nil {
				return err
			}
			result.QueueLen = n
		} else {
			result.QueueLen = sess.QueueLen()
		}
		result.Queued = len(accepted)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Skip drops the current track and advances to the next queued one.
func (m *Manager) Skip(ctx context.Context, chatID string) (track.Ref, error) {
	var skipped track.Ref
	err := m.withExisting(ctx, chatID, func(sess *playback.Session) error {
		var err error
		skipped, err = sess.Skip()
		return err
	})
	return skipped, err
}

// Pause suspends the current stream.
func (m *Manager) Pause(ctx context.Context, chatID string) error {
	return m.withExisting(ctx, chatID, func(sess *playback.Session) error {
		return sess.Pause()
	})
}

// Resume continues a paused stream.
func (m *Manager) Resume(ctx context.Context, chatID string) error {
	return m.withExisting(ctx, chatID, func(sess *playback.Session) error {
		return sess.Resume()
	})
}

// Clear removes all queued tracks and releases the voice session, but
// keeps the session registered. Returns the number of removed tracks.
func (m *Manager) Clear(ctx context.Context, chatID string) (int, error) {
	var removed int
	err := m.withExisting(ctx, chatID, func(sess *playback.Session) error {
		removed = sess.Clear()
		return nil
	})
	return removed, err
}

// Stop clears the queue and tears the session down entirely.
func (m *Manager) Stop(ctx context.Context, chatID string) (int, error) {
	var removed int
	err := m.withExisting(ctx, chatID, func(sess *playback.Session) error {
		removed = sess.Stop()
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.registry.Remove(chatID)
	m.dispatcher.Release(chatID)
	zlog.Info().Msgf("session: stopped and removed: chat=%s removed=%d", chatID, removed)
	return removed, nil
}

// QueueList returns a read-only view of the chat's queue. A chat
// without a session yields an empty view. limit <= 0 uses the
// configured display limit.
func (m *Manager) QueueList(ctx context.Context, chatID string, limit int) (*QueueInfo, error) {
	sess, ok := m.registry.Get(chatID)
	if !ok {
		return &QueueInfo{ChatID: chatID, State: playback.StateIdle}, nil
	}

	info := &QueueInfo{ChatID: chatID}
	err := m.run(ctx, chatID, func() error {
		info.State = sess.State()
		info.Total = sess.QueueLen()
		info.Entries = sess.Snapshot(limit)
		if cur, ok := sess.NowPlaying(); ok {
			info.NowPlaying = &cur
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// NowPlaying returns the in-flight track and the session state.
func (m *Manager) NowPlaying(ctx context.Context, chatID string) (track.Ref, playback.State, error) {
	sess, ok := m.registry.Get(chatID)
	if !ok {
		return track.Ref{}, playback.StateIdle, ErrNoSession
	}

	var (
		cur   track.Ref
		state playback.State
	)
	err := m.run(ctx, chatID, func() error {
		state = sess.State()
		c, ok := sess.NowPlaying()
		if !ok {
			return playback.ErrNoTrack
		}
		cur = c
		return nil
	})
	return cur, state, err
}

// Close shuts down the manager: the event pump stops, every chat lane
// drains and notification subscriptions are dropped.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		for _, chatID := range m.registry.ChatIDs() {
			chatID := chatID
			m.dispatcher.Submit(chatID, func() {
				if sess, ok := m.registry.Get(chatID); ok {
					sess.Stop()
				}
			})
		}
		m.dispatcher.Close()
		m.notifier.Close()
	})
}

// buildRefs turns a play query into one or more track refs, expanding
// playlist links through the importer chain.
func (m *Manager) buildRefs(ctx context.Context, requester track.Requester, query string) ([]track.Ref, string, error) {
	if m.importers == nil || !m.importers.CanHandle(query) {
		return []track.Ref{track.NewRef(query, requester)}, "", nil
	}

	pl, err := m.importers.Expand(ctx, query)
	if err != nil {
		return nil, "", err
	}
	if len(pl.Entries) == 0 {
		return nil, "", errors.Newf("playlist %q has no tracks", pl.Name)
	}

	from := requester
	from.Type = track.RequesterTypePlaylist
	refs := make([]track.Ref, 0, len(pl.Entries))
	for _, q := range pl.Queries() {
		refs = append(refs, track.NewRef(q, from))
	}
	return refs, pl.Name, nil
}

// sessionFor returns the chat's session, creating and wiring it on
// first use.
func (m *Manager) sessionFor(chatID string) *playback.Session {
	sess, created := m.registry.GetOrCreate(chatID, func() *playback.Session {
		var sess *playback.Session
		sess = playback.NewSession(playback.Params{
			ChatID:    chatID,
			Config:    m.opts.Playback,
			Resolver:  m.resolver,
			Transport: m.transport,
			Exec:      m.dispatcher,
			Notify:    m.notifier.Publish,
			OnIdle: func(epoch uint64) {
				m.armEviction(chatID, sess, epoch)
			},
		})
		return sess
	})
	if created {
		zlog.Info().Msgf("session: created: chat=%s active=%d", chatID, m.registry.Len())
	}
	return sess
}

// armEviction schedules an idle-timeout check. The check runs on the
// chat's lane and only evicts when the session is still the registered
// one, still idle, still empty and untouched since the timer was armed.
func (m *Manager) armEviction(chatID string, sess *playback.Session, epoch uint64) {
	if m.opts.IdleTimeout <= 0 {
		return
	}
	time.AfterFunc(m.opts.IdleTimeout, func() {
		select {
		case <-m.done:
			return
		default:
		}
		m.dispatcher.Submit(chatID, func() {
			current, ok := m.registry.Get(chatID)
			if !ok || current != sess {
				return
			}
			if sess.TryEvict(epoch) {
				m.registry.Remove(chatID)
				go m.dispatcher.Release(chatID)
			}
		})
	})
}

// run executes fn on the chat's dispatcher lane and waits for it.
func (m *Manager) run(ctx context.Context, chatID string, fn func() error) error {
	reply := make(chan error, 1)
	m.dispatcher.Submit(chatID, func() {
		reply <- fn()
	})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withExisting is run for commands that require an existing session. A
// session destroyed between the lookup and the lane closure reads as
// absent.
func (m *Manager) withExisting(ctx context.Context, chatID string, fn func(*playback.Session) error) error {
	sess, ok := m.registry.Get(chatID)
	if !ok {
		return ErrNoSession
	}
	err := m.run(ctx, chatID, func() error {
		return fn(sess)
	})
	if errors.Is(err, playback.ErrSessionClosed) {
		return ErrNoSession
	}
	return err
}

// pumpEvents forwards transport events onto the owning chat's lane.
// Events for chats without a session are dropped.
func (m *Manager) pumpEvents() {
	events := m.transport.Events()
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			sess, found := m.registry.Get(ev.ChatID)
			if !found {
				zlog.Debug().Msgf("session: transport event for unknown chat dropped: chat=%s kind=%d",
					ev.ChatID, ev.Kind)
				continue
			}
			m.dispatcher.Submit(ev.ChatID, func() {
				switch ev.Kind {
				case playback.EventTrackFinished:
					sess.HandleTrackFinished()
				case playback.EventStreamError:
					sess.HandleStreamError(ev.Cause)
				}
			})
		}
	}
}
