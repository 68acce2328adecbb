package playback

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedeck/tunedeck/internal/domain/track"
)

// laneExec captures submitted closures so tests can apply async resolve
// completions at a chosen point, including after a state-altering command.
type laneExec struct {
	mu  sync.Mutex
	fns []func()
}

func (l *laneExec) Submit(_ string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

func (l *laneExec) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// drain runs captured closures in order until none are left.
func (l *laneExec) drain() {
	for {
		l.mu.Lock()
		if len(l.fns) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.fns[0]
		l.fns = l.fns[1:]
		l.mu.Unlock()
		fn()
	}
}

// waitPending blocks until at least n closures have been submitted,
// covering the gap while a resolve goroutine is running.
func (l *laneExec) waitPending(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return l.pending() >= n },
		2*time.Second, time.Millisecond)
}

type fakeResolver struct {
	mu      sync.Mutex
	failFor map[string]bool
}

func (r *fakeResolver) failOn(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor == nil {
		r.failFor = make(map[string]bool)
	}
	r.failFor[query] = true
}

func (r *fakeResolver) Resolve(_ context.Context, query string) (*track.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[query] {
		return nil, errors.Newf("no results for %q", query)
	}
	return &track.Handle{
		ID:       "yt:" + strings.ReplaceAll(query, " ", "-"),
		Title:    query + " (Audio)",
		URL:      "https://youtube.example/watch?v=" + strings.ReplaceAll(query, " ", "-"),
		Source:   "fake",
		Duration: 3 * time.Minute,
	}, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []string
	joinErr error
	playErr error
	events  chan TransportEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 8)}
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeTransport) Join(_ context.Context, chatID string) error {
	f.record("join:" + chatID)
	return f.joinErr
}

func (f *fakeTransport) Play(_ context.Context, chatID string, h track.Handle) error {
	f.record("play:" + chatID + ":" + h.ID)
	return f.playErr
}

func (f *fakeTransport) Pause(_ context.Context, chatID string) error {
	f.record("pause:" + chatID)
	return nil
}

func (f *fakeTransport) Resume(_ context.Context, chatID string) error {
	f.record("resume:" + chatID)
	return nil
}

func (f *fakeTransport) Stop(_ context.Context, chatID string) error {
	f.record("stop:" + chatID)
	return nil
}

func (f *fakeTransport) Leave(_ context.Context, chatID string) error {
	f.record("leave:" + chatID)
	return nil
}

func (f *fakeTransport) Events() <-chan TransportEvent {
	return f.events
}

type harness struct {
	sess      *Session
	exec      *laneExec
	resolver  *fakeResolver
	transport *fakeTransport

	mu     sync.Mutex
	notifs []Notification
	idleAt []uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		exec:      &laneExec{},
		resolver:  &fakeResolver{},
		transport: newFakeTransport(),
	}
	h.sess = NewSession(Params{
		ChatID:    "chat-1",
		Config:    Config{MaxConsecutiveFailures: 3, QueueDisplayLimit: 15},
		Resolver:  h.resolver,
		Transport: h.transport,
		Exec:      h.exec,
		Notify: func(n Notification) {
			h.mu.Lock()
			h.notifs = append(h.notifs, n)
			h.mu.Unlock()
		},
		OnIdle: func(epoch uint64) {
			h.mu.Lock()
			h.idleAt = append(h.idleAt, epoch)
			h.mu.Unlock()
		},
	})
	return h
}

// idleEpochs returns the epochs passed to OnIdle, in order.
func (h *harness) idleEpochs() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.idleAt...)
}

func (h *harness) notifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.notifs))
	copy(out, h.notifs)
	return out
}

func (h *harness) hasNotification(typ NotificationType) bool {
	for _, n := range h.notifications() {
		if n.Type == typ {
			return true
		}
	}
	return false
}

// settle waits for the pending resolve completion and applies it.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	h.exec.waitPending(t, 1)
	h.exec.drain()
}

// settleUntil keeps applying completions until cond holds. Used when one
// failure chains into further resolves and the completion count is not
// known up front.
func (h *harness) settleUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.exec.drain()
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func TestSession_EnqueueStartsPlayback(t *testing.T) {
	h := newHarness(t)

	n, err := h.sess.Enqueue(ref("song one"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StateResolving, h.sess.State())

	h.settle(t)

	assert.Equal(t, StatePlaying, h.sess.State())
	now, ok := h.sess.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "song one (Audio)", now.DisplayTitle())
	assert.Equal(t, []string{"join:chat-1", "play:chat-1:yt:song-one"}, h.transport.callLog())
	assert.True(t, h.hasNotification(NotificationTrackStarted))
}

func TestSession_EnqueueKeepsFIFOOrder(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("a"), ref("b"), ref("c"))
	h.settle(t)

	snap := h.sess.Snapshot(0)
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].Query)
	assert.Equal(t, "b", snap[1].Query)
	assert.Equal(t, "c", snap[2].Query)
}

func TestSession_StaleResolveAfterStopIsDiscarded(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("song one"))
	h.exec.waitPending(t, 1)

	// Stop arrives before the resolve completion is applied.
	h.sess.Stop()
	h.exec.drain()

	assert.Equal(t, StateIdle, h.sess.State())
	_, ok := h.sess.NowPlaying()
	assert.False(t, ok, "stale resolve must not start playback")
	for _, call := range h.transport.callLog() {
		assert.NotContains(t, call, "play:", "transport must never see the stale handle")
	}
}

func TestSession_StaleResolveAfterSkip(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("first"), ref("second"))
	h.exec.waitPending(t, 1)

	// Skip the still-resolving head; its completion is now stale.
	_, err := h.sess.Skip()
	require.NoError(t, err)

	// Two completions end up queued: the stale one and the new head's.
	h.exec.waitPending(t, 2)
	h.exec.drain()

	assert.Equal(t, StatePlaying, h.sess.State())
	now, ok := h.sess.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "second", now.Query)
}

func TestSession_SkipLastTrackGoesIdle(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("only song"))
	h.settle(t)
	require.Equal(t, StatePlaying, h.sess.State())

	skipped, err := h.sess.Skip()
	require.NoError(t, err)
	assert.Equal(t, "only song", skipped.Query)

	assert.Equal(t, StateIdle, h.sess.State())
	_, ok := h.sess.NowPlaying()
	assert.False(t, ok)
	assert.Contains(t, h.transport.callLog(), "leave:chat-1", "empty queue releases the voice session")
}

func TestSession_SkipWithNothingPlaying(t *testing.T) {
	h := newHarness(t)
	_, err := h.sess.Skip()
	assert.ErrorIs(t, err, ErrNoTrack)
}

func TestSession_FailedTrackIsDroppedAndNextPlays(t *testing.T) {
	h := newHarness(t)
	h.resolver.failOn("broken song")

	h.sess.Enqueue(ref("broken song"), ref("good song"))

	// The failing completion chains into the next resolve.
	h.settleUntil(t, func() bool { return h.sess.State() == StatePlaying })

	now, ok := h.sess.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "good song", now.Query)

	for _, r := range h.sess.Snapshot(0) {
		assert.NotEqual(t, "broken song", r.Query, "failed track never reappears")
	}
	assert.True(t, h.hasNotification(NotificationTrackFailed))
}

func TestSession_StallsAfterConsecutiveFailures(t *testing.T) {
	h := newHarness(t)
	for _, q := range []string{"bad1", "bad2", "bad3"} {
		h.resolver.failOn(q)
	}

	h.sess.Enqueue(ref("bad1"), ref("bad2"), ref("bad3"), ref("never reached"))

	// Three failing completions in a row hit the limit.
	h.settleUntil(t, func() bool { return h.hasNotification(NotificationPlaybackStalled) })

	assert.Equal(t, StateIdle, h.sess.State())
	assert.Error(t, h.sess.LastError())

	// The remaining entry stays queued for a later explicit start.
	snap := h.sess.Snapshot(0)
	require.Len(t, snap, 1)
	assert.Equal(t, "never reached", snap[0].Query)

	// A new enqueue restarts from the stalled queue.
	h.sess.Enqueue(ref("fresh"))
	h.settle(t)
	assert.Equal(t, StatePlaying, h.sess.State())
	now, _ := h.sess.NowPlaying()
	assert.Equal(t, "never reached", now.Query)
}

func TestSession_JoinFailureSurfacesAndKeepsQueue(t *testing.T) {
	h := newHarness(t)
	h.transport.joinErr = errors.New("no active voice chat")

	h.sess.Enqueue(ref("song one"))
	h.settle(t)

	assert.Equal(t, StateIdle, h.sess.State())
	assert.Equal(t, 1, h.sess.QueueLen(), "join failure must not drop the track")
	assert.True(t, h.hasNotification(NotificationJoinFailed))
	assert.Error(t, h.sess.LastError())
}

func TestSession_PauseResume(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.sess.Pause(), ErrNoTrack)
	assert.ErrorIs(t, h.sess.Resume(), ErrNoTrack)

	h.sess.Enqueue(ref("song one"))
	h.settle(t)

	assert.ErrorIs(t, h.sess.Resume(), ErrNotPaused)

	require.NoError(t, h.sess.Pause())
	assert.Equal(t, StatePaused, h.sess.State())
	assert.ErrorIs(t, h.sess.Pause(), ErrNotPlaying)

	require.NoError(t, h.sess.Resume())
	assert.Equal(t, StatePlaying, h.sess.State())
}

func TestSession_TrackFinishedAdvances(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("first"), ref("second"))
	h.settle(t)
	require.Equal(t, StatePlaying, h.sess.State())

	h.sess.HandleTrackFinished()
	h.settle(t)

	now, ok := h.sess.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "second", now.Query)

	// Last track finishes: queue drains and the voice session is released.
	h.sess.HandleTrackFinished()
	assert.Equal(t, StateIdle, h.sess.State())
	assert.Contains(t, h.transport.callLog(), "leave:chat-1")
	assert.True(t, h.hasNotification(NotificationQueueEmpty))
}

func TestSession_StreamErrorDropsTrack(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("first"), ref("second"))
	h.settle(t)

	h.sess.HandleStreamError(errors.New("decoder blew up"))
	h.settle(t)

	now, ok := h.sess.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "second", now.Query)
	assert.True(t, h.hasNotification(NotificationTrackFailed))
}

func TestSession_ClearReleasesEverything(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("a"), ref("b"), ref("c"))
	h.settle(t)

	n := h.sess.Clear()
	assert.Equal(t, 3, n)
	assert.Equal(t, StateIdle, h.sess.State())
	assert.Equal(t, 0, h.sess.QueueLen())
	assert.Contains(t, h.transport.callLog(), "leave:chat-1")
}

func TestSession_SnapshotStableWhenQuiet(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("a"), ref("b"), ref("c"))
	h.settle(t)

	before := h.sess.Snapshot(0)
	time.Sleep(20 * time.Millisecond)
	after := h.sess.Snapshot(0)

	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Query, after[i].Query)
	}
}

func TestSession_TryEvict(t *testing.T) {
	h := newHarness(t)

	// Active session refuses eviction.
	h.sess.Enqueue(ref("song"))
	h.settle(t)
	assert.False(t, h.sess.TryEvict(h.sess.Epoch()))

	// Drained session evicts only with a matching epoch.
	h.sess.HandleTrackFinished()
	require.Equal(t, StateIdle, h.sess.State())
	epoch := h.sess.Epoch()
	assert.False(t, h.sess.TryEvict(epoch-1), "stale epoch must not evict")
	assert.True(t, h.sess.TryEvict(epoch))
}

func TestSession_EvictionEpochStaleAfterLaterActivity(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("first"))
	h.settle(t)
	h.sess.HandleTrackFinished()
	require.Len(t, h.idleEpochs(), 1)

	// A second round of activity settles idle again with a fresh epoch,
	// so a timer armed during the first idle period no longer matches.
	h.sess.Enqueue(ref("second"))
	h.settle(t)
	h.sess.HandleTrackFinished()

	epochs := h.idleEpochs()
	require.Len(t, epochs, 2)
	assert.NotEqual(t, epochs[0], epochs[1], "each idle period gets its own epoch")

	assert.False(t, h.sess.TryEvict(epochs[0]), "timer armed before later activity must not evict")
	assert.True(t, h.sess.TryEvict(epochs[1]))
}

func TestSession_DestroyedSessionRejectsCommands(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("song"))
	h.settle(t)
	h.sess.HandleTrackFinished()
	require.True(t, h.sess.TryEvict(h.sess.Epoch()))

	n, err := h.sess.Enqueue(ref("lost song"))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, h.sess.QueueLen(), "rejected track must not be queued")
	assert.Equal(t, StateIdle, h.sess.State(), "destroyed session must not start resolving")

	_, err = h.sess.Skip()
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, h.sess.Pause(), ErrSessionClosed)
	assert.ErrorIs(t, h.sess.Resume(), ErrSessionClosed)
	assert.Equal(t, 0, h.sess.Clear())
	assert.False(t, h.sess.TryEvict(h.sess.Epoch()))
}

func TestSession_StopDestroysSession(t *testing.T) {
	h := newHarness(t)

	h.sess.Enqueue(ref("song"))
	h.settle(t)
	h.sess.Stop()

	_, err := h.sess.Enqueue(ref("more"))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 0, h.sess.Stop(), "repeated stop is a no-op")
}

func TestSession_StallWithEmptyQueueLeavesVoice(t *testing.T) {
	h := newHarness(t)
	h.transport.playErr = errors.New("stream open failed")

	h.sess.Enqueue(ref("a"), ref("b"), ref("c"))
	h.settleUntil(t, func() bool { return h.hasNotification(NotificationPlaybackStalled) })

	assert.Equal(t, StateIdle, h.sess.State())
	assert.Equal(t, 0, h.sess.QueueLen())
	assert.Contains(t, h.transport.callLog(), "leave:chat-1",
		"stalling with nothing queued releases the voice session")
}

func TestSession_JoinFailureRetriedOnNextEnqueue(t *testing.T) {
	h := newHarness(t)
	h.transport.joinErr = errors.New("no active voice chat")

	h.sess.Enqueue(ref("song one"))
	h.settle(t)
	require.Equal(t, StateIdle, h.sess.State())
	require.Equal(t, 1, h.sess.QueueLen())

	// Nothing is in flight after a join failure, so skip has no target.
	_, err := h.sess.Skip()
	assert.ErrorIs(t, err, ErrNoTrack)

	// The retained head is retried ahead of new requests.
	h.transport.joinErr = nil
	h.sess.Enqueue(ref("song two"))
	h.settle(t)
	require.Equal(t, StatePlaying, h.sess.State())
	now, ok := h.sess.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "song one", now.Query)
}

// TestSession_AtMostOneTrackInFlight fuzzes command/event interleavings and
// asserts a track is in flight exactly when the state says so.
func TestSession_AtMostOneTrackInFlight(t *testing.T) {
	h := newHarness(t)

	ops := []func(){
		func() { h.sess.Enqueue(ref("x")) },
		func() { _, _ = h.sess.Skip() },
		func() { _ = h.sess.Pause() },
		func() { _ = h.sess.Resume() },
		func() { h.sess.HandleTrackFinished() },
		func() { h.exec.drain() },
	}

	for i := 0; i < 500; i++ {
		ops[i%len(ops)]()
		ops[(i*7+3)%len(ops)]()

		_, inFlight := h.sess.NowPlaying()
		assert.Equal(t, h.sess.State().InFlight(), inFlight,
			"state %s disagrees with in-flight marker", h.sess.State())
	}
}
