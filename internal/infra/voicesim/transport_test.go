package voicesim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedeck/tunedeck/internal/app/playback"
	"github.com/tunedeck/tunedeck/internal/domain/track"
)

func newTestTransport(t *testing.T) *Transport {
	tr := New(Options{TickInterval: 5 * time.Millisecond})
	t.Cleanup(tr.Close)
	return tr
}

func handleWithDuration(d time.Duration) track.Handle {
	return track.Handle{ID: "t1", Title: "Test Track", Source: "spotify", Duration: d}
}

func waitForFinished(t *testing.T, tr *Transport, chatID string) {
	t.Helper()
	select {
	case ev := <-tr.Events():
		assert.Equal(t, chatID, ev.ChatID)
		assert.Equal(t, playback.EventTrackFinished, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for track finished event")
	}
}

func TestTransport_PlayEmitsFinishedAfterDuration(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "chat-1"))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(30*time.Millisecond)))

	waitForFinished(t, tr, "chat-1")
}

func TestTransport_PlayRequiresJoin(t *testing.T) {
	tr := newTestTransport(t)

	err := tr.Play(context.Background(), "chat-1", handleWithDuration(time.Second))
	assert.ErrorContains(t, err, "not joined")
}

func TestTransport_StopSuppressesFinishedEvent(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "chat-1"))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(30*time.Millisecond)))
	require.NoError(t, tr.Stop(ctx, "chat-1"))

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event after stop: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, tr.Joined("chat-1"))
}

func TestTransport_PauseHoldsRemainingTime(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "chat-1"))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(80*time.Millisecond)))
	require.NoError(t, tr.Pause(ctx, "chat-1"))

	// A paused stream never finishes.
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event while paused: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, tr.Resume(ctx, "chat-1"))
	waitForFinished(t, tr, "chat-1")
}

func TestTransport_ReplacingTrackDropsOldTimer(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "chat-1"))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(40*time.Millisecond)))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(120*time.Millisecond)))

	// Only one finished event, from the second track.
	waitForFinished(t, tr, "chat-1")
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_LeaveRemovesCall(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "chat-1"))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(30*time.Millisecond)))
	require.NoError(t, tr.Leave(ctx, "chat-1"))
	assert.False(t, tr.Joined("chat-1"))

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event after leave: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_ChatsDoNotInterfere(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "chat-1"))
	require.NoError(t, tr.Join(ctx, "chat-2"))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(30*time.Millisecond)))
	require.NoError(t, tr.Play(ctx, "chat-2", handleWithDuration(time.Hour)))

	waitForFinished(t, tr, "chat-1")
	assert.True(t, tr.Joined("chat-2"))
}

func TestTransport_DefaultDurationApplies(t *testing.T) {
	tr := New(Options{DefaultTrackDuration: 30 * time.Millisecond, TickInterval: 5 * time.Millisecond})
	t.Cleanup(tr.Close)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "chat-1"))
	require.NoError(t, tr.Play(ctx, "chat-1", handleWithDuration(0)))

	waitForFinished(t, tr, "chat-1")
}
