package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tunedeck/tunedeck/internal/app/notification"
)

const streamBufferSize = 32

// eventDTO is the wire form of a playback notification.
type eventDTO struct {
	Seq    uint64    `json:"seq"`
	Type   string    `json:"type"`
	ChatID string    `json:"chat_id"`
	State  string    `json:"state"`
	Track  *trackDTO `json:"track,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// sseStream buffers envelopes for one SSE connection. A full buffer
// fails the send; the subscriber is considered too slow.
type sseStream struct {
	ch chan notification.Envelope
}

func (s *sseStream) Send(env notification.Envelope) error {
	select {
	case s.ch <- env:
		return nil
	default:
		return errors.New("subscriber buffer full")
	}
}

// handleEvents streams playback notifications as server-sent events.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := &sseStream{ch: make(chan notification.Envelope, streamBufferSize)}
	id := h.manager.Subscribe(stream)
	defer h.manager.Unsubscribe(id)
	zlog.Debug().Msgf("httpapi: event stream opened: subscription=%s", id)

	for {
		select {
		case <-r.Context().Done():
			zlog.Debug().Msgf("httpapi: event stream closed: subscription=%s", id)
			return
		case env := <-stream.ch:
			n := env.Notification
			dto := eventDTO{
				Seq:    env.SequenceNo,
				Type:   n.Type.String(),
				ChatID: n.ChatID,
				State:  n.State.String(),
			}
			if n.Track != nil {
				t := toTrackDTO(*n.Track)
				dto.Track = &t
			}
			if n.Cause != nil {
				dto.Error = n.Cause.Error()
			}

			data, err := json.Marshal(dto)
			if err != nil {
				zlog.Warn().Msgf("httpapi: event encode failed: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
