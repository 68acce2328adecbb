// Package httpapi exposes the playback commands over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tunedeck/tunedeck/internal/app/notification"
	"github.com/tunedeck/tunedeck/internal/app/playback"
	"github.com/tunedeck/tunedeck/internal/app/session"
	"github.com/tunedeck/tunedeck/internal/domain/track"
)

// Manager is the command surface the API serves.
type Manager interface {
	Play(ctx context.Context, chatID string, requester track.Requester, query string) (*session.PlayResult, error)
	Skip(ctx context.Context, chatID string) (track.Ref, error)
	Pause(ctx context.Context, chatID string) error
	Resume(ctx context.Context, chatID string) error
	Clear(ctx context.Context, chatID string) (int, error)
	Stop(ctx context.Context, chatID string) (int, error)
	QueueList(ctx context.Context, chatID string, limit int) (*session.QueueInfo, error)
	NowPlaying(ctx context.Context, chatID string) (track.Ref, playback.State, error)
	Subscribe(stream notification.Stream) string
	Unsubscribe(id string)
}

// Handler serves the JSON API.
type Handler struct {
	manager Manager
}

// NewHandler creates an API handler for the given manager.
func NewHandler(manager Manager) *Handler {
	return &Handler{manager: manager}
}

// Mux returns the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chats/{chat}/play", h.handlePlay)
	mux.HandleFunc("POST /v1/chats/{chat}/skip", h.handleSkip)
	mux.HandleFunc("POST /v1/chats/{chat}/pause", h.handlePause)
	mux.HandleFunc("POST /v1/chats/{chat}/resume", h.handleResume)
	mux.HandleFunc("POST /v1/chats/{chat}/clear", h.handleClear)
	mux.HandleFunc("POST /v1/chats/{chat}/stop", h.handleStop)
	mux.HandleFunc("GET /v1/chats/{chat}/queue", h.handleQueue)
	mux.HandleFunc("GET /v1/chats/{chat}/now", h.handleNowPlaying)
	mux.HandleFunc("GET /v1/events", h.handleEvents)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type playRequest struct {
	Query         string `json:"query"`
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`
}

type playResponse struct {
	Queued       int    `json:"queued"`
	Rejected     int    `json:"rejected,omitempty"`
	QueueLen     int    `json:"queue_len"`
	PlaylistName string `json:"playlist_name,omitempty"`
}

func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requester := track.Requester{
		ID:   req.RequesterID,
		Name: req.RequesterName,
		Type: track.RequesterTypeUser,
	}
	result, err := h.manager.Play(r.Context(), r.PathValue("chat"), requester, req.Query)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playResponse{
		Queued:       result.Queued,
		Rejected:     result.Rejected,
		QueueLen:     result.QueueLen,
		PlaylistName: result.PlaylistName,
	})
}

type trackDTO struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Requester string `json:"requester,omitempty"`
}

func toTrackDTO(ref track.Ref) trackDTO {
	dto := trackDTO{
		ID:        ref.ID,
		Query:     ref.Query,
		Title:     ref.DisplayTitle(),
		Requester: ref.Requester.Name,
	}
	if ref.Handle != nil {
		dto.URL = ref.Handle.URL
	}
	return dto
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	skipped, err := h.manager.Skip(r.Context(), r.PathValue("chat"))
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skipped": toTrackDTO(skipped)})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Pause(r.Context(), r.PathValue("chat")); err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": playback.StatePaused.String()})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Resume(r.Context(), r.PathValue("chat")); err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": playback.StatePlaying.String()})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.manager.Clear(r.Context(), r.PathValue("chat"))
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	removed, err := h.manager.Stop(r.Context(), r.PathValue("chat"))
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

type queueResponse struct {
	ChatID     string     `json:"chat_id"`
	State      string     `json:"state"`
	NowPlaying *trackDTO  `json:"now_playing,omitempty"`
	Entries    []trackDTO `json:"entries"`
	Total      int        `json:"total"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	info, err := h.manager.QueueList(r.Context(), r.PathValue("chat"), limit)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	resp := queueResponse{
		ChatID:  info.ChatID,
		State:   info.State.String(),
		Entries: make([]trackDTO, 0, len(info.Entries)),
		Total:   info.Total,
	}
	if info.NowPlaying != nil {
		dto := toTrackDTO(*info.NowPlaying)
		resp.NowPlaying = &dto
	}
	for _, ref := range info.Entries {
		resp.Entries = append(resp.Entries, toTrackDTO(ref))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	cur, state, err := h.manager.NowPlaying(r.Context(), r.PathValue("chat"))
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state": state.String(),
		"track": toTrackDTO(cur),
	})
}

// writeCommandError maps command errors onto HTTP statuses.
func (h *Handler) writeCommandError(w http.ResponseWriter, err error) {
	var rejection *session.Rejection
	switch {
	case errors.As(err, &rejection):
		writeError(w, http.StatusConflict, rejection.Code)
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotPaused):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		zlog.Error().Msgf("httpapi: command failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Warn().Msgf("httpapi: response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
