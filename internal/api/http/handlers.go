package apihttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"mediajukebox/internal/usecase"
)

type submitRequest struct {
	URL         string `json:"url"`
	SubmittedBy string `json:"submitted_by"`
	PromoLink   string `json:"promo_link,omitempty"`
}

type submitResponse struct {
	ID           string `json:"id"`
	Position     int64  `json:"position"`
	PromoDropped bool   `json:"promo_dropped,omitempty"`
	Notice       string `json:"notice,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.allowSubmission(req.SubmittedBy) {
		writeError(w, http.StatusTooManyRequests, "slow down")
		return
	}

	result, err := s.submit.Execute(usecase.SubmitInput{
		URL:         req.URL,
		SubmittedBy: req.SubmittedBy,
		PromoLink:   req.PromoLink,
	})
	switch {
	case errors.Is(err, usecase.ErrInvalidURL):
		writeError(w, http.StatusUnprocessableEntity, "provide a valid Twitch/YouTube URL or direct media link")
		return
	case errors.Is(err, usecase.ErrEmptySubmitter):
		writeError(w, http.StatusUnprocessableEntity, "submitter is required")
		return
	case err != nil:
		s.logger.Error("submit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not enqueue submission")
		return
	}

	resp := submitResponse{
		ID:           result.ID,
		Position:     result.Position,
		PromoDropped: result.PromoDropped,
	}
	if result.FirstSubmission {
		resp.Notice = usecase.NoticeText
	}
	s.hub.BroadcastQueueChanged()
	writeJSON(w, http.StatusCreated, resp)
}

type queueEntryResponse struct {
	Position    int64  `json:"position"`
	Title       string `json:"title"`
	SubmittedBy string `json:"submitted_by"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.queueView == nil {
		writeError(w, http.StatusNotImplemented, "queue view not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := s.queueView.Execute(limit)
	if err != nil {
		s.logger.Error("queue view failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not read queue")
		return
	}
	out := make([]queueEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, queueEntryResponse{Position: e.Position, Title: e.Title, SubmittedBy: e.SubmittedBy})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type nowPlayingResponse struct {
	Playing     bool   `json:"playing"`
	Title       string `json:"title,omitempty"`
	SubmittedBy string `json:"submitted_by,omitempty"`
	PromoLink   string `json:"promo_link,omitempty"`
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	if s.nowPlaying == nil {
		writeError(w, http.StatusNotImplemented, "now playing not configured")
		return
	}
	item, ok, err := s.nowPlaying.Execute()
	if err != nil {
		s.logger.Error("now playing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not read now playing")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nowPlayingResponse{Playing: false})
		return
	}
	writeJSON(w, http.StatusOK, nowPlayingResponse{
		Playing:     true,
		Title:       item.Title,
		SubmittedBy: item.SubmittedBy,
		PromoLink:   item.PromoLink,
	})
}

type controlRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	if s.skip == nil {
		writeError(w, http.StatusNotImplemented, "skip not configured")
		return
	}
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.skip.Execute(usecase.ParseRole(req.Role)); err != nil {
		if errors.Is(err, usecase.ErrNotAuthorized) {
			writeError(w, http.StatusForbidden, "only moderators or the broadcaster can skip")
			return
		}
		writeError(w, http.StatusInternalServerError, "skip failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipping"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if s.clear == nil {
		writeError(w, http.StatusNotImplemented, "clear not configured")
		return
	}
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	removed, err := s.clear.Execute(usecase.ParseRole(req.Role))
	if err != nil {
		if errors.Is(err, usecase.ErrNotAuthorized) {
			writeError(w, http.StatusForbidden, "only the broadcaster can clear the queue")
			return
		}
		s.logger.Error("clear failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	s.hub.BroadcastQueueChanged()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
