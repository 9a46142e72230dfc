package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harun/quill/internal/tracing"
	"github.com/harun/quill/pkg/agent"
	"github.com/harun/quill/pkg/ledger"
)

type statusRequest struct {
	Status string `json:"status"`
}

type entryResponse struct {
	ledger.Entry
	URL string `json:"url,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.serveRun(w, r, s.runner.Run)
}

func (s *Server) handleConverse(w http.ResponseWriter, r *http.Request) {
	s.serveRun(w, r, s.runner.Converse)
}

type runFunc func(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error)

func (s *Server) serveRun(w http.ResponseWriter, r *http.Request, run runFunc) {
	var req agent.RunRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.limiters.enabled() {
		release, reason := s.limiters.acquire(strings.TrimSpace(req.TenantID))
		if release == nil {
			respondError(w, http.StatusTooManyRequests, reason)
			return
		}
		defer release()
	}

	resp, err := run(r.Context(), req)
	if err != nil {
		s.respondRunError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.respondRunError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entryResponse{Entry: entry, URL: s.ledger.URL(entry.ID)})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.approver.Approve(r.Context(), id)
	if err != nil {
		s.respondRunError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := ledger.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.ledger.Advance(r.Context(), id, status)
	if err != nil {
		s.respondRunError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entryResponse{Entry: entry, URL: s.ledger.URL(entry.ID)})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		cfgErr   *agent.ConfigurationError
		modelErr *agent.ModelError
	)
	switch {
	case errors.Is(err, agent.ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidTransition), errors.Is(err, agent.ErrNotAwaitingApproval):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.As(err, &modelErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondRunError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request rejected")
	}
	respondError(w, status, err.Error())
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
