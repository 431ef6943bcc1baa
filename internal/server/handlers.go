package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/sqlstream/internal/server/notifier"
	"github.com/leapstack-labs/sqlstream/internal/state"
	"github.com/leapstack-labs/sqlstream/internal/stream"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

const (
	healthTimeout       = 5 * time.Second
	defaultSessionLimit = 50
)

// Handlers provides the HTTP handlers.
type Handlers struct {
	dispatcher *stream.Dispatcher
	backend    Backend
	sessions   SessionLister
	notifier   *notifier.Notifier
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		dispatcher: cfg.Dispatcher,
		backend:    cfg.Backend,
		sessions:   cfg.Sessions,
		notifier:   cfg.Notifier,
		gatherer:   cfg.Gatherer,
		logger:     logger,
	}
}

// UpdateSignal is the payload of one streamed update.
type UpdateSignal struct {
	Key   string           `json:"key"`
	State core.StreamState `json:"state,omitempty"`
	Frame *core.DataFrame  `json:"frame,omitempty"`
	Error string           `json:"error,omitempty"`
}

// NewUpdateSignal converts a feed update to its wire form.
func NewUpdateSignal(u core.Update) UpdateSignal {
	if u.IsError() {
		return UpdateSignal{Key: u.Key, Error: u.Err.Error()}
	}
	return UpdateSignal{Key: u.Key, State: u.State, Frame: u.Frame}
}

// VariablesRequest is the body of POST /api/variables.
type VariablesRequest struct {
	Query      string            `json:"query"`
	ScopedVars map[string]string `json:"scopedVars,omitempty"`
}

// Query dispatches a request. Streaming requests are answered with an SSE
// stream that lasts until the client disconnects.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req core.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &core.ValidationError{Message: "invalid request body: " + err.Error()})
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		h.logger.Debug("query failed", "error", err)
		writeError(w, err)
		return
	}
	if !res.Streaming() {
		writeJSON(w, http.StatusOK, res.Response)
		return
	}

	feed := res.Feed
	defer feed.Cancel()

	sse := datastar.NewSSE(w, r)
	for u := range feed.Events() {
		if err := sse.MarshalAndPatchSignals(NewUpdateSignal(u)); err != nil {
			h.logger.Debug("stream client gone", "error", err)
			return
		}
	}
	h.logger.Debug("stream ended", "error", feed.Err())
}

// Variables runs a variable-value query.
func (h *Handlers) Variables(w http.ResponseWriter, r *http.Request) {
	var req VariablesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &core.ValidationError{Message: "invalid request body: " + err.Error()})
		return
	}

	values, err := h.backend.FindValues(r.Context(), req.Query, req.ScopedVars)
	if err != nil {
		writeError(w, err)
		return
	}
	if values == nil {
		values = []core.MetricFindValue{}
	}
	writeJSON(w, http.StatusOK, values)
}

// Health pings the backend.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Sessions lists recent stream sessions.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	recs, err := h.listSessions(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// SessionUpdates is the long-lived SSE endpoint for session history. It
// sends the current list, then a fresh list whenever a session starts,
// stops or fails a tick.
func (h *Handlers) SessionUpdates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)

	ctx := r.Context()
	if err := h.sendSessions(ctx, sse); err != nil {
		_ = sse.ConsoleError(err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.sendSessions(ctx, sse); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

func (h *Handlers) sendSessions(ctx context.Context, sse *datastar.ServerSentEventGenerator) error {
	recs, err := h.listSessions(ctx, defaultSessionLimit)
	if err != nil {
		return err
	}
	return sse.MarshalAndPatchSignals(map[string]any{"sessions": recs})
}

func (h *Handlers) listSessions(ctx context.Context, limit int) ([]state.SessionRecord, error) {
	if h.sessions == nil {
		return []state.SessionRecord{}, nil
	}
	recs, err := h.sessions.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if recs == nil {
		recs = []state.SessionRecord{}
	}
	return recs, nil
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case core.IsValidationError(err):
		return http.StatusBadRequest
	case core.IsBackendError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
