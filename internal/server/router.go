package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/l0p7/purgectl/internal/events"
	"github.com/l0p7/purgectl/internal/invalidation"
	"github.com/l0p7/purgectl/internal/invalidation/cdn"
)

const maxBodyBytes = 1 << 20

// Engine is the part of the dispatcher the admin surface drives.
type Engine interface {
	InvalidateManually(ctx context.Context) invalidation.Result
	InvalidateEntity(ctx context.Context, entity invalidation.Entity) invalidation.Result
	InvalidateOnStatusChange(ctx context.Context, newStatus, oldStatus string, entity invalidation.Entity) invalidation.Result
	ListRecentInvalidations(ctx context.Context) ([]cdn.Invalidation, error)
}

type HandlerOptions struct {
	// AdminToken guards every route that can trigger an invalidation. When
	// empty those routes are refused.
	AdminToken string
	Metrics    http.Handler
	Logger     *slog.Logger
}

type adminHandler struct {
	engine Engine
	token  []byte
	logger *slog.Logger
}

// NewAdminHandler routes the admin and webhook surface to the engine.
func NewAdminHandler(engine Engine, opts HandlerOptions) http.Handler {
	if engine == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &adminHandler{
		engine: engine,
		token:  []byte(strings.TrimSpace(opts.AdminToken)),
		logger: opts.Logger.With(slog.String("agent", "admin_http")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /invalidations", h.serveHistory)
	mux.HandleFunc("POST /invalidations/all", h.requireToken(h.serveInvalidateAll))
	mux.HandleFunc("POST /invalidations/entity", h.requireToken(h.serveInvalidateEntity))
	mux.HandleFunc("POST /events", h.requireToken(h.serveEvent))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	return mux
}

func (h *adminHandler) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(h.token) == 0 {
			writeError(w, h.logger, http.StatusForbidden, "admin token not configured")
			return
		}
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), h.token) != 1 {
			writeError(w, h.logger, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

func (h *adminHandler) serveHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ListRecentInvalidations(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, invalidation.ErrNoDistribution) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, h.logger, status, err.Error())
		return
	}
	if items == nil {
		items = []cdn.Invalidation{}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"invalidations": items})
}

func (h *adminHandler) serveInvalidateAll(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.engine.InvalidateManually(r.Context()))
}

func (h *adminHandler) serveInvalidateEntity(w http.ResponseWriter, r *http.Request) {
	var entity invalidation.Entity
	if err := decodeBody(r, &entity); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(entity.Permalink) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "permalink required")
		return
	}
	h.writeResult(w, h.engine.InvalidateEntity(r.Context(), entity))
}

func (h *adminHandler) serveEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "read body failed")
		return
	}
	event, err := events.Decode(body)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	result := h.engine.InvalidateOnStatusChange(r.Context(), event.NewStatus, event.OldStatus, event.Entity)
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"outcome": string(result.Outcome)})
}

func (h *adminHandler) writeResult(w http.ResponseWriter, result invalidation.Result) {
	status := http.StatusOK
	switch result.Outcome {
	case invalidation.OutcomeDeferred:
		status = http.StatusAccepted
	case invalidation.OutcomeFailed:
		status = http.StatusBadGateway
		switch {
		case errors.Is(result.Err, invalidation.ErrNoDistribution):
			status = http.StatusServiceUnavailable
		case errors.Is(result.Err, invalidation.ErrInvalidPermalink):
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, h.logger, status, result)
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("response encode failed", slog.Any("error", err))
	}
}
