package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleet-monitor/speedwatch/internal/config"
	"fleet-monitor/speedwatch/internal/domain"
)

// FleetAPI is the part of monitor.Fleet the API exposes.
type FleetAPI interface {
	Summary() domain.FleetSnapshot
	Status(id string) (domain.VesselStatus, bool)
	Register(cfg domain.VesselConfig) error
	Deregister(ctx context.Context, id string) error
	Len() int
}

type AlertHistory interface {
	RecentAlerts(ctx context.Context, id string, limit int64) ([]domain.AlertEvent, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	defaultAlertLimit  = 20
	maxAlertLimit      = 100
	deregisterTimeout  = 30 * time.Second
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = 1 << 16
)

type Options struct {
	Defaults       config.Defaults
	StreamInterval time.Duration
	// Alerts serves the per-vessel alert log; nil disables the endpoint.
	Alerts AlertHistory
	// Health lists the backends /healthz pings, by name.
	Health map[string]Pinger
	Logger *slog.Logger
}

type Handler struct {
	fleet  FleetAPI
	opts   Options
	logger *slog.Logger
}

func NewHandler(fleet FleetAPI, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 5 * time.Second
	}
	return &Handler{fleet: fleet, opts: opts, logger: opts.Logger}
}

// Routes mounts the API behind auth; /healthz and /metrics stay public.
func (h *Handler) Routes(auth *AuthMiddleware) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/fleet", h.GetFleet)
	api.HandleFunc("GET /api/v1/fleet/stream", h.StreamFleet)
	api.HandleFunc("GET /api/v1/vessels/{id}", h.GetVessel)
	api.HandleFunc("GET /api/v1/vessels/{id}/alerts", h.GetVesselAlerts)
	api.HandleFunc("POST /api/v1/vessels", h.RegisterVessel)
	api.HandleFunc("DELETE /api/v1/vessels/{id}", h.DeregisterVessel)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	if auth != nil {
		mux.Handle("/api/v1/", auth.Wrap(api))
	} else {
		mux.Handle("/api/v1/", api)
	}
	return mux
}

func (h *Handler) GetFleet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.fleet.Summary())
}

func (h *Handler) GetVessel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := h.fleet.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "vessel not registered: "+id)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) GetVesselAlerts(w http.ResponseWriter, r *http.Request) {
	if h.opts.Alerts == nil {
		writeError(w, http.StatusNotImplemented, "alert history is disabled")
		return
	}

	limit := int64(defaultAlertLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAlertLimit)
	}

	id := r.PathValue("id")
	alerts, err := h.opts.Alerts.RecentAlerts(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("alert history lookup failed", "vessel", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (h *Handler) RegisterVessel(w http.ResponseWriter, r *http.Request) {
	var rec config.VesselRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	cfg := rec.ToConfig(h.opts.Defaults)
	if err := h.fleet.Register(cfg); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	st, _ := h.fleet.Status(cfg.ID)
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) DeregisterVessel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), deregisterTimeout)
	defer cancel()

	if err := h.fleet.Deregister(ctx, r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.opts.Health))
	status := http.StatusOK
	for name, p := range h.opts.Health {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]interface{}{
		"status":  "healthy",
		"vessels": h.fleet.Len(),
		"checks":  checks,
		"time":    time.Now().Unix(),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateVessel):
		return http.StatusConflict
	case errors.Is(err, domain.ErrVesselNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFleetClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
