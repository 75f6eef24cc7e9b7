// Package api exposes administrative HTTP handlers over an engine's job
// table: listing and inspecting jobs, reactivation, suspension, deletion
// and dead-letter maintenance.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/engine"
)

// API wires all HTTP handlers together for one engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API from an Engine.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns a router with every route mounted at its root.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes into the given router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", a.listJobs)
			r.Get("/counts", a.jobCounts)
			r.Get("/{jobId}", a.getJob)
			r.Delete("/{jobId}", a.deleteJob)
			r.Post("/{jobId}/reactivate", a.reactivateJob)
			r.Post("/{jobId}/suspend", a.suspendJob)
		})

		r.Route("/process-instances/{processInstanceId}", func(r chi.Router) {
			r.Post("/suspend", a.suspendInstance)
			r.Post("/activate", a.activateInstance)
		})

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", a.listDLQ)
			r.Get("/count", a.dlqCount)
			r.Post("/purge", a.purgeDLQ)
			r.Post("/replay", a.replayAllDLQ)
			r.Get("/{jobId}", a.getDLQ)
			r.Post("/{jobId}/replay", a.replayDLQ)
		})

		r.Get("/stats", a.stats)
	})
}

// ── helpers ──────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("encode response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("api request failed", slog.String("error", err.Error()))
	}
	a.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusOf maps sentinel errors to HTTP status codes.
func statusOf(err error) int {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, asyncexec.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, asyncexec.ErrInvalidState),
		errors.Is(err, asyncexec.ErrProcessInstanceBusy),
		errors.Is(err, errConflict):
		return http.StatusConflict
	case errors.Is(err, asyncexec.ErrInvalidRetries):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

var errConflict = errors.New("job changed concurrently, retry")

func jobIDParam(r *http.Request) (asyncexec.JobID, error) {
	raw := chi.URLParam(r, "jobId")
	jobID, err := asyncexec.ParseJobID(raw)
	if err != nil {
		return asyncexec.JobID{}, badRequest("invalid job ID: " + err.Error())
	}
	return jobID, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("invalid " + name + ": " + raw)
	}
	return n, nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
