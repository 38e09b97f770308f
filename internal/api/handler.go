package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lyrebird/internal/logging"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
)

// RunningFunc reports whether the poller is active; injected so the handler
// does not depend on the workflow package.
type RunningFunc func() bool

// Handler serves the job queue over HTTP.
type Handler struct {
	store   *queue.Store
	tracker *progress.Tracker
	running RunningFunc
	logger  *slog.Logger
	started time.Time
}

// NewHandler builds the chi router for the query interface.
func NewHandler(store *queue.Store, tracker *progress.Tracker, running RunningFunc, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if running == nil {
		running = func() bool { return false }
	}
	h := &Handler{
		store:   store,
		tracker: tracker,
		running: running,
		logger:  logging.WithComponent(logger, "api"),
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.handleListJobs)
			r.Post("/", h.handleSubmitJob)
			r.Get("/{id}", h.handleGetJob)
			r.Post("/{id}/retry", h.handleRetryJob)
			r.Delete("/{id}", h.handleRemoveJob)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Health(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "queue health unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, HealthView{
		Running:    h.running(),
		Total:      summary.Total,
		Queued:     summary.Queued,
		Processing: summary.Processing,
		Completed:  summary.Completed,
		Errored:    summary.Errored,
		Uptime:     int64(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			status, ok := queue.ParseStatus(strings.TrimSpace(value))
			if !ok {
				h.writeError(w, http.StatusBadRequest, "unknown status "+value)
				return
			}
			statuses = append(statuses, status)
		}
	}

	jobs, err := h.store.List(r.Context(), statuses...)
	if err != nil {
		h.logger.Error("listing jobs failed", logging.Error(err))
		h.writeError(w, http.StatusInternalServerError, "listing jobs failed")
		return
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		h.tracker.Overlay(job)
		views = append(views, viewFromJob(job, false))
	}
	h.writeJSON(w, http.StatusOK, views)
}

type submitRequest struct {
	SourceReference string `json:"source_reference"`
}

func (h *Handler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SourceReference) == "" {
		h.writeError(w, http.StatusBadRequest, "source_reference is required")
		return
	}

	job, err := h.store.NewJob(r.Context(), strings.TrimSpace(req.SourceReference))
	if err != nil {
		h.logger.Error("enqueue failed", logging.Error(err))
		h.writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	h.logger.Info("job submitted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("source", job.SourceReference),
	)
	h.writeJSON(w, http.StatusCreated, viewFromJob(job, false))
}

// handleGetJob reads through the progress bridge so an actively processing
// job reports its live percentage rather than the last durable write.
func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.tracker.JobView(r.Context(), id)
	if err != nil {
		h.logger.Error("fetching job failed", logging.Int64(logging.FieldJobID, id), logging.Error(err))
		h.writeError(w, http.StatusInternalServerError, "fetching job failed")
		return
	}
	if job == nil {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	h.writeJSON(w, http.StatusOK, viewFromJob(job, true))
}

func (h *Handler) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	count, err := h.store.RetryFailed(r.Context(), id)
	if err != nil {
		h.logger.Error("retry failed", logging.Int64(logging.FieldJobID, id), logging.Error(err))
		h.writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	if count == 0 {
		h.writeError(w, http.StatusConflict, "job is not in the error state")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"retried": count})
}

func (h *Handler) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	removed, err := h.store.Remove(r.Context(), id)
	if err != nil {
		h.logger.Error("remove failed", logging.Int64(logging.FieldJobID, id), logging.Error(err))
		h.writeError(w, http.StatusInternalServerError, "remove failed")
		return
	}
	if !removed {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("encoding response failed", logging.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
