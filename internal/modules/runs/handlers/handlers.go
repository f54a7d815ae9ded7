// Package handlers provides HTTP handlers for stored margin runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/modules/runs"
	"github.com/aristath/simm/internal/modules/simm"
)

const maxBodyBytes = 32 << 20

// Handler handles margin run HTTP requests
type Handler struct {
	service *runs.Service
	log     zerolog.Logger
}

// NewHandler creates a new run handler
func NewHandler(service *runs.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "runs").Logger(),
	}
}

// CreateRunRequest is the body of POST /api/runs.
type CreateRunRequest struct {
	simm.GradientDocument
	Label            string   `json:"label,omitempty"`
	PostingThreshold *float64 `json:"posting_threshold,omitempty"`
	Shards           int      `json:"shards,omitempty"`
}

// HandleCreateRun handles POST /api/runs
func (h *Handler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	g, err := req.Gradient()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.service.Run(r.Context(), runs.Request{
		Label:            req.Label,
		EvaluationTime:   req.EvaluationTime,
		Gradient:         g,
		PostingThreshold: req.PostingThreshold,
		Shards:           req.Shards,
	})
	switch {
	case err == nil:
	case errors.Is(err, simm.ErrConfiguration):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, simm.ErrEnsembleMismatch):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.log.Error().Err(err).Msg("Failed to create margin run")
		h.writeError(w, http.StatusInternalServerError, "Failed to create margin run")
		return
	}

	h.writeJSON(w, http.StatusCreated, run)
}

// HandleListRuns handles GET /api/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list margin runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list margin runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.service.Get(r.Context(), id)
	if errors.Is(err, runs.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Margin run not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get margin run")
		h.writeError(w, http.StatusInternalServerError, "Failed to get margin run")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
