// Package handlers provides HTTP handlers for SIMM margin computation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/pkg/ensemble"
)

// maxBodyBytes bounds gradient uploads.
const maxBodyBytes = 32 << 20

// Handler handles margin HTTP requests
type Handler struct {
	calc *simm.Calculator
	log  zerolog.Logger
}

// NewHandler creates a new margin handler
func NewHandler(calc *simm.Calculator, log zerolog.Logger) *Handler {
	return &Handler{
		calc: calc,
		log:  log.With().Str("handler", "simm").Logger(),
	}
}

// MarginRequest is the body of POST /api/simm/margin.
type MarginRequest struct {
	simm.GradientDocument
	PostingThreshold *float64 `json:"posting_threshold,omitempty"`
	Shards           int      `json:"shards,omitempty"`
	// RiskClass restricts the response to one risk class margin.
	RiskClass *simm.RiskClass `json:"risk_class,omitempty"`
}

// HandleComputeMargin handles POST /api/simm/margin
func (h *Handler) HandleComputeMargin(w http.ResponseWriter, r *http.Request) {
	var req MarginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	g, err := req.Gradient()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	evaluation := req.EvaluationTime
	if evaluation.IsZero() {
		evaluation = time.Now().UTC().Truncate(24 * time.Hour)
	}
	calc := h.calc
	if req.PostingThreshold != nil {
		calc = calc.Derive(simm.WithPostingThreshold(*req.PostingThreshold))
	}

	if req.RiskClass != nil {
		margin, err := calc.RiskClassMargin(evaluation, g, *req.RiskClass)
		if err != nil {
			h.writeComputeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"evaluation_time": evaluation,
			"risk_class":      *req.RiskClass,
			"margin":          margin,
			"summary":         ensemble.Summarize(margin),
		})
		return
	}

	res, err := calc.Evaluate(r.Context(), evaluation, g, req.Shards)
	if err != nil {
		h.writeComputeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":  res,
		"summary": ensemble.Summarize(res.Total),
	})
}

// writeComputeError maps calculation errors to status codes.
func (h *Handler) writeComputeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, simm.ErrConfiguration):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, simm.ErrEnsembleMismatch):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Failed to compute margin")
		h.writeError(w, http.StatusInternalServerError, "Failed to compute margin")
	}
}

// writeJSON wraps data in the response envelope
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
