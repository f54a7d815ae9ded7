package handlers

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/internal/modules/simm/params"
	testhelpers "github.com/aristath/simm/internal/testing"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	table, err := params.Default()
	require.NoError(t, err)

	h := NewHandler(simm.NewCalculator(table, zerolog.Nop()), zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func post(t *testing.T, r http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/simm/margin", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleComputeMargin(t *testing.T) {
	r := setupRouter(t)
	doc := simm.NewGradientDocument(time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), testhelpers.NewGradientFixture(3))

	w := post(t, r, MarginRequest{GradientDocument: *doc})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Result struct {
				Paths          int       `json:"paths"`
				Total          []float64 `json:"total"`
				ProductClasses []struct {
					ProductClass string `json:"product_class"`
				} `json:"product_classes"`
			} `json:"result"`
			Summary struct {
				Paths int     `json:"paths"`
				Mean  float64 `json:"mean"`
			} `json:"summary"`
		} `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.Result.Paths)
	assert.Len(t, resp.Data.Result.Total, 3)
	require.Len(t, resp.Data.Result.ProductClasses, 2)
	assert.Equal(t, "RatesFX", resp.Data.Result.ProductClasses[0].ProductClass)
	assert.Equal(t, "Equity", resp.Data.Result.ProductClasses[1].ProductClass)
	assert.Greater(t, resp.Data.Summary.Mean, 0.0)
	assert.Contains(t, resp.Metadata, "timestamp")
}

func TestHandleComputeMargin_RiskClassFilter(t *testing.T) {
	r := setupRouter(t)
	doc := simm.NewGradientDocument(time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), testhelpers.NewGradientFixture(1))
	rc := simm.FX

	w := post(t, r, MarginRequest{GradientDocument: *doc, RiskClass: &rc})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			RiskClass string  `json:"risk_class"`
			Margin    float64 `json:"margin"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "FX", resp.Data.RiskClass)
	assert.InDelta(t, 40e6*7.4*math.Sqrt(40e6/8400e6), resp.Data.Margin, 1e-3)
}

func TestHandleComputeMargin_Errors(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"sensitivities": [`, http.StatusBadRequest},
		{"unknown risk class", `{"sensitivities": [{"risk_class": "Weather", "margin_type": "Delta", "product_class": "Equity", "bucket": "1", "values": 1}]}`, http.StatusBadRequest},
		{"ensemble mismatch", `{"sensitivities": [
			{"risk_class": "Equity", "margin_type": "Delta", "product_class": "Equity", "bucket": "1", "qualifier": "A", "values": [1, 2]},
			{"risk_class": "Equity", "margin_type": "Delta", "product_class": "Equity", "bucket": "1", "qualifier": "B", "values": [1, 2, 3]}]}`, http.StatusBadRequest},
		{"unknown bucket", `{"sensitivities": [{"risk_class": "Equity", "margin_type": "Delta", "product_class": "Equity", "bucket": "99", "qualifier": "A", "values": 1}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/simm/margin", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
