package simm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGradientDocument(t *testing.T) {
	doc, err := DecodeGradientDocument(strings.NewReader(`{
		"evaluation_time": "2024-03-28T00:00:00Z",
		"sensitivities": [
			{"risk_class": "IR", "margin_type": "delta", "product_class": "RatesFX", "bucket": "USD", "qualifier": "USD", "vertex": "1y", "sub_curve": "OIS", "values": [1, 2]},
			{"risk_class": "IR", "margin_type": "delta", "product_class": "RatesFX", "bucket": "USD", "qualifier": "USD", "vertex": "1y", "sub_curve": "OIS", "values": 3},
			{"risk_class": "Equity", "margin_type": "Delta", "product_class": "Equity", "bucket": "1", "qualifier": "ACME", "values": 5}
		]
	}`))
	require.NoError(t, err)
	assert.True(t, doc.EvaluationTime.Equal(evalTime))

	g, err := doc.Gradient()
	require.NoError(t, err)
	require.Len(t, g, 2)
	assert.Equal(t, []float64{4, 5}, g[rateDelta("USD", "1y")].Values())
	assert.Equal(t, 5.0, scalarOf(g[equityDelta("1", "ACME")]))
}

func TestGradientDocument_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown risk class": `{"sensitivities": [{"risk_class": "Weather", "margin_type": "Delta", "product_class": "Equity", "bucket": "1", "values": 1}]}`,
		"missing bucket":     `{"sensitivities": [{"risk_class": "Equity", "margin_type": "Delta", "product_class": "Equity", "values": 1}]}`,
		"ensemble mismatch": `{"sensitivities": [
			{"risk_class": "Equity", "margin_type": "Delta", "product_class": "Equity", "bucket": "1", "qualifier": "A", "values": [1, 2]},
			{"risk_class": "Equity", "margin_type": "Delta", "product_class": "Equity", "bucket": "1", "qualifier": "B", "values": [1, 2, 3]}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := DecodeGradientDocument(strings.NewReader(body))
			if err == nil {
				_, err = doc.Gradient()
			}
			assert.Error(t, err)
		})
	}
}

func TestNewGradientDocument_CanonicalOrder(t *testing.T) {
	doc := NewGradientDocument(evalTime, Gradient{
		equityDelta("1", "B"):  newVec(1),
		rateDelta("USD", "5y"): newVec(2),
		equityDelta("1", "A"):  newVec(3),
	})
	require.Len(t, doc.Sensitivities, 3)
	assert.Equal(t, InterestRate, doc.Sensitivities[0].RiskClass)
	assert.Equal(t, "A", doc.Sensitivities[1].Qualifier)
	assert.Equal(t, "B", doc.Sensitivities[2].Qualifier)
}
