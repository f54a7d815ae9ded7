package simm

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRiskClass(t *testing.T) {
	tests := []struct {
		in   string
		want RiskClass
	}{
		{"InterestRate", InterestRate},
		{"Risk_IRDelta", InterestRate},
		{"credit-qualifying", CreditQualifying},
		{"CreditNonQ", CreditNonQualifying},
		{" equity ", Equity},
		{"Commodity", Commodity},
		{"FX", FX},
	}
	for _, tt := range tests {
		got, err := ParseRiskClass(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseRiskClass("inflation")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestTenorDays(t *testing.T) {
	d, ok := TenorDays("2w")
	require.True(t, ok)
	assert.Equal(t, 14.0, d)

	d, ok = TenorDays("10y")
	require.True(t, ok)
	assert.Equal(t, 3650.0, d)

	_, ok = TenorDays("OIS")
	assert.False(t, ok)
}

func TestCompare_OrdersTenorsByMaturity(t *testing.T) {
	coords := []Coordinate{
		rateDelta("USD", "10y"),
		rateDelta("USD", "1y"),
		rateDelta("EUR", "30y"),
		rateDelta("USD", "3m"),
		equityDelta("1", "ACME"),
	}
	sort.Slice(coords, func(i, j int) bool { return Compare(coords[i], coords[j]) < 0 })

	assert.Equal(t, "EUR", coords[0].Bucket)
	assert.Equal(t, []string{"3m", "1y", "10y"}, []string{coords[1].Vertex, coords[2].Vertex, coords[3].Vertex})
	assert.Equal(t, Equity, coords[4].RiskClass)
}

func TestEnums_TextEncoding(t *testing.T) {
	raw, err := json.Marshal(struct {
		RC RiskClass    `json:"rc"`
		MT MarginType   `json:"mt"`
		PC ProductClass `json:"pc"`
	}{CreditQualifying, Vega, CommodityProduct})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rc":"CreditQualifying","mt":"Vega","pc":"Commodity"}`, string(raw))

	var rc RiskClass
	require.NoError(t, json.Unmarshal([]byte(`"Equity"`), &rc))
	assert.Equal(t, Equity, rc)

	_, err = json.Marshal(RiskClass(9))
	assert.Error(t, err)
}

func TestGradient_ShardKeepsCoordinates(t *testing.T) {
	g := Gradient{
		equityDelta("1", "A"): newVec(1, 2, 3, 4, 5),
		equityDelta("1", "B"): newVec(7),
	}
	shards, err := g.Shard(2)
	require.NoError(t, err)
	require.Len(t, shards, 2)
	assert.Equal(t, []float64{1, 2, 3}, shards[0][equityDelta("1", "A")].Values())
	assert.Equal(t, []float64{4, 5}, shards[1][equityDelta("1", "A")].Values())
	assert.Equal(t, []float64{7}, shards[1][equityDelta("1", "B")].Values())
}

func TestGradient_FingerprintTracksValues(t *testing.T) {
	a := Gradient{equityDelta("1", "A"): newVec(1, 2)}
	b := Gradient{equityDelta("1", "A"): newVec(1, 2)}
	c := Gradient{equityDelta("1", "A"): newVec(1, 3)}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
