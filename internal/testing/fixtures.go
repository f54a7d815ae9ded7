package testing

import (
	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/pkg/ensemble"
)

// NewGradientFixture returns a small multi-class gradient with paths outcomes
// per sensitivity. paths <= 1 gives scalars.
func NewGradientFixture(paths int) simm.Gradient {
	vec := func(base float64) ensemble.Vector {
		if paths <= 1 {
			return ensemble.Scalar(base)
		}
		values := make([]float64, paths)
		for i := range values {
			values[i] = base * (1 + 0.1*float64(i))
		}
		return ensemble.New(values...)
	}

	return simm.Gradient{
		{Vertex: "1y", SubCurve: "OIS", Qualifier: "USD", Bucket: "USD", RiskClass: simm.InterestRate, MarginType: simm.Delta, ProductClass: simm.RatesFX}:  vec(2.5e6),
		{Vertex: "10y", SubCurve: "OIS", Qualifier: "USD", Bucket: "USD", RiskClass: simm.InterestRate, MarginType: simm.Delta, ProductClass: simm.RatesFX}: vec(-1.2e6),
		{Vertex: "5y", SubCurve: "OIS", Qualifier: "EUR", Bucket: "EUR", RiskClass: simm.InterestRate, MarginType: simm.Delta, ProductClass: simm.RatesFX}:  vec(0.8e6),
		{Qualifier: "EUR", Bucket: "1", RiskClass: simm.FX, MarginType: simm.Delta, ProductClass: simm.RatesFX}:                                           vec(40e6),
		{Qualifier: "ACME", Bucket: "1", RiskClass: simm.Equity, MarginType: simm.Delta, ProductClass: simm.EquityProduct}:                                 vec(10e6),
		{Qualifier: "GLOBX", Bucket: "5", RiskClass: simm.Equity, MarginType: simm.Delta, ProductClass: simm.EquityProduct}:                                vec(-6e6),
		{Vertex: "1y", Qualifier: "ACME", Bucket: "1", RiskClass: simm.Equity, MarginType: simm.Vega, ProductClass: simm.EquityProduct}:                     vec(1.5e6),
		{Vertex: "1y", Qualifier: "ACME", Bucket: "1", RiskClass: simm.Equity, MarginType: simm.Curvature, ProductClass: simm.EquityProduct}:                vec(0.4e6),
	}
}
