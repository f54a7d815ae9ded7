package simm

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simm/pkg/ensemble"
)

func equityCurvature(bucket, qualifier, tenor string) Coordinate {
	c := equityDelta(bucket, qualifier)
	c.MarginType = Curvature
	c.Vertex = tenor
	return c
}

func TestCurvatureLambda(t *testing.T) {
	z := curvatureQuantile
	assert.InDelta(t, 2.5758, z, 1e-4)

	lambda := CurvatureLambda(ensemble.New(0, -1, -0.5))
	assert.InDelta(t, z*z-1, lambda.At(0), 1e-12)
	assert.InDelta(t, 1, lambda.At(1), 1e-12)
	assert.InDelta(t, 0.5*(z*z-1)+0.5, lambda.At(2), 1e-12)
}

func TestCurvatureTheta(t *testing.T) {
	theta := curvatureTheta(ensemble.New(5, -3, 0), ensemble.New(5, 4, 0))
	assert.Equal(t, []float64{0, -0.75, 0}, theta.Values())
}

func TestCalculator_Curvature_SingleFactor(t *testing.T) {
	p := newFakeProvider()
	p.riskWeight = 0.5
	calc := NewCalculator(p, zerolog.Nop())

	m, err := calc.RiskClassMargin(evalTime, Gradient{
		equityCurvature("1", "ACME", "1y"): ensemble.New(10, -10),
	}, Equity)
	require.NoError(t, err)

	lambda := CurvatureLambda(ensemble.Scalar(0)).At(0)
	// positive CVR: θ = 0, margin = λ·5 + 5
	assert.InDelta(t, lambda*5+5, m.At(0), 1e-9)
	// negative CVR: θ = -1, λ = 1, margin = max(0, 5 - 5)
	assert.InDelta(t, 0, m.At(1), 1e-9)
}

func TestCalculator_Curvature_SquaresVegaCorrelations(t *testing.T) {
	p := newFakeProvider()
	p.riskWeight = 1
	var asked []MarginType
	p.intraFn = func(a, b Coordinate) (float64, error) {
		asked = append(asked, a.MarginType, b.MarginType)
		return 0.5, nil
	}
	calc := NewCalculator(p, zerolog.Nop())

	m, err := calc.RiskClassMargin(evalTime, Gradient{
		equityCurvature("1", "A", "1y"): ensemble.Scalar(3),
		equityCurvature("1", "B", "1y"): ensemble.Scalar(4),
	}, Equity)
	require.NoError(t, err)

	assert.Equal(t, []MarginType{Vega, Vega}, asked)
	k := 9.0 + 16 + 2*0.25*12
	lambda := CurvatureLambda(ensemble.Scalar(0)).At(0)
	want := lambda*math.Sqrt(k) + 7
	assert.InDelta(t, want, scalarOf(m), 1e-9)
}

func TestCalculator_Curvature_ResidualHasOwnPartition(t *testing.T) {
	p := newFakeProvider()
	p.riskWeight = 1
	calc := NewCalculator(p, zerolog.Nop())

	m, err := calc.RiskClassMargin(evalTime, Gradient{
		equityCurvature("1", "A", "1y"):            ensemble.Scalar(4),
		equityCurvature(ResidualBucket, "B", "1y"): ensemble.Scalar(-4),
	}, Equity)
	require.NoError(t, err)

	// a shared partition would net to zero; separate partitions keep the positive side
	lambda := CurvatureLambda(ensemble.Scalar(0)).At(0)
	assert.InDelta(t, lambda*4+4, scalarOf(m), 1e-9)
}
