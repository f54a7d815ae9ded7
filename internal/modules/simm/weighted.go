package simm

import (
	"math"
	"sort"

	"github.com/aristath/simm/pkg/ensemble"
)

// WeightedSensitivity is a risk-weighted, concentration-adjusted sensitivity.
// Only the builders in this package construct it.
type WeightedSensitivity struct {
	Coordinate    Coordinate
	Concentration ensemble.Vector
	Value         ensemble.Vector
}

// NetSensitivity is a sensitivity ready for concentration: additional weights are
// applied and, where the risk class calls for it, tenors are collapsed onto one
// risk factor.
type NetSensitivity struct {
	Coordinate Coordinate
	Amount     ensemble.Vector
}

// BuildWeightedSensitivity weights one raw sensitivity with its own concentration
// factor: a = raw × additionalWeight, CR = min(1, √(|a|/T)), WS = a × RW × CR.
func BuildWeightedSensitivity(p ParameterProvider, c Coordinate, raw ensemble.Vector) (WeightedSensitivity, error) {
	w, err := p.AdditionalWeight(c)
	if err != nil {
		return WeightedSensitivity{}, err
	}
	amount := raw.Scale(w)
	cr, err := concentrationFor(p, c, amount)
	if err != nil {
		return WeightedSensitivity{}, err
	}
	return weighAmount(p, c, amount, cr)
}

// BuildBucketWeightedSensitivities weights the members of one bucket with a
// single concentration factor measured on their net sum. It returns the weighted
// sensitivities and the shared factor.
func BuildBucketWeightedSensitivities(p ParameterProvider, members []NetSensitivity) ([]WeightedSensitivity, ensemble.Vector, error) {
	if len(members) == 0 {
		return nil, ensemble.Scalar(1), nil
	}
	net := ensemble.Vector{}
	for _, m := range members {
		net = net.Add(m.Amount)
	}
	cr, err := concentrationFor(p, members[0].Coordinate, net)
	if err != nil {
		return nil, ensemble.Vector{}, err
	}
	out := make([]WeightedSensitivity, 0, len(members))
	for _, m := range members {
		ws, err := weighAmount(p, m.Coordinate, m.Amount, cr)
		if err != nil {
			return nil, ensemble.Vector{}, err
		}
		out = append(out, ws)
	}
	return out, cr, nil
}

// ConcentrationFactor returns min(1, √(|amount| / threshold)) outcome by outcome.
func ConcentrationFactor(amount ensemble.Vector, threshold float64) ensemble.Vector {
	return amount.Map(func(x float64) float64 {
		return math.Min(1, math.Sqrt(math.Abs(x)/threshold))
	})
}

func concentrationFor(p ParameterProvider, c Coordinate, amount ensemble.Vector) (ensemble.Vector, error) {
	t, err := p.ConcentrationThreshold(c)
	if err != nil {
		return ensemble.Vector{}, err
	}
	if !(t > 0) || math.IsInf(t, 0) {
		return ensemble.Vector{}, Configf("concentration threshold", "%s: threshold %g must be positive and finite", c, t)
	}
	return ConcentrationFactor(amount, t), nil
}

func weighAmount(p ParameterProvider, c Coordinate, amount, cr ensemble.Vector) (WeightedSensitivity, error) {
	rw, err := p.RiskWeight(c)
	if err != nil {
		return WeightedSensitivity{}, err
	}
	return WeightedSensitivity{
		Coordinate:    c,
		Concentration: cr,
		Value:         amount.Scale(rw).Mul(cr),
	}, nil
}

// netSensitivities prepares the entries of one risk class and margin type.
// Delta and vega amounts carry the additional weight; curvature amounts carry
// the curvature risk weight. Vega and curvature outside interest rate collapse
// tenors onto the vertex-free coordinate.
func netSensitivities(p ParameterProvider, rc RiskClass, mt MarginType, entries []entry) ([]NetSensitivity, error) {
	collapse := mt != Delta && !rc.IsRates()

	acc := make(map[Coordinate]ensemble.Vector)
	for _, e := range entries {
		var amount ensemble.Vector
		switch mt {
		case Delta, Vega:
			w, err := p.AdditionalWeight(e.coord)
			if err != nil {
				return nil, err
			}
			amount = e.value.Scale(w)
		case Curvature:
			rw, err := p.RiskWeight(e.coord)
			if err != nil {
				return nil, err
			}
			amount = e.value.Scale(rw)
		default:
			return nil, Configf("net sensitivities", "unsupported margin type %s", mt)
		}

		key := e.coord
		if collapse {
			key = key.StripVertex()
		}
		acc[key] = acc[key].Add(amount)
	}

	out := make([]NetSensitivity, 0, len(acc))
	for c, v := range acc {
		out = append(out, NetSensitivity{Coordinate: c, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return Compare(out[i].Coordinate, out[j].Coordinate) < 0
	})
	return out, nil
}
