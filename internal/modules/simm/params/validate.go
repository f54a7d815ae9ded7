package params

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/simm/internal/modules/simm"
)

const symmetryTolerance = 1e-12

// Validate checks the table and builds its lookup indexes. Load calls it; call
// it again after modifying a table by hand.
func (t *Table) Validate() error {
	if err := t.validateRiskClasses(); err != nil {
		return err
	}
	if err := t.validateRates(); err != nil {
		return err
	}
	return t.validateClasses()
}

func (t *Table) validateRiskClasses() error {
	m := t.RiskClasses
	if err := checkCorrelationMatrix("risk_class_correlation", m.Values); err != nil {
		return err
	}
	if len(m.Labels) != len(simm.RiskClasses) || len(m.Values) != len(simm.RiskClasses) {
		return simm.Configf("validate params", "risk_class_correlation must cover all %d risk classes", len(simm.RiskClasses))
	}

	order := make([]simm.RiskClass, len(m.Labels))
	seen := make(map[simm.RiskClass]bool)
	for i, label := range m.Labels {
		rc, err := simm.ParseRiskClass(label)
		if err != nil {
			return err
		}
		if seen[rc] {
			return simm.Configf("validate params", "risk_class_correlation lists %s twice", rc)
		}
		seen[rc] = true
		order[i] = rc
	}
	for i, a := range order {
		for j, b := range order {
			t.riskClass[a][b] = m.Values[i][j]
		}
	}
	return nil
}

func (t *Table) validateRates() error {
	ir := t.InterestRate
	if len(ir.Tenors) == 0 {
		return simm.Configf("validate params", "interest_rate.tenors is empty")
	}

	t.tenorIndex = make(map[string]int, len(ir.Tenors))
	for i, tenor := range ir.Tenors {
		if _, ok := simm.TenorDays(tenor); !ok {
			return simm.Configf("validate params", "interest_rate: invalid tenor %q", tenor)
		}
		t.tenorIndex[strings.ToLower(tenor)] = i
	}
	if err := checkCorrelationMatrix("interest_rate.tenor_correlation", ir.TenorCorrelation); err != nil {
		return err
	}
	if len(ir.TenorCorrelation) != len(ir.Tenors) {
		return simm.Configf("validate params", "interest_rate.tenor_correlation is %d×%d, want %d tenors",
			len(ir.TenorCorrelation), len(ir.TenorCorrelation), len(ir.Tenors))
	}
	if err := checkCorrelation("interest_rate.sub_curve_correlation", ir.SubCurveCorrelation); err != nil {
		return err
	}
	if err := checkCorrelation("interest_rate.cross_currency_correlation", ir.CrossCurrencyCorrelation); err != nil {
		return err
	}
	if err := checkPositive("interest_rate.vega_weight", ir.VegaWeight); err != nil {
		return err
	}

	t.currencies = make(map[string]string)
	groups := []string{regularGroup}
	for group, ccys := range ir.VolatilityGroups {
		if group != regularGroup {
			groups = append(groups, group)
		}
		for _, ccy := range ccys {
			t.currencies[strings.ToUpper(ccy)] = group
		}
	}
	for _, group := range groups {
		weights, ok := ir.DeltaWeights[group]
		if !ok || len(weights) != len(ir.Tenors) {
			return simm.Configf("validate params", "interest_rate.delta_weights.%s needs %d tenors", group, len(ir.Tenors))
		}
		for _, w := range weights {
			if err := checkPositive("interest_rate.delta_weights."+group, w); err != nil {
				return err
			}
		}
		if err := checkPositive("interest_rate.delta_thresholds."+group, ir.DeltaThresholds[group]); err != nil {
			return err
		}
		if err := checkPositive("interest_rate.vega_thresholds."+group, ir.VegaThresholds[group]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) validateClasses() error {
	t.classes = make(map[simm.RiskClass]ClassParams, len(t.Classes))
	for name, cp := range t.Classes {
		rc, err := simm.ParseRiskClass(name)
		if err != nil {
			return err
		}
		if rc.IsRates() {
			return simm.Configf("validate params", "classes.%s: interest rate is configured under interest_rate", name)
		}
		if err := validateClass(name, cp); err != nil {
			return err
		}
		t.classes[rc] = cp
	}
	for _, rc := range simm.RiskClasses {
		if _, ok := t.classes[rc]; !ok && !rc.IsRates() {
			return simm.Configf("validate params", "classes: missing %s", rc)
		}
	}
	return nil
}

func validateClass(name string, cp ClassParams) error {
	prefix := "classes." + name
	if len(cp.Buckets) == 0 {
		return simm.Configf("validate params", "%s has no buckets", prefix)
	}
	for bucket, b := range cp.Buckets {
		field := prefix + ".buckets." + bucket
		for _, v := range []struct {
			name  string
			value float64
		}{
			{"delta_weight", b.DeltaWeight},
			{"vega_weight", b.VegaWeight},
			{"delta_threshold", b.DeltaThreshold},
			{"vega_threshold", b.VegaThreshold},
		} {
			if err := checkPositive(field+"."+v.name, v.value); err != nil {
				return err
			}
		}
		if err := checkCorrelation(field+".correlation", b.Correlation); err != nil {
			return err
		}
	}
	if err := checkCorrelation(prefix+".same_qualifier_correlation", cp.SameQualifierCorrelation); err != nil {
		return err
	}
	if err := checkCorrelation(prefix+".cross_bucket_default", cp.CrossBucketDefault); err != nil {
		return err
	}
	if cp.ScaleVega {
		if err := checkPositive(prefix+".historical_volatility_ratio", cp.HistoricalVolatilityRatio); err != nil {
			return err
		}
	}

	if len(cp.CrossBucket.Labels) == 0 {
		return nil
	}
	if len(cp.CrossBucket.Labels) != len(cp.CrossBucket.Values) {
		return simm.Configf("validate params", "%s.cross_bucket has %d labels for %d rows",
			prefix, len(cp.CrossBucket.Labels), len(cp.CrossBucket.Values))
	}
	for _, label := range cp.CrossBucket.Labels {
		if label == simm.ResidualBucket {
			return simm.Configf("validate params", "%s.cross_bucket must not include the residual bucket", prefix)
		}
		if _, ok := cp.Buckets[label]; !ok {
			return simm.Configf("validate params", "%s.cross_bucket references unknown bucket %q", prefix, label)
		}
	}
	return checkCorrelationMatrix(prefix+".cross_bucket", cp.CrossBucket.Values)
}

// checkCorrelationMatrix requires a square, symmetric matrix with a unit
// diagonal and entries in [-1, 1].
func checkCorrelationMatrix(name string, rows [][]float64) error {
	n := len(rows)
	if n == 0 {
		return simm.Configf("validate params", "%s is empty", name)
	}
	flat := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return simm.Configf("validate params", "%s row %d has %d entries, want %d", name, i, len(row), n)
		}
		flat = append(flat, row...)
	}

	m := mat.NewDense(n, n, flat)
	if !mat.EqualApprox(m, m.T(), symmetryTolerance) {
		return simm.Configf("validate params", "%s is not symmetric", name)
	}
	for i := 0; i < n; i++ {
		if m.At(i, i) != 1 {
			return simm.Configf("validate params", "%s diagonal entry %d is %g, want 1", name, i, m.At(i, i))
		}
		for j := 0; j < n; j++ {
			if err := checkCorrelation(name, m.At(i, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkCorrelation(name string, rho float64) error {
	if math.IsNaN(rho) || math.Abs(rho) > 1 {
		return simm.Configf("validate params", "%s: correlation %g outside [-1, 1]", name, rho)
	}
	return nil
}

func checkPositive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return simm.Configf("validate params", "%s: %g must be positive and finite", name, v)
	}
	return nil
}
