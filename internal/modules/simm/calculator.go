package simm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/simm/pkg/ensemble"
)

// Observer receives computation telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveCompute(d time.Duration, err error)
	ObserveFloor(ev FloorEvent)
	ObserveMemo(entries int)
}

// RiskClassResult is the margin of one risk class inside one product class.
type RiskClassResult struct {
	RiskClass RiskClass       `json:"risk_class"`
	Delta     ensemble.Vector `json:"delta"`
	Vega      ensemble.Vector `json:"vega"`
	Curvature ensemble.Vector `json:"curvature"`
	Margin    ensemble.Vector `json:"margin"`
}

// ProductClassResult is the margin of one product class.
type ProductClassResult struct {
	ProductClass ProductClass      `json:"product_class"`
	RiskClasses  []RiskClassResult `json:"risk_classes"`
	Margin       ensemble.Vector   `json:"margin"`
}

// Result is the outcome of one margin computation.
type Result struct {
	EvaluationTime   time.Time            `json:"evaluation_time"`
	Paths            int                  `json:"paths"`
	ProductClasses   []ProductClassResult `json:"product_classes"`
	Gross            ensemble.Vector      `json:"gross"`
	PostingThreshold float64              `json:"posting_threshold"`
	Total            ensemble.Vector      `json:"total"`
	Floors           []FloorEvent         `json:"floors,omitempty"`
}

// Calculator aggregates gradients into SIMM margin.
type Calculator struct {
	provider         ParameterProvider
	postingThreshold float64
	memo             *Memo
	observer         Observer
	shards           int
	log              zerolog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithPostingThreshold sets the threshold subtracted from the summed product-class margin.
func WithPostingThreshold(threshold float64) Option {
	return func(c *Calculator) {
		c.postingThreshold = threshold
	}
}

// WithMemo enables bucket memoization.
func WithMemo(m *Memo) Option {
	return func(c *Calculator) {
		c.memo = m
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) Option {
	return func(c *Calculator) {
		c.observer = o
	}
}

// WithShards sets the shard count Evaluate uses when the caller passes none.
func WithShards(n int) Option {
	return func(c *Calculator) {
		c.shards = n
	}
}

// NewCalculator creates a calculator over a parameter provider.
func NewCalculator(provider ParameterProvider, log zerolog.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		provider: provider,
		log:      log.With().Str("component", "simm_calculator").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Derive returns a copy of c with opts applied. The copy shares the provider,
// memo and observer unless opts replace them.
func (c *Calculator) Derive(opts ...Option) *Calculator {
	d := *c
	for _, opt := range opts {
		opt(&d)
	}
	return &d
}

// PostingThreshold returns the configured posting threshold.
func (c *Calculator) PostingThreshold() float64 {
	return c.postingThreshold
}

// Evaluate computes g with the given shard count, falling back to the
// configured one when shards is not positive. One shard runs Compute.
func (c *Calculator) Evaluate(ctx context.Context, t time.Time, g Gradient, shards int) (*Result, error) {
	if shards <= 0 {
		shards = c.shards
	}
	if shards > 1 {
		return c.ComputeSharded(ctx, t, g, shards)
	}
	return c.Compute(t, g)
}

// Margin returns the total margin of a gradient.
func (c *Calculator) Margin(t time.Time, g Gradient) (ensemble.Vector, error) {
	res, err := c.Compute(t, g)
	if err != nil {
		return ensemble.Vector{}, err
	}
	return res.Total, nil
}

// Compute aggregates every product class and risk class present in g.
func (c *Calculator) Compute(t time.Time, g Gradient) (*Result, error) {
	start := time.Now()
	res, err := c.compute(t, g, c.memo)
	c.observe(time.Since(start), res, err)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Time("evaluation_time", t).
		Int("coordinates", len(g)).
		Int("paths", res.Paths).
		Dur("duration", time.Since(start)).
		Msg("Computed SIMM margin")
	return res, nil
}

// RiskClassMargin returns Delta + Vega + Curvature of one risk class, summed over
// the product classes it appears in. An absent risk class yields zero.
func (c *Calculator) RiskClassMargin(t time.Time, g Gradient, rc RiskClass) (ensemble.Vector, error) {
	if !rc.Valid() {
		return ensemble.Vector{}, Configf("risk class margin", "unknown risk class %s", rc)
	}
	if _, err := g.Paths(); err != nil {
		return ensemble.Vector{}, err
	}
	session := c.bindMemo(t, g, c.memo)
	diag := &Diagnostics{}
	total := ensemble.Vector{}
	for _, pc := range ProductClasses {
		sub := g.Filter(func(co Coordinate) bool {
			return co.ProductClass == pc && co.RiskClass == rc
		})
		if len(sub) == 0 {
			continue
		}
		rcr, err := c.riskClass(pc, rc, sub, session, diag)
		if err != nil {
			return ensemble.Vector{}, err
		}
		total = total.Add(rcr.Margin)
	}
	c.warnFloors(diag.Floors())
	return total, nil
}

// ComputeSharded splits the outcome ensemble into shards, computes them
// concurrently and concatenates the results. Memoization is not used.
func (c *Calculator) ComputeSharded(ctx context.Context, t time.Time, g Gradient, shards int) (*Result, error) {
	start := time.Now()
	parts, err := g.Shard(shards)
	if err != nil {
		c.observe(time.Since(start), nil, err)
		return nil, err
	}
	if len(parts) == 1 {
		return c.Compute(t, g)
	}

	results := make([]*Result, len(parts))
	eg, ctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		i, part := i, part
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := c.compute(t, part, nil)
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		c.observe(time.Since(start), nil, err)
		return nil, err
	}

	res := mergeShards(results)
	c.observe(time.Since(start), res, nil)
	c.log.Debug().
		Int("shards", len(parts)).
		Int("paths", res.Paths).
		Dur("duration", time.Since(start)).
		Msg("Computed sharded SIMM margin")
	return res, nil
}

func (c *Calculator) compute(t time.Time, g Gradient, memo *Memo) (*Result, error) {
	paths, err := g.Paths()
	if err != nil {
		return nil, err
	}
	session := c.bindMemo(t, g, memo)

	diag := &Diagnostics{}
	res := &Result{
		EvaluationTime:   t,
		Paths:            paths,
		PostingThreshold: c.postingThreshold,
	}
	gross := ensemble.Vector{}
	for _, pc := range ProductClasses {
		sub := g.Filter(func(co Coordinate) bool { return co.ProductClass == pc })
		if len(sub) == 0 {
			continue
		}
		pcr, err := c.productClass(pc, sub, session, diag)
		if err != nil {
			return nil, err
		}
		res.ProductClasses = append(res.ProductClasses, pcr)
		gross = gross.Add(pcr.Margin)
	}

	res.Gross = gross
	res.Total = ensemble.Max(gross.Sub(ensemble.Scalar(c.postingThreshold)), ensemble.Scalar(0))
	res.Floors = diag.Floors()
	c.warnFloors(res.Floors)
	return res, nil
}

// bindMemo opens a memo session for g at t. A nil memo yields a nil session.
func (c *Calculator) bindMemo(t time.Time, g Gradient, memo *Memo) *memoSession {
	if memo == nil {
		return nil
	}
	session, invalidated := memo.session(t, g.Fingerprint())
	if invalidated {
		c.log.Debug().Time("evaluation_time", t).Msg("Gradient changed, memo invalidated")
	}
	return session
}

func (c *Calculator) productClass(pc ProductClass, g Gradient, memo *memoSession, diag *Diagnostics) (ProductClassResult, error) {
	out := ProductClassResult{ProductClass: pc}
	margins := make([]ensemble.Vector, len(RiskClasses))
	for i, rc := range RiskClasses {
		sub := g.Filter(func(co Coordinate) bool { return co.RiskClass == rc })
		if len(sub) == 0 {
			continue
		}
		rcr, err := c.riskClass(pc, rc, sub, memo, diag)
		if err != nil {
			return ProductClassResult{}, err
		}
		out.RiskClasses = append(out.RiskClasses, rcr)
		margins[i] = rcr.Margin
	}

	corr, err := c.riskClassCorrelations()
	if err != nil {
		return ProductClassResult{}, err
	}
	variance, floored := ensemble.QuadraticForm(margins, corr).FloorZero()
	scope{diag: diag, pc: pc}.floor(StageProductClass, "", floored)
	out.Margin = variance.Sqrt()
	return out, nil
}

// riskClassCorrelations builds the symmetric risk-class correlation matrix.
func (c *Calculator) riskClassCorrelations() (*mat.SymDense, error) {
	n := len(RiskClasses)
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			rho, err := c.provider.RiskClassCorrelation(RiskClasses[i], RiskClasses[j])
			if err != nil {
				return nil, err
			}
			m.SetSym(i, j, rho)
		}
	}
	return m, nil
}

func (c *Calculator) riskClass(pc ProductClass, rc RiskClass, g Gradient, memo *memoSession, diag *Diagnostics) (RiskClassResult, error) {
	out := RiskClassResult{RiskClass: rc}
	for _, mt := range MarginTypes {
		sub := g.Filter(func(co Coordinate) bool { return co.MarginType == mt })
		if len(sub) == 0 {
			continue
		}
		m, err := c.marginType(pc, rc, mt, sub, memo, diag)
		if err != nil {
			return RiskClassResult{}, fmt.Errorf("%s %s: %w", rc, mt, err)
		}
		switch mt {
		case Delta:
			out.Delta = m
		case Vega:
			out.Vega = m
		case Curvature:
			out.Curvature = m
		}
	}
	out.Margin = ensemble.Sum(out.Delta, out.Vega, out.Curvature)
	return out, nil
}

func (c *Calculator) marginType(pc ProductClass, rc RiskClass, mt MarginType, g Gradient, memo *memoSession, diag *Diagnostics) (ensemble.Vector, error) {
	scheme, err := SchemeFor(rc, mt)
	if err != nil {
		return ensemble.Vector{}, err
	}
	nets, err := netSensitivities(c.provider, rc, mt, g.entries())
	if err != nil {
		return ensemble.Vector{}, err
	}

	groups := groupByBucket(nets)
	buckets := make([]BucketResult, 0, len(groups))
	for _, grp := range groups {
		key := groupKey(pc, rc, mt, grp.bucket)
		if e, ok := memo.get(key); ok {
			diag.replay(e.floors)
			buckets = append(buckets, e.result)
			continue
		}
		local := &Diagnostics{}
		br, err := aggregateGroup(c.provider, scheme, grp.bucket, grp.members, local)
		if err != nil {
			return ensemble.Vector{}, err
		}
		floors := local.Floors()
		diag.replay(floors)
		memo.put(key, memoEntry{result: br, floors: floors})
		buckets = append(buckets, br)
	}

	switch mt {
	case Delta, Vega:
		return CombineBuckets(c.provider, scheme, rc, buckets, diag)
	case Curvature:
		return CombineCurvature(c.provider, scheme, rc, buckets, diag)
	}
	return ensemble.Vector{}, Configf("combine", "unsupported margin type %s", mt)
}

func (c *Calculator) warnFloors(floors []FloorEvent) {
	for _, ev := range floors {
		c.log.Warn().
			Str("stage", ev.Stage).
			Str("product_class", ev.ProductClass.String()).
			Str("risk_class", ev.RiskClass.String()).
			Str("margin_type", ev.MarginType.String()).
			Str("bucket", ev.Bucket).
			Int("outcomes", ev.Outcomes).
			Msg("Negative variance floored at zero, check correlation inputs")
	}
}

func (c *Calculator) observe(d time.Duration, res *Result, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveCompute(d, err)
	if res != nil {
		for _, ev := range res.Floors {
			c.observer.ObserveFloor(ev)
		}
	}
	if c.memo != nil {
		c.observer.ObserveMemo(c.memo.Len())
	}
}

// mergeShards concatenates shard results in shard order. Every shard holds the
// same coordinates, so the breakdowns line up index by index.
func mergeShards(results []*Result) *Result {
	first := results[0]
	out := &Result{
		EvaluationTime:   first.EvaluationTime,
		PostingThreshold: first.PostingThreshold,
	}
	// collect keeps a value scalar when every shard agrees on it and expands
	// scalars to their shard size otherwise.
	collect := func(get func(*Result) ensemble.Vector) ensemble.Vector {
		parts := make([]ensemble.Vector, len(results))
		uniform := true
		for i, r := range results {
			parts[i] = get(r)
			uniform = uniform && parts[i].IsScalar() && ensemble.Equal(parts[i], parts[0])
		}
		if uniform {
			return parts[0]
		}
		for i, r := range results {
			if parts[i].IsScalar() {
				parts[i] = ensemble.Fill(r.Paths, parts[i].At(0))
			}
		}
		return ensemble.Concat(parts...)
	}

	for i := range first.ProductClasses {
		pcr := ProductClassResult{
			ProductClass: first.ProductClasses[i].ProductClass,
			Margin:       collect(func(r *Result) ensemble.Vector { return r.ProductClasses[i].Margin }),
		}
		for j := range first.ProductClasses[i].RiskClasses {
			rc := func(r *Result) RiskClassResult { return r.ProductClasses[i].RiskClasses[j] }
			pcr.RiskClasses = append(pcr.RiskClasses, RiskClassResult{
				RiskClass: first.ProductClasses[i].RiskClasses[j].RiskClass,
				Delta:     collect(func(r *Result) ensemble.Vector { return rc(r).Delta }),
				Vega:      collect(func(r *Result) ensemble.Vector { return rc(r).Vega }),
				Curvature: collect(func(r *Result) ensemble.Vector { return rc(r).Curvature }),
				Margin:    collect(func(r *Result) ensemble.Vector { return rc(r).Margin }),
			})
		}
		out.ProductClasses = append(out.ProductClasses, pcr)
	}
	out.Gross = collect(func(r *Result) ensemble.Vector { return r.Gross })
	out.Total = collect(func(r *Result) ensemble.Vector { return r.Total })
	for _, r := range results {
		out.Paths += r.Paths
		out.Floors = append(out.Floors, r.Floors...)
	}
	return out
}
