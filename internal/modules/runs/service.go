package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/events"
	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/pkg/ensemble"
)

// Recorder counts run outcomes.
type Recorder interface {
	ObserveRun(err error)
}

// Publisher receives run lifecycle events.
type Publisher interface {
	Publish(module string, data events.EventData)
}

// Service computes margin runs and stores them.
type Service struct {
	repo      *Repository
	calc      *simm.Calculator
	recorder  Recorder
	publisher Publisher
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a run service. recorder may be nil.
func NewService(repo *Repository, calc *simm.Calculator, recorder Recorder, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		calc:     calc,
		recorder: recorder,
		now:      time.Now,
		log:      log.With().Str("service", "margin_runs").Logger(),
	}
}

// SetPublisher sets the event publisher for stored and failed runs.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Run computes the margin of req and stores it.
func (s *Service) Run(ctx context.Context, req Request) (*Run, error) {
	run, err := s.run(ctx, req)
	if s.recorder != nil {
		s.recorder.ObserveRun(err)
	}
	s.publish(req, run, err)
	return run, err
}

func (s *Service) publish(req Request, run *Run, err error) {
	if s.publisher == nil {
		return
	}
	if err != nil {
		s.publisher.Publish("margin_runs", &events.RunFailedData{Label: req.Label, Error: err.Error()})
		return
	}
	s.publisher.Publish("margin_runs", &events.RunStoredData{
		RunID:       run.ID,
		Label:       run.Label,
		Paths:       run.Paths,
		TotalMean:   run.TotalMean,
		TotalP99:    run.TotalP99,
		FloorEvents: run.FloorEvents,
	})
}

func (s *Service) run(ctx context.Context, req Request) (*Run, error) {
	calc := s.calc
	if req.PostingThreshold != nil {
		calc = calc.Derive(simm.WithPostingThreshold(*req.PostingThreshold))
	}
	evaluation := req.EvaluationTime
	if evaluation.IsZero() {
		evaluation = s.now().UTC().Truncate(24 * time.Hour)
	}

	res, err := calc.Evaluate(ctx, evaluation, req.Gradient, req.Shards)
	if err != nil {
		return nil, fmt.Errorf("failed to compute margin: %w", err)
	}

	summary := ensemble.Summarize(res.Total)
	run := Run{
		ID:               uuid.New().String(),
		Label:            req.Label,
		EvaluationTime:   evaluation,
		CreatedAt:        s.now().UTC(),
		Fingerprint:      req.Gradient.Fingerprint(),
		Coordinates:      len(req.Gradient),
		Paths:            res.Paths,
		PostingThreshold: res.PostingThreshold,
		TotalMean:        summary.Mean,
		TotalP99:         summary.P99,
		FloorEvents:      len(res.Floors),
		Summary:          &summary,
		Result:           res,
	}

	if err := s.repo.Create(ctx, run, record{Summary: summary, Result: res}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("label", run.Label).
		Int("coordinates", run.Coordinates).
		Int("paths", run.Paths).
		Float64("total_mean", run.TotalMean).
		Int("floor_events", run.FloorEvents).
		Msg("Stored margin run")
	return &run, nil
}

// Get returns a stored run with its breakdown.
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit recent runs.
func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.List(ctx, limit)
}

// DeleteOlderThan removes runs created before cutoff.
func (s *Service) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, cutoff)
}
