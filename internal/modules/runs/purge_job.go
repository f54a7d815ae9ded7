package runs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/events"
)

// PurgeJob removes runs older than the retention window. It is scheduled by
// the cron scheduler.
type PurgeJob struct {
	service   *Service
	retention time.Duration
	log       zerolog.Logger
}

// NewPurgeJob creates a purge job keeping runs for retention.
func NewPurgeJob(service *Service, retention time.Duration, log zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		service:   service,
		retention: retention,
		log:       log.With().Str("job", "margin_run_purge").Logger(),
	}
}

// Run deletes expired runs.
func (j *PurgeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.service.now().Add(-j.retention)
	deleted, err := j.service.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to purge margin runs")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Purged expired margin runs")
		if p := j.service.publisher; p != nil {
			p.Publish("margin_runs", &events.RunsPurgedData{Deleted: deleted, Cutoff: cutoff})
		}
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PurgeJob) Name() string {
	return "margin_run_purge"
}
