package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/config"
	"github.com/aristath/simm/internal/events"
	"github.com/aristath/simm/internal/metrics"
	"github.com/aristath/simm/internal/modules/runs"
	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/internal/modules/simm/params"
	"github.com/aristath/simm/internal/reliability"
)

// InitializeServices loads the parameter table and builds the calculator and
// run service on top of the container's databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	table, err := params.Resolve(cfg.ParamsFile)
	if err != nil {
		return fmt.Errorf("failed to load SIMM parameters: %w", err)
	}
	container.Params = table
	log.Info().
		Str("version", table.Version).
		Str("file", cfg.ParamsFile).
		Msg("SIMM parameters loaded")

	container.Events = events.NewBus(log)
	container.Metrics = metrics.NewRegistry()
	container.Memo = simm.NewMemo()
	container.Calculator = simm.NewCalculator(table, log,
		simm.WithPostingThreshold(cfg.PostingThreshold),
		simm.WithShards(cfg.Workers),
		simm.WithMemo(container.Memo),
		simm.WithObserver(container.Metrics),
	)

	container.RunsRepo = runs.NewRepository(container.RunsDB.Conn(), log)
	container.RunsService = runs.NewService(container.RunsRepo, container.Calculator, container.Metrics, log)
	container.RunsService.SetPublisher(container.Events)

	if cfg.Backup.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := reliability.NewS3Store(ctx, reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize backup store: %w", err)
		}
		container.Backups = reliability.NewBackupService(store, container.RunsDB, cfg.DataDir, table.Version, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Run database backups enabled")
	}
	return nil
}
