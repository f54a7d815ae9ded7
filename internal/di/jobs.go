package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/config"
	"github.com/aristath/simm/internal/modules/runs"
	"github.com/aristath/simm/internal/reliability"
	"github.com/aristath/simm/internal/scheduler"
)

const (
	walCheckpointSchedule = "0 */15 * * * *" // every 15 minutes
	maintenanceSchedule   = "0 0 3 * * SUN"  // Sunday 03:00
)

// RegisterJobs creates the scheduler and registers the maintenance jobs.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(log)
	if container.Events != nil {
		container.Scheduler.SetPublisher(container.Events)
	}
	instances := &JobInstances{
		Purge:         runs.NewPurgeJob(container.RunsService, cfg.RunRetention, log),
		WALCheckpoint: scheduler.NewWALCheckpointJob(container.RunsDB, log),
		Maintenance:   reliability.NewMaintenanceJob(container.RunsDB, log),
	}

	if err := container.Scheduler.AddJob(cfg.PurgeSchedule, instances.Purge); err != nil {
		return nil, fmt.Errorf("failed to register purge job: %w", err)
	}
	if err := container.Scheduler.AddJob(walCheckpointSchedule, instances.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}
	if err := container.Scheduler.AddJob(maintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	if container.Backups != nil {
		instances.Backup = reliability.NewBackupJob(container.Backups, cfg.Backup.RetentionDays, log)
		if container.Events != nil {
			instances.Backup.SetPublisher(container.Events)
		}
		if err := container.Scheduler.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}
	return instances, nil
}
