// Package di wires the application's dependencies.
package di

import (
	"github.com/aristath/simm/internal/database"
	"github.com/aristath/simm/internal/events"
	"github.com/aristath/simm/internal/metrics"
	"github.com/aristath/simm/internal/modules/runs"
	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/internal/modules/simm/params"
	"github.com/aristath/simm/internal/reliability"
	"github.com/aristath/simm/internal/scheduler"
)

// Container holds all application dependencies. It is the single source of
// truth for service instances and is handed to the server.
type Container struct {
	// Databases
	RunsDB *database.DB

	// Events
	Events *events.Bus

	// Margin computation
	Params     *params.Table
	Memo       *simm.Memo
	Calculator *simm.Calculator
	Metrics    *metrics.Registry

	// Runs
	RunsRepo    *runs.Repository
	RunsService *runs.Service

	// Backups (nil when disabled)
	Backups *reliability.BackupService

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds the scheduled jobs for manual triggering
type JobInstances struct {
	Purge         *runs.PurgeJob
	WALCheckpoint *scheduler.WALCheckpointJob
	Maintenance   *reliability.MaintenanceJob
	Backup        *reliability.BackupJob // nil when backups are disabled
}

// Close releases the container's databases.
func (c *Container) Close() error {
	if c.RunsDB == nil {
		return nil
	}
	return c.RunsDB.Close()
}
