package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/database"
	"github.com/aristath/simm/internal/events"
)

// Publisher receives backup events.
type Publisher interface {
	Publish(module string, data events.EventData)
}

// BackupJob uploads a backup and rotates old ones
type BackupJob struct {
	service       *BackupService
	retentionDays int
	publisher     Publisher
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "runs_backup").Logger(),
	}
}

// SetPublisher sets the publisher notified after each upload
func (j *BackupJob) SetPublisher(p Publisher) {
	j.publisher = p
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	key, err := j.service.CreateAndUploadBackup(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return err
	}
	rotated, err := j.service.RotateOldBackups(ctx, j.retentionDays)
	if err != nil {
		// The new backup is already stored; rotation is retried next run.
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	if j.publisher != nil {
		j.publisher.Publish("reliability", &events.BackupUploadedData{Key: key, Rotated: rotated})
	}
	return nil
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "runs_backup"
}

// MaintenanceJob checks the integrity of the run database, returns free pages
// to the filesystem and refreshes query planner statistics
type MaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("job", "runs_maintenance").Logger(),
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	start := time.Now()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Integrity check failed")
		return err
	}

	sizeBefore := j.sizeMB(ctx)
	// Standard profile databases use auto_vacuum=INCREMENTAL.
	if _, err := j.db.Conn().ExecContext(ctx, "PRAGMA incremental_vacuum"); err != nil {
		return fmt.Errorf("incremental vacuum failed for %s: %w", j.db.Name(), err)
	}
	if _, err := j.db.Conn().ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("optimize failed for %s: %w", j.db.Name(), err)
	}

	j.log.Info().
		Str("database", j.db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", j.sizeMB(ctx)).
		Dur("duration_ms", time.Since(start)).
		Msg("Maintenance completed")
	return nil
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "runs_maintenance"
}

func (j *MaintenanceJob) sizeMB(ctx context.Context) float64 {
	var pageCount, pageSize int
	_ = j.db.Conn().QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	_ = j.db.Conn().QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	return float64(pageCount*pageSize) / 1024 / 1024
}
