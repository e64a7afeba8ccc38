package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Backuper is the part of the backup service the job needs.
type Backuper interface {
	CreateAndUpload(ctx context.Context) (string, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob snapshots the fund database and rotates old archives.
type BackupJob struct {
	backups       Backuper
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates the backup job.
func NewBackupJob(backups Backuper, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates one archive, then rotates. Rotation failures are logged only.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	if _, err := j.backups.CreateAndUpload(ctx); err != nil {
		return err
	}
	if _, err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
