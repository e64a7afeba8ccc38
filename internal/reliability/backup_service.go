// Package reliability snapshots the fund database and ships the archives
// to an object store.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/yieldfund/internal/database"
	"github.com/rs/zerolog"
)

const (
	archiveTimeLayout = "2006-01-02-150405"
	metadataFile      = "backup-metadata.json"
	minBackupsToKeep  = 3
)

// BackupMetadata is written next to the snapshot inside every archive.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one snapshot file.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo is one archive in the store.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService creates verified snapshots of the fund database and keeps
// a rotated set of archives in an ObjectStore.
type BackupService struct {
	db         *database.DB
	store      ObjectStore
	stagingDir string
	prefix     string
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a backup service. Archives are named
// <prefix>-backup-<timestamp>.tar.gz.
func NewBackupService(db *database.DB, store ObjectStore, stagingDir, prefix string, log zerolog.Logger) *BackupService {
	if prefix == "" {
		prefix = "fund"
	}
	return &BackupService{
		db:         db,
		store:      store,
		stagingDir: stagingDir,
		prefix:     prefix,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// SetClock overrides the time source.
func (s *BackupService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *BackupService) archivePrefix() string {
	return s.prefix + "-backup-"
}

// Snapshot writes a consistent copy of the database to dest and verifies it.
func (s *BackupService) Snapshot(ctx context.Context, dest string) (*DatabaseMetadata, error) {
	if err := s.db.SnapshotTo(ctx, dest); err != nil {
		return nil, err
	}
	if err := verifySnapshot(ctx, dest); err != nil {
		return nil, fmt.Errorf("snapshot verification failed: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := fileChecksum(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum snapshot: %w", err)
	}

	return &DatabaseMetadata{
		Name:      s.db.Name(),
		Filename:  filepath.Base(dest),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}, nil
}

// CreateAndUpload snapshots the database, packs it with its metadata into a
// tar.gz archive and uploads the archive. Returns the archive key.
func (s *BackupService) CreateAndUpload(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting backup")
	start := time.Now()
	now := s.now().UTC()

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	staging, err := os.MkdirTemp(s.stagingDir, "staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	dbFile := s.db.Name() + ".db"
	dbMeta, err := s.Snapshot(ctx, filepath.Join(staging, dbFile))
	if err != nil {
		return "", err
	}

	metadata := BackupMetadata{
		Timestamp: now,
		Version:   "1",
		Databases: []DatabaseMetadata{*dbMeta},
	}
	if err := writeMetadata(filepath.Join(staging, metadataFile), metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	key := s.archivePrefix() + now.Format(archiveTimeLayout) + ".tar.gz"
	archivePath := filepath.Join(staging, key)
	if err := createArchive(archivePath, staging, []string{dbFile, metadataFile}); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}
	if err := s.store.Upload(ctx, key, archive, info.Size()); err != nil {
		return "", err
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", key).
		Int64("size_bytes", info.Size()).
		Msg("Backup completed")
	return key, nil
}

// ListBackups returns stored archives, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.archivePrefix())
	if err != nil {
		return nil, err
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := filepath.Base(obj.Key)
		if !strings.HasPrefix(name, s.archivePrefix()) || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, s.archivePrefix()), ".tar.gz")
		ts, err := time.Parse(archiveTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from archive name")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays, always keeping
// the newest three. retentionDays <= 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, b := range backups[minBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

func verifySnapshot(ctx context.Context, path string) error {
	conn, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, names []string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, name := range names {
		if err := addFileToArchive(tw, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addFileToArchive(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if err := tw.WriteHeader(&tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}); err != nil {
		return err
	}

	_, err = io.Copy(tw, f)
	return err
}
