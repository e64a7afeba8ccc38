package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	testingpkg "github.com/aristath/yieldfund/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackupService(t *testing.T) (*BackupService, string) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "fund")
	t.Cleanup(cleanup)

	testingpkg.InsertPosition(t, db.Conn(), testingpkg.PositionFixture{
		InvestorID: "inv-1", ProductID: "funding-1", Principal: "10000000", AccruedIncome: "550000",
	})

	storeDir := t.TempDir()
	store, err := NewLocalStore(storeDir)
	require.NoError(t, err)

	svc := NewBackupService(db, store, t.TempDir(), "fund", zerolog.Nop())
	return svc, storeDir
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = body
	}
	return files
}

func TestBackupService_Snapshot(t *testing.T) {
	svc, _ := newBackupService(t)
	dest := filepath.Join(t.TempDir(), "snap.db")

	meta, err := svc.Snapshot(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, "snap.db", meta.Filename)
	assert.Positive(t, meta.SizeBytes)
	assert.Contains(t, meta.Checksum, "sha256:")

	_, err = os.Stat(dest)
	assert.NoError(t, err)
}

func TestBackupService_CreateAndUpload(t *testing.T) {
	svc, storeDir := newBackupService(t)
	svc.SetClock(func() time.Time { return time.Date(2026, 6, 10, 1, 30, 0, 0, time.UTC) })

	key, err := svc.CreateAndUpload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fund-backup-2026-06-10-013000.tar.gz", key)

	files := readArchive(t, filepath.Join(storeDir, key))
	require.Contains(t, files, "fund.db")
	require.Contains(t, files, metadataFile)

	var meta BackupMetadata
	require.NoError(t, json.Unmarshal(files[metadataFile], &meta))
	require.Len(t, meta.Databases, 1)
	assert.Equal(t, "fund.db", meta.Databases[0].Filename)
	assert.Equal(t, int64(len(files["fund.db"])), meta.Databases[0].SizeBytes)

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, key, backups[0].Key)
}

func TestBackupService_RotateKeepsNewest(t *testing.T) {
	svc, storeDir := newBackupService(t)
	now := time.Date(2026, 6, 10, 1, 30, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	// Five archives, one per week going back.
	for i := 0; i < 5; i++ {
		name := "fund-backup-" + now.AddDate(0, 0, -7*i).Format(archiveTimeLayout) + ".tar.gz"
		require.NoError(t, os.WriteFile(filepath.Join(storeDir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "unrelated.txt"), []byte("x"), 0644))

	deleted, err := svc.RotateOldBackups(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	entries, err := os.ReadDir(storeDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"fund-backup-2026-05-27-013000.tar.gz",
		"fund-backup-2026-06-03-013000.tar.gz",
		"fund-backup-2026-06-10-013000.tar.gz",
		"unrelated.txt",
	}, names)

	deleted, err = svc.RotateOldBackups(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
