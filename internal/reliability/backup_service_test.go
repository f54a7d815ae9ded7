package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simm/internal/events"
	testhelpers "github.com/aristath/simm/internal/testing"
)

// memoryStore is an in-memory ObjectStore.
type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	files := make(map[string][]byte)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[h.Name] = content
	}
	return files
}

func TestBackupService_CreateAndUploadBackup(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "runs")
	defer cleanup()

	store := newMemoryStore()
	svc := NewBackupService(store, db, t.TempDir(), "2.1-test", zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 28, 4, 0, 0, 0, time.UTC) }

	key, err := svc.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "simm-backup-2024-03-28-040000.tar.gz", key)

	files := readArchive(t, store.objects[key])
	require.Contains(t, files, "runs.db")
	require.Contains(t, files, metadataFile)

	var meta BackupMetadata
	require.NoError(t, json.Unmarshal(files[metadataFile], &meta))
	assert.Equal(t, "2.1-test", meta.ParamsVersion)
	require.Len(t, meta.Databases, 1)
	assert.Equal(t, int64(len(files["runs.db"])), meta.Databases[0].SizeBytes)
	assert.True(t, strings.HasPrefix(meta.Databases[0].Checksum, "sha256:"))
}

func TestBackupService_UploadFailure(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "runs")
	defer cleanup()

	store := newMemoryStore()
	store.uploadErr = errors.New("bucket unavailable")
	svc := NewBackupService(store, db, t.TempDir(), "", zerolog.Nop())

	_, err := svc.CreateAndUploadBackup(context.Background())
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestBackupService_RotateOldBackups(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	for _, age := range []int{1, 2, 40, 50, 60} {
		key := backupPrefix + now.AddDate(0, 0, -age).Format(backupTimeLayout) + backupSuffix
		store.objects[key] = []byte("x")
	}
	store.objects["unrelated.txt"] = []byte("x")
	store.objects[backupPrefix+"garbage"+backupSuffix] = []byte("x")

	svc := NewBackupService(store, nil, t.TempDir(), "", zerolog.Nop())
	svc.now = func() time.Time { return now }

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 5)
	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp))
	assert.Equal(t, int64(24), backups[0].AgeHours)

	deleted, err := svc.RotateOldBackups(context.Background(), 30)
	require.NoError(t, err)
	// The three newest survive even though one of them is 40 days old.
	assert.Equal(t, 2, deleted)

	backups, err = svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 3)

	deleted, err = svc.RotateOldBackups(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestJobs(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "runs")
	defer cleanup()

	store := newMemoryStore()
	backup := NewBackupJob(NewBackupService(store, db, t.TempDir(), "", zerolog.Nop()), 30, zerolog.Nop())
	assert.Equal(t, "runs_backup", backup.Name())

	bus := events.NewBus(zerolog.Nop())
	var uploaded *events.BackupUploadedData
	bus.Subscribe(events.BackupUploaded, func(e *events.Event) {
		uploaded = e.Data.(*events.BackupUploadedData)
	})
	backup.SetPublisher(bus)

	require.NoError(t, backup.Run())
	assert.Len(t, store.objects, 1)
	require.NotNil(t, uploaded)
	assert.True(t, strings.HasPrefix(uploaded.Key, "simm-backup-"))

	maintenance := NewMaintenanceJob(db, zerolog.Nop())
	assert.Equal(t, "runs_maintenance", maintenance.Name())
	assert.NoError(t, maintenance.Run())
}
