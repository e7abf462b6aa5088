package backup_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/database"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/store"
	"github.com/aristath/tradedesk/plugins/taskhandlers/backup"
)

// fakeS3 is an in-memory stand-in for the narrow S3API/Uploader surface the
// handler needs; no network or real bucket involved.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := ""
	if params.Prefix != nil {
		prefix = *params.Prefix
	}
	var contents []types.Object
	for key, data := range f.objects {
		if len(prefix) > 0 && len(key) < len(prefix) {
			continue
		}
		if prefix != "" && key[:len(prefix)] != prefix {
			continue
		}
		size := int64(len(data))
		k := key
		contents = append(contents, types.Object{Key: &k, Size: &size})
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakeUploader struct {
	fs *fakeS3
}

func (u *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	u.fs.objects[*input.Key] = data
	return &manager.UploadOutput{}, nil
}

func newTestHandler(t *testing.T) (*backup.Handler, *fakeS3) {
	t.Helper()
	home := t.TempDir()

	dbPath := filepath.Join(t.TempDir(), "index.db")
	db, err := database.New(database.Config{Path: dbPath, Profile: database.ProfileStandard})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(home, db, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(home, "signals"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "signals", "sig-1.json"), []byte(`{"ticker":"AAPL"}`), 0o644))

	fs3 := newFakeS3()
	h := backup.New(st, db, fs3, &fakeUploader{fs: fs3}, "test-bucket", 30, zerolog.Nop())
	return h, fs3
}

func TestRunUploadsArchiveContainingStoreEntitiesAndIndex(t *testing.T) {
	h, fs3 := newTestHandler(t)

	result, err := h.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResultSuccess, result.Status)
	assert.Len(t, fs3.objects, 1)

	var archiveData []byte
	for _, data := range fs3.objects {
		archiveData = data
	}

	names := readTarNames(t, archiveData)
	assert.Contains(t, names, "backup-metadata.json")
	assert.Contains(t, names, "index.db")
	assert.Contains(t, names, filepath.ToSlash(filepath.Join("signals", "sig-1.json")))
}

func TestRotateOldBackupsKeepsMinimumThree(t *testing.T) {
	h, fs3 := newTestHandler(t)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		ts := now.AddDate(0, 0, -i*40).Format("2006-01-02-150405")
		fs3.objects["tradedesk-backup-"+ts+".tar.gz"] = []byte("x")
	}

	require.NoError(t, h.RotateOldBackups(context.Background()))
	assert.GreaterOrEqual(t, len(fs3.objects), 3)
}

func readTarNames(t *testing.T, data []byte) []string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}
