package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minimizer/internal/platform/config"
	"minimizer/pkg/platform/sentinel"
)

func TestFSStorePut(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	require.NoError(t, err)

	body := []byte(`{"trial":"T1"}`)
	require.NoError(t, store.Put(context.Background(), "trials/T1/20260304T093000Z.json", body))

	got, err := os.ReadFile(filepath.Join(root, "trials", "T1", "20260304T093000Z.json"))
	require.NoError(t, err)
	assert.Equal(t, body, got)

	entries, err := os.ReadDir(filepath.Join(root, "trials", "T1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFSStoreRefusesOverwrite(t *testing.T) {
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "trials/T1/a.json", []byte("first")))
	err = store.Put(ctx, "trials/T1/a.json", []byte("second"))
	require.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "  ", "/etc/passwd", "../x.json", "trials/../../x.json"} {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, store.Put(context.Background(), key, []byte("x")))
		})
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.ArchiveConfig{Driver: config.ArchiveFS, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, store)

	_, err = Open(ctx, config.ArchiveConfig{Driver: config.ArchiveS3})
	assert.ErrorContains(t, err, "bucket")

	_, err = Open(ctx, config.ArchiveConfig{Driver: "tape"})
	assert.ErrorContains(t, err, "unknown archive driver")
}
