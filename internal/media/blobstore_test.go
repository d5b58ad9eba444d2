package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStoreUpload(t *testing.T) {
	blobDir := filepath.Join(t.TempDir(), "blobs")
	store, err := NewLocalBlobStore(blobDir)
	require.NoError(t, err)

	capture := filepath.Join(t.TempDir(), "x.wav")
	require.NoError(t, os.WriteFile(capture, []byte("fake audio"), 0o644))

	uri, err := store.Upload(context.Background(), capture, "audio")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"), uri)
	assert.True(t, strings.HasSuffix(uri, ".wav"), uri)

	// The blob content matches the capture.
	blobPath := strings.TrimPrefix(uri, "file://")
	content, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	assert.Equal(t, "fake audio", string(content))
}

func TestUploadMissingFile(t *testing.T) {
	store, err := NewLocalBlobStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "/does/not/exist.jpg", "photo")
	assert.Error(t, err)
}

func TestUploadHonorsCancelledContext(t *testing.T) {
	store, err := NewLocalBlobStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Upload(ctx, "/x.jpg", "photo")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadsGetUniqueURIs(t *testing.T) {
	store, err := NewLocalBlobStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	capture := filepath.Join(t.TempDir(), "x.jpg")
	require.NoError(t, os.WriteFile(capture, []byte{0xFF}, 0o644))

	a, err := store.Upload(context.Background(), capture, "photo")
	require.NoError(t, err)
	b, err := store.Upload(context.Background(), capture, "photo")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
