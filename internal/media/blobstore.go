// Package media handles captured photo, audio and video files. The core
// only ever references blobs by URI; storage itself sits behind the
// BlobStore port.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/fieldsync-go/internal/errors"
)

// BlobStore uploads a local media file and returns the URI the central
// store will reference it by.
type BlobStore interface {
	Upload(ctx context.Context, localPath, kind string) (string, error)
}

// LocalBlobStore is a filesystem-backed BlobStore used in development and
// tests. It copies captures into a blob directory and hands back file://
// URIs.
type LocalBlobStore struct {
	dir string
}

// NewLocalBlobStore creates the blob directory if needed.
func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("media").
			Category(errors.CategoryFileIO).
			Context("operation", "create_blob_dir").
			Build()
	}
	return &LocalBlobStore{dir: dir}, nil
}

// Upload copies the file into the blob directory under a unique name.
func (s *LocalBlobStore) Upload(ctx context.Context, localPath, kind string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", errors.New(err).
			Component("media").
			Category(errors.CategoryFileIO).
			Context("operation", "open_capture").
			Context("path", localPath).
			Build()
	}
	defer func() { _ = src.Close() }()

	name := fmt.Sprintf("%s-%s-%s%s",
		kind, time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8], filepath.Ext(localPath))
	destPath := filepath.Join(s.dir, name)

	dest, err := os.Create(destPath)
	if err != nil {
		return "", errors.New(err).
			Component("media").
			Category(errors.CategoryFileIO).
			Context("operation", "create_blob").
			Context("path", destPath).
			Build()
	}

	if _, err := io.Copy(dest, src); err != nil {
		_ = dest.Close()
		_ = os.Remove(destPath)
		return "", errors.New(err).
			Component("media").
			Category(errors.CategoryFileIO).
			Context("operation", "copy_blob").
			Build()
	}
	if err := dest.Close(); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(destPath)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
