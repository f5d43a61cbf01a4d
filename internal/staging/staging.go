// Package staging moves objects between durable storage and local scratch
// space. It performs no retries; callers classify failures as retryable
// server faults and rely on queue redelivery.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/your-org/mediaprep/internal/fault"
	"github.com/your-org/mediaprep/pkg/storage/objectstore"
)

// Stager stages remote objects to scratch files and uploads results back.
type Stager struct {
	store      objectstore.Client
	scratchDir string
}

// NewStager constructs a Stager writing scratch files under scratchDir.
func NewStager(store objectstore.Client, scratchDir string) *Stager {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Stager{store: store, scratchDir: scratchDir}
}

// GetObject opens the object for reading. The caller owns the returned
// stream and must close it.
func (s *Stager) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	reader, size, err := s.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, 0, fault.Storage(fmt.Sprintf("fetch %s/%s", bucket, key), err)
	}
	return reader, size, nil
}

// WriteToTemp drains the stream into a collision-free scratch file and
// returns its path. The filename is a random UUID, independent of the
// source key.
func (s *Stager) WriteToTemp(stream io.Reader) (string, error) {
	path := filepath.Join(s.scratchDir, uuid.NewString())

	file, err := os.Create(path)
	if err != nil {
		return "", fault.Storage("create scratch file", err)
	}

	if _, err := io.Copy(file, stream); err != nil {
		file.Close()         //nolint:errcheck
		os.Remove(path)      //nolint:errcheck
		return "", fault.Storage("write scratch file", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path) //nolint:errcheck
		return "", fault.Storage("flush scratch file", err)
	}

	return path, nil
}

// GetFromTemp opens a previously staged scratch file.
func (s *Stager) GetFromTemp(path string) (io.ReadCloser, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fault.Storage(fmt.Sprintf("stat scratch file %s", path), err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fault.Storage(fmt.Sprintf("open scratch file %s", path), err)
	}

	return file, info.Size(), nil
}

// UploadObject writes the stream to durable storage under the given key.
func (s *Stager) UploadObject(ctx context.Context, stream io.Reader, size int64, bucket, key string) error {
	if err := s.store.Put(ctx, bucket, key, stream, size, nil); err != nil {
		return fault.Storage(fmt.Sprintf("upload %s/%s", bucket, key), err)
	}
	return nil
}

// CleanUpFromTemp removes a scratch file. A path that is already absent is
// treated as success so cleanup stays idempotent under redelivery.
func (s *Stager) CleanUpFromTemp(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fault.Storage(fmt.Sprintf("remove scratch file %s", path), err)
	}
	return nil
}
