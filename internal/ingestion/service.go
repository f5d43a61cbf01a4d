// Package ingestion is the upload front door. It streams raw media into
// the transport bucket under the preprocessing key grammar and emits the
// bucket notification the preprocessor consumes.
package ingestion

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/mediaprep/internal/preprocess"
	"github.com/your-org/mediaprep/pkg/storage/objectstore"
)

// Publisher is the queue publishing capability the ingestion service
// needs. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
	Close(ctx context.Context) error
}

// Service wires together storage, the notification topic, and logging for
// upload flows.
type Service struct {
	store        objectstore.Client
	producer     Publisher
	logger       *zap.Logger
	sourceBucket string
}

type Params struct {
	Store        objectstore.Client
	Producer     Publisher
	Logger       *zap.Logger
	SourceBucket string
}

// UploadOptions captures metadata about the upload.
type UploadOptions struct {
	UserID      string
	Filename    string
	ContentType string
	Metadata    map[string]string
}

type UploadResult struct {
	AssetID    string
	ObjectKey  string
	Checksum   string
	Size       int64
	UploadedAt time.Time
}

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	return &Service{
		store:        p.Store,
		producer:     p.Producer,
		logger:       p.Logger,
		sourceBucket: p.SourceBucket,
	}
}

// ProcessUpload streams the file into the transport bucket and publishes
// the object-created notification. Keys follow the 4-segment grammar
// "userId/yyyy/mm/assetId" the preprocessor parses owners from.
func (s *Service) ProcessUpload(ctx context.Context, reader io.Reader, size int64, opts UploadOptions) (*UploadResult, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid file size: %d", size)
	}
	if opts.UserID == "" || strings.Contains(opts.UserID, "/") {
		return nil, fmt.Errorf("invalid user id: %q", opts.UserID)
	}

	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)
	buffered := bufio.NewReaderSize(tee, 64*1024)

	assetID := uuid.NewString()
	objectKey := fmt.Sprintf("%s/%s/%s",
		opts.UserID, time.Now().UTC().Format("2006/01"), assetID)

	metadata := map[string]string{
		"original_filename": opts.Filename,
		"content_type":      opts.ContentType,
	}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	if err := s.store.Put(ctx, s.sourceBucket, objectKey, buffered, size, metadata); err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	body, err := preprocess.EncodeNotification("s3:ObjectCreated:Put",
		preprocess.ObjectRef{Bucket: s.sourceBucket, Key: objectKey})
	if err != nil {
		return nil, fmt.Errorf("encode object notification: %w", err)
	}

	headers := map[string]string{
		"asset_id":   assetID,
		"event_type": "object.created",
	}

	if err := s.producer.Publish(ctx, []byte(assetID), body, headers); err != nil {
		return nil, fmt.Errorf("publish object notification: %w", err)
	}

	return &UploadResult{
		AssetID:    assetID,
		ObjectKey:  objectKey,
		Checksum:   checksum,
		Size:       size,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Close releases underlying resources.
func (s *Service) Close(ctx context.Context) error {
	if err := s.producer.Close(ctx); err != nil {
		return err
	}
	return s.store.Close()
}
