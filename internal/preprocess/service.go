// Package preprocess drives the per-object preprocessing pipeline: staging,
// content validation, metadata extraction, GOP segmentation, segment upload,
// and task dispatch, with per-asset progress persisted along the way.
package preprocess

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/mediaprep/internal/fault"
	"github.com/your-org/mediaprep/internal/gop"
	"github.com/your-org/mediaprep/internal/mediameta"
	"github.com/your-org/mediaprep/internal/metacache"
	"github.com/your-org/mediaprep/internal/task"
	"github.com/your-org/mediaprep/internal/validation"
	"github.com/your-org/mediaprep/pkg/metrics"
)

// Stager stages objects between durable storage and scratch space.
// *staging.Stager satisfies it.
type Stager interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	WriteToTemp(stream io.Reader) (string, error)
	GetFromTemp(path string) (io.ReadCloser, int64, error)
	UploadObject(ctx context.Context, stream io.Reader, size int64, bucket, key string) error
	CleanUpFromTemp(path string) error
}

// Validator gates staged content. *validation.Service satisfies it.
type Validator interface {
	ValidateBasics(ctx context.Context, path string) validation.BasicResult
	ValidateStreams(ctx context.Context, path string) validation.StreamResult
}

// Extractor runs the metadata probes. *mediameta.Extractor satisfies it.
type Extractor interface {
	Technical(ctx context.Context, path string) mediameta.Technical
	Content(ctx context.Context, path string) mediameta.Content
	Quality(ctx context.Context, path string) mediameta.Quality
}

// SegmentFunc cuts the staged file into GOP segments under outputDir.
type SegmentFunc func(ctx context.Context, inputPath, outputDir string) gop.Result

// NewSegmentFunc builds a SegmentFunc from a base segmenter configuration;
// the output directory is chosen per object.
func NewSegmentFunc(base gop.Config) SegmentFunc {
	return func(ctx context.Context, inputPath, outputDir string) gop.Result {
		cfg := base
		cfg.OutputDir = outputDir
		return gop.NewSegmenter(cfg).Create(ctx, inputPath)
	}
}

// Dispatcher enqueues task descriptors. *task.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, descriptor task.Descriptor) error
}

// Params collects the collaborators a Service needs.
type Params struct {
	Stager      Stager
	Validator   Validator
	Extractor   Extractor
	Segment     SegmentFunc
	Cache       metacache.Cache
	Dispatcher  Dispatcher
	Logger      *zap.Logger
	AssetBucket string
	ScratchDir  string
}

// Service orchestrates the preprocessing pipeline for ingested objects.
type Service struct {
	stager      Stager
	validator   Validator
	extractor   Extractor
	segment     SegmentFunc
	cache       metacache.Cache
	dispatcher  Dispatcher
	logger      *zap.Logger
	tracer      trace.Tracer
	assetBucket string
	scratchDir  string
}

// NewService constructs a preprocessing Service.
func NewService(p Params) *Service {
	scratchDir := p.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Service{
		stager:      p.Stager,
		validator:   p.Validator,
		extractor:   p.Extractor,
		segment:     p.Segment,
		cache:       p.Cache,
		dispatcher:  p.Dispatcher,
		logger:      p.Logger,
		tracer:      otel.Tracer("mediaprep/preprocess"),
		assetBucket: p.AssetBucket,
		scratchDir:  scratchDir,
	}
}

// ProcessBatch fans out over the batch and reports the message ids whose
// processing ended in a retryable failure. Client faults and duplicate
// deliveries are logged and dropped so the queue does not redeliver them.
func (s *Service) ProcessBatch(ctx context.Context, msgs []Message) BatchResult {
	var (
		mu     sync.Mutex
		failed []string
		wg     sync.WaitGroup
	)

	for _, msg := range msgs {
		wg.Add(1)
		go func(msg Message) {
			defer wg.Done()
			if s.processMessage(ctx, msg) {
				return
			}
			mu.Lock()
			failed = append(failed, msg.ID)
			mu.Unlock()
		}(msg)
	}
	wg.Wait()

	return BatchResult{FailedMessageIDs: failed}
}

// processMessage handles one queue delivery. It returns false when the
// message must be redelivered.
func (s *Service) processMessage(ctx context.Context, msg Message) bool {
	refs, err := DecodeNotification(msg.Body)
	if err != nil {
		// Redelivery cannot fix a malformed body; drop it.
		s.logger.Error("dropping malformed notification",
			zap.String("message_id", msg.ID), zap.Error(err))
		metrics.RecordsProcessed.WithLabelValues("malformed").Inc()
		return true
	}

	var (
		mu        sync.Mutex
		retryable bool
		wg        sync.WaitGroup
	)

	for _, ref := range refs {
		wg.Add(1)
		go func(ref ObjectRef) {
			defer wg.Done()
			err := s.processObject(ctx, ref)
			outcome := s.classify(ref, err)
			metrics.RecordsProcessed.WithLabelValues(outcome).Inc()
			if outcome == "retryable_fault" {
				mu.Lock()
				retryable = true
				mu.Unlock()
			}
		}(ref)
	}
	wg.Wait()

	return !retryable
}

func (s *Service) classify(ref ObjectRef, err error) string {
	switch {
	case err == nil:
		return "processed"
	case fault.IsDuplicate(err):
		s.logger.Info("object already handled", zap.String("key", ref.Key))
		return "duplicate"
	case !fault.Retryable(err):
		s.logger.Warn("rejecting object",
			zap.String("key", ref.Key),
			zap.String("kind", string(fault.KindOf(err))),
			zap.Error(err))
		return "client_fault"
	default:
		s.logger.Error("object processing failed",
			zap.String("key", ref.Key),
			zap.String("kind", string(fault.KindOf(err))),
			zap.Error(err))
		return "retryable_fault"
	}
}

// processObject runs the full pipeline for a single ingested object.
func (s *Service) processObject(ctx context.Context, ref ObjectRef) error {
	ctx, span := s.tracer.Start(ctx, "preprocess.object",
		trace.WithAttributes(
			attribute.String("object.bucket", ref.Bucket),
			attribute.String("object.key", ref.Key),
		))
	defer span.End()

	owner, err := ParseKey(ref.Key)
	if err != nil {
		return err
	}
	logger := s.logger.With(
		zap.String("user_id", owner.UserID),
		zap.String("asset_id", owner.AssetID))

	localPath, err := s.stageObject(ctx, ref)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.stager.CleanUpFromTemp(localPath); err != nil {
			logger.Warn("scratch cleanup failed", zap.Error(err))
		}
	}()

	basic, stream := s.runValidation(ctx, localPath)
	if gateErr := validation.GateError(basic, stream); gateErr != nil {
		// Best effort: the record only exists if a previous delivery
		// got further than validation.
		if err := s.cache.MarkCriticalFailure(ctx, owner.UserID, owner.AssetID); err != nil {
			logger.Warn("marking critical failure failed", zap.Error(err))
		}
		return gateErr
	}

	technical, content, quality := s.runExtraction(ctx, localPath)

	created, err := s.cache.InitializeRecord(ctx, owner.UserID, owner.AssetID)
	if err != nil {
		return err
	}
	if !created {
		return fault.Duplicate(owner.UserID, owner.AssetID)
	}

	if err := s.persistResults(ctx, owner, basic, stream, technical, content, quality); err != nil {
		return err
	}

	segments, err := s.segmentAndUpload(ctx, owner, localPath)
	if err != nil {
		return err
	}

	descriptor := task.New(owner.UserID, owner.AssetID,
		task.Location{Bucket: ref.Bucket, Key: ref.Key},
		task.Location{Bucket: s.assetBucket, Key: AssetPrefix(owner)},
		task.TypeTranscoding, task.WorkerTranscoder,
		map[string]any{"segmentCount": len(segments)})
	if err := s.dispatcher.Dispatch(ctx, descriptor); err != nil {
		return err
	}
	metrics.TasksDispatched.WithLabelValues(string(descriptor.Type)).Inc()

	logger.Info("object preprocessed",
		zap.String("task_id", descriptor.TaskID),
		zap.Int("segments", len(segments)))
	return nil
}

func (s *Service) stageObject(ctx context.Context, ref ObjectRef) (string, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("staging").Observe(time.Since(start).Seconds())
	}()

	reader, _, err := s.stager.GetObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return "", err
	}
	defer reader.Close() //nolint:errcheck

	return s.stager.WriteToTemp(reader)
}

// runValidation executes the two validation probes in parallel; they share
// the staged file but nothing else.
func (s *Service) runValidation(ctx context.Context, path string) (validation.BasicResult, validation.StreamResult) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("validation").Observe(time.Since(start).Seconds())
	}()

	var (
		basic  validation.BasicResult
		stream validation.StreamResult
		wg     sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		basic = s.validator.ValidateBasics(ctx, path)
	}()
	go func() {
		defer wg.Done()
		stream = s.validator.ValidateStreams(ctx, path)
	}()
	wg.Wait()

	return basic, stream
}

// runExtraction executes the three metadata probes in parallel.
func (s *Service) runExtraction(ctx context.Context, path string) (mediameta.Technical, mediameta.Content, mediameta.Quality) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("metadata").Observe(time.Since(start).Seconds())
	}()

	var (
		technical mediameta.Technical
		content   mediameta.Content
		quality   mediameta.Quality
		wg        sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		technical = s.extractor.Technical(ctx, path)
	}()
	go func() {
		defer wg.Done()
		content = s.extractor.Content(ctx, path)
	}()
	go func() {
		defer wg.Done()
		quality = s.extractor.Quality(ctx, path)
	}()
	wg.Wait()

	return technical, content, quality
}

func (s *Service) persistResults(ctx context.Context, owner Owner,
	basic validation.BasicResult, stream validation.StreamResult,
	technical mediameta.Technical, content mediameta.Content, quality mediameta.Quality) error {

	writes := []struct {
		path metacache.Path
		data any
	}{
		{metacache.PathValidationBasic, basic},
		{metacache.PathValidationStream, stream},
		{metacache.PathTechnical, technical},
		{metacache.PathQuality, quality},
		{metacache.PathContent, content},
	}
	for _, write := range writes {
		if err := s.cache.UpdateMetadata(ctx, owner.UserID, owner.AssetID, write.path, write.data); err != nil {
			return err
		}
	}

	for _, stage := range []metacache.Stage{
		metacache.StageUpload,
		metacache.StageValidation,
		metacache.StageMetadata,
	} {
		if err := s.cache.UpdateProgress(ctx, owner.UserID, owner.AssetID, stage); err != nil {
			return err
		}
	}
	return nil
}

// segmentAndUpload cuts the staged file into GOP segments, uploads each
// under the asset prefix in parallel, and returns the final segment list
// sorted by sequence. Upload failures abort the object; already-uploaded
// segments are left in place for the redelivery to overwrite by key.
func (s *Service) segmentAndUpload(ctx context.Context, owner Owner, localPath string) ([]gop.Segment, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("gop").Observe(time.Since(start).Seconds())
	}()

	outputDir, err := os.MkdirTemp(s.scratchDir, "gop-")
	if err != nil {
		return nil, fault.Segmentation("create segment output dir", err)
	}
	defer os.RemoveAll(outputDir) //nolint:errcheck

	result := s.segment(ctx, localPath, outputDir)
	if !result.Success {
		return nil, fault.Segmentation(result.Error, nil)
	}
	if err := s.cache.UpdateProgress(ctx, owner.UserID, owner.AssetID, metacache.StageGopCreation); err != nil {
		return nil, err
	}

	segments := make([]gop.Segment, len(result.Segments))
	copy(segments, result.Segments)

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	for i := range segments {
		wg.Add(1)
		go func(segment *gop.Segment) {
			defer wg.Done()
			if err := s.uploadSegment(ctx, owner, segment); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(&segments[i])
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Sequence < segments[j].Sequence
	})

	if err := s.cache.UpdateGops(ctx, owner.UserID, owner.AssetID, metacache.GopState{
		TotalCount:     len(segments),
		CompletedCount: len(segments),
		Segments:       segments,
	}); err != nil {
		return nil, err
	}

	return segments, nil
}

func (s *Service) uploadSegment(ctx context.Context, owner Owner, segment *gop.Segment) error {
	reader, size, err := s.stager.GetFromTemp(segment.Path)
	if err != nil {
		return err
	}

	key := SegmentKey(owner, filepath.Base(segment.Path))
	err = s.stager.UploadObject(ctx, reader, size, s.assetBucket, key)
	reader.Close() //nolint:errcheck
	if err != nil {
		return err
	}

	segment.Status = gop.StatusUploaded
	metrics.SegmentsUploaded.Inc()

	if err := s.stager.CleanUpFromTemp(segment.Path); err != nil {
		s.logger.Warn("segment scratch cleanup failed",
			zap.String("path", segment.Path), zap.Error(err))
	}
	return nil
}
