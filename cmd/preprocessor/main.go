package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/your-org/mediaprep/internal/gop"
	"github.com/your-org/mediaprep/internal/mediameta"
	"github.com/your-org/mediaprep/internal/metacache"
	"github.com/your-org/mediaprep/internal/preprocess"
	"github.com/your-org/mediaprep/internal/probe"
	"github.com/your-org/mediaprep/internal/staging"
	"github.com/your-org/mediaprep/internal/task"
	"github.com/your-org/mediaprep/internal/validation"
	"github.com/your-org/mediaprep/pkg/config"
	"github.com/your-org/mediaprep/pkg/kafka"
	"github.com/your-org/mediaprep/pkg/logger"
	"github.com/your-org/mediaprep/pkg/metrics"
	"github.com/your-org/mediaprep/pkg/storage/objectstore"
	"github.com/your-org/mediaprep/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init object store", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	if err := metacache.Migrate(db); err != nil {
		logr.Fatal("migrate database", zap.Error(err))
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.TaskTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})

	prober := probe.New(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)

	service := preprocess.NewService(preprocess.Params{
		Stager:    staging.NewStager(store, cfg.Storage.ScratchDir),
		Validator: validation.NewService(prober, cfg.Upload.MaxSizeBytes),
		Extractor: mediameta.NewExtractor(prober),
		Segment: preprocess.NewSegmentFunc(gop.Config{
			KeyframeIntervalSeconds: cfg.Gop.KeyframeIntervalSeconds,
			ForceClosedGop:          cfg.Gop.ForceClosedGop,
			SceneChangeDetection:    cfg.Gop.SceneChangeDetection,
			FrameRate:               cfg.Gop.FrameRate,
			Preset:                  cfg.Gop.Preset,
			CRF:                     cfg.Gop.CRF,
			FFmpegPath:              cfg.FFmpeg.FFmpegPath,
		}),
		Cache:       metacache.NewStore(db),
		Dispatcher:  task.NewDispatcher(producer),
		Logger:      logr,
		AssetBucket: cfg.Storage.AssetBucket,
		ScratchDir:  cfg.Storage.ScratchDir,
	})

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.NotificationTopic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: cfg.Kafka.MinBytes,
		MaxBytes: cfg.Kafka.MaxBytes,
		MaxWait:  cfg.Kafka.MaxWait,
	})

	healthServer := newHealthServer(cfg.HTTP)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:        cfg.Metrics.Addr,
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("health server failed", zap.Error(err))
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := consumer.Close(); err != nil {
			logr.Error("consumer close failed", zap.Error(err))
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logr.Error("health server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logr.Error("metrics server shutdown failed", zap.Error(err))
		}
		if err := producer.Close(shutdownCtx); err != nil {
			logr.Error("producer close failed", zap.Error(err))
		}
	}()

	logr.Info("preprocessor starting",
		zap.String("notification_topic", cfg.Kafka.NotificationTopic),
		zap.String("task_topic", cfg.Kafka.TaskTopic),
		zap.String("group_id", cfg.Kafka.GroupID))

	consume(ctx, consumer, service, logr)
}

// consume runs the fetch/process/commit loop. Offsets are committed only
// after successful processing; a retryable failure leaves the offset
// uncommitted so the consumer group redelivers the message.
func consume(ctx context.Context, consumer *kafka.Consumer, service *preprocess.Service, logr *zap.Logger) {
	for {
		msg, err := consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logr.Info("consumer stopping")
				return
			}
			logr.Error("fetch message failed", zap.Error(err))
			continue
		}

		id := fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
		result := service.ProcessBatch(ctx, []preprocess.Message{{ID: id, Body: msg.Value}})
		if result.Failed(id) {
			logr.Warn("leaving message uncommitted for redelivery",
				zap.String("message_id", id))
			continue
		}

		if err := consumer.Commit(ctx, msg); err != nil {
			logr.Error("commit failed", zap.String("message_id", id), zap.Error(err))
		}
	}
}

func newHealthServer(cfg config.HTTPConfig) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func parseResourceAttributes(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	attrs := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" || !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return attrs
}
