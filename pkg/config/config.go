package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for a mediaprep service.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Kafka    KafkaConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Tracing  TracingConfig
	Metrics  MetricsConfig
	Upload   UploadConfig
	FFmpeg   FFmpegConfig
	Gop      GopConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"mediaprep-preprocessor"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type KafkaConfig struct {
	Brokers           []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	NotificationTopic string        `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"mediaprep.notifications"`
	TaskTopic         string        `env:"KAFKA_TASK_TOPIC" envDefault:"mediaprep.tasks"`
	GroupID           string        `env:"KAFKA_GROUP_ID" envDefault:"mediaprep-preprocessor"`
	Retries           int           `env:"KAFKA_RETRIES" envDefault:"3"`
	RetryBackoff      time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
	CompressionCodec  string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize         int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout      time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
	MinBytes          int           `env:"KAFKA_MIN_BYTES" envDefault:"1"`
	MaxBytes          int           `env:"KAFKA_MAX_BYTES" envDefault:"10485760"`
	MaxWait           time.Duration `env:"KAFKA_MAX_WAIT" envDefault:"1s"`
}

type StorageConfig struct {
	Provider     string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint     string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region       string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	SourceBucket string `env:"STORAGE_SOURCE_BUCKET" envDefault:"mediaprep-transport"`
	AssetBucket  string `env:"STORAGE_ASSET_BUCKET" envDefault:"mediaprep-assets"`
	AccessKey    string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey    string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL       bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
	ScratchDir   string `env:"STORAGE_SCRATCH_DIR" envDefault:"/tmp"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"mediaprep"`
	Password string `env:"DB_PASSWORD" envDefault:"mediaprep"`
	Name     string `env:"DB_NAME" envDefault:"mediaprep"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN renders the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=mediaprep"`
}

type MetricsConfig struct {
	Addr string `env:"METRICS_ADDR" envDefault:":9102"`
}

type UploadConfig struct {
	MaxSizeBytes      int64 `env:"UPLOAD_MAX_SIZE_BYTES" envDefault:"10737418240"`
	MultipartMemBytes int64 `env:"UPLOAD_MULTIPART_MEM_BYTES" envDefault:"52428800"`
}

type FFmpegConfig struct {
	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
}

type GopConfig struct {
	KeyframeIntervalSeconds int    `env:"GOP_KEYFRAME_INTERVAL_SECONDS" envDefault:"2"`
	ForceClosedGop          bool   `env:"GOP_FORCE_CLOSED" envDefault:"true"`
	SceneChangeDetection    bool   `env:"GOP_SCENE_CHANGE_DETECTION" envDefault:"false"`
	FrameRate               int    `env:"GOP_FRAME_RATE" envDefault:"30"`
	Preset                  string `env:"GOP_PRESET" envDefault:"fast"`
	CRF                     int    `env:"GOP_CRF" envDefault:"18"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
