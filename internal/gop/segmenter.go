// Package gop cuts media files into closed, fixed-interval GOP segments by
// invoking ffmpeg. Segment boundaries are strictly periodic: keyframes are
// forced on the interval and scene-adaptive insertion is disabled unless
// explicitly requested.
package gop

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Status tracks a segment through the upload fan-out.
type Status string

const (
	StatusProcessed Status = "PROCESSED"
	StatusUploaded  Status = "UPLOADED"
)

// Segment is one GOP-aligned output file.
type Segment struct {
	Sequence int    `json:"sequence"`
	Path     string `json:"path"`
	Status   Status `json:"status"`
}

// Config controls segmentation. DefaultConfig supplies the standard values.
type Config struct {
	KeyframeIntervalSeconds int
	ForceClosedGop          bool
	SceneChangeDetection    bool
	OutputDir               string
	FrameRate               int
	Preset                  string
	CRF                     int
	FFmpegPath              string
}

/// DefaultConfig returns the standard segmentation settings: 2s closed GOPs
// at 30fps, x264 fast preset, CRF 18, no scene-change keyframes.
func DefaultConfig(outputDir string) Config {
	return Config{
		KeyframeIntervalSeconds: 2,
		ForceClosedGop:          true,
		SceneChangeDetection:    false,
		OutputDir:               outputDir,
		FrameRate:               30,
		Preset:                  "fast",
		CRF:                     18,
		FFmpegPath:              "ffmpeg",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.OutputDir)
	if c.KeyframeIntervalSeconds <= 0 {
		c.KeyframeIntervalSeconds = def.KeyframeIntervalSeconds
	}
	if c.FrameRate <= 0 {
		c.FrameRate = def.FrameRate
	}
	if c.Preset == "" {
		c.Preset = def.Preset
	}
	if c.CRF <= 0 {
		c.CRF = def.CRF
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = def.FFmpegPath
	}
	return c
}

// Result is the outcome of a segmentation run. The segmenter never fails
// across its boundary; Success false carries the error text instead.
type Result struct {
	Success   bool
	Error     string
	TimeTaken time.Duration
	Segments  []Segment
}

// Segmenter drives ffmpeg to produce GOP segments.
type Segmenter struct {
	cfg Config
}

// NewSegmenter constructs a Segmenter, filling unset config fields with
// defaults.
func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

// Create segments inputPath into the configured output directory and
// returns the discovered segments with contiguous sequence numbers.
func (s *Segmenter) Create(ctx context.Context, inputPath string) Result {
	start := time.Now()

	fail := func(err error) Result {
		return Result{Error: err.Error(), TimeTaken: time.Since(start), Segments: []Segment{}}
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return fail(fmt.Errorf("create output dir: %w", err))
	}

	if err := s.runFFmpeg(ctx, inputPath); err != nil {
		return fail(err)
	}

	segments, err := collectSegments(s.cfg.OutputDir)
	if err != nil {
		return fail(err)
	}

	return Result{Success: true, TimeTaken: time.Since(start), Segments: segments}
}

func (s *Segmenter) runFFmpeg(ctx context.Context, inputPath string) error {
	args := []string{
		"-v", "error",
		"-nostdin",
		"-y",
		"-i", inputPath,
	}
	args = append(args, s.encodingArgs()...)
	args = append(args, filepath.Join(s.cfg.OutputDir, "segment_%03d.mp4"))

	cmd := exec.CommandContext(ctx, s.cfg.FFmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("ffmpeg segmentation: %s", msg)
	}
	return nil
}

func (s *Segmenter) encodingArgs() []string {
	gopFrames := strconv.Itoa(s.cfg.KeyframeIntervalSeconds * s.cfg.FrameRate)
	interval := strconv.Itoa(s.cfg.KeyframeIntervalSeconds)

	args := []string{
		"-c:v", "libx264",
		"-preset", s.cfg.Preset,
		"-crf", strconv.Itoa(s.cfg.CRF),
		"-c:a", "copy",
		"-r", strconv.Itoa(s.cfg.FrameRate),

		// Keyframe exactly every interval: as GOP length, as minimum
		// spacing, and as a forced keyframe on elapsed time.
		"-g", gopFrames,
		"-keyint_min", gopFrames,
		"-force_key_frames", "expr:gte(t,n_forced*" + interval + ")",
	}

	if s.cfg.ForceClosedGop {
		args = append(args, "-flags", "+cgop")
	}

	if s.cfg.SceneChangeDetection {
		args = append(args, "-sc_threshold", "1")
	} else {
		args = append(args, "-sc_threshold", "0")
	}

	return append(args,
		"-f", "segment",
		"-segment_time", interval,
		"-reset_timestamps", "1",
		"-segment_format", "mp4",
	)
}

// collectSegments lists the output directory, filters to segment files,
// and assigns sequence numbers from lexicographic filename order. The
// sequence is re-derived from sort position rather than the filename's
// embedded number so the result is always contiguous from zero.
func collectSegments(dir string) ([]Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "segment_") && strings.HasSuffix(name, ".mp4") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	segments := make([]Segment, len(names))
	for i, name := range names {
		segments[i] = Segment{
			Sequence: i,
			Path:     filepath.Join(dir, name),
			Status:   StatusProcessed,
		}
	}
	return segments, nil
}
