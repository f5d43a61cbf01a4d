package gop

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestCollectSegmentsContiguousSequences(t *testing.T) {
	dir := t.TempDir()
	// Created out of order, with gaps in the embedded numbers.
	touch(t, dir, "segment_010.mp4")
	touch(t, dir, "segment_000.mp4")
	touch(t, dir, "segment_003.mp4")

	segments, err := collectSegments(dir)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	for i, segment := range segments {
		assert.Equal(t, i, segment.Sequence, "sequence is re-derived from sort order")
		assert.Equal(t, StatusProcessed, segment.Status)
	}
	assert.Equal(t, filepath.Join(dir, "segment_000.mp4"), segments[0].Path)
	assert.Equal(t, filepath.Join(dir, "segment_003.mp4"), segments[1].Path)
	assert.Equal(t, filepath.Join(dir, "segment_010.mp4"), segments[2].Path)
}

func TestCollectSegmentsIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "segment_000.mp4")
	touch(t, dir, "segment_001.mp4.tmp")
	touch(t, dir, "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "segment_999.mp4"), 0o755))

	segments, err := collectSegments(dir)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, 0, segments[0].Sequence)
}

func TestCollectSegmentsEmptyDir(t *testing.T) {
	segments, err := collectSegments(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{OutputDir: "/scratch/out"}.withDefaults()

	assert.Equal(t, 2, cfg.KeyframeIntervalSeconds)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.Equal(t, "fast", cfg.Preset)
	assert.Equal(t, 18, cfg.CRF)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/scratch/out", cfg.OutputDir)
}

func TestEncodingArgsPeriodicKeyframes(t *testing.T) {
	segmenter := NewSegmenter(Config{
		OutputDir:               t.TempDir(),
		KeyframeIntervalSeconds: 2,
		FrameRate:               30,
		ForceClosedGop:          true,
	})

	args := segmenter.encodingArgs()
	joined := ""
	for _, arg := range args {
		joined += arg + " "
	}

	assert.Contains(t, joined, "-g 60 ")
	assert.Contains(t, joined, "-keyint_min 60 ")
	assert.Contains(t, joined, "-force_key_frames expr:gte(t,n_forced*2) ")
	assert.Contains(t, joined, "-flags +cgop ")
	assert.Contains(t, joined, "-sc_threshold 0 ")
	assert.Contains(t, joined, "-segment_time 2 ")
}

func TestEncodingArgsSceneChangeAndOpenGop(t *testing.T) {
	segmenter := NewSegmenter(Config{
		OutputDir:            t.TempDir(),
		SceneChangeDetection: true,
		ForceClosedGop:       false,
	})

	args := segmenter.encodingArgs()
	joined := ""
	for _, arg := range args {
		joined += arg + " "
	}

	assert.Contains(t, joined, "-sc_threshold 1 ")
	assert.NotContains(t, joined, "+cgop")
}

func TestCreateFailureNeverPanicsAndReportsError(t *testing.T) {
	segmenter := NewSegmenter(Config{
		OutputDir:  t.TempDir(),
		FFmpegPath: "/nonexistent/ffmpeg-binary",
	})

	result := segmenter.Create(context.Background(), "/nonexistent/input.mp4")

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.Segments)
	assert.GreaterOrEqual(t, result.TimeTaken.Nanoseconds(), int64(0))
}
