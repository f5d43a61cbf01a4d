// Package probe shells out to ffprobe and ffmpeg for lightweight media
// inspection: container/stream metadata and a no-decode playability pass.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index              int    `json:"index"`
	CodecName          string `json:"codec_name"`
	CodecType          string `json:"codec_type"`
	Duration           string `json:"duration"`
	BitRate            string `json:"bit_rate"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	RFrameRate         string `json:"r_frame_rate"`
	DisplayAspectRatio string `json:"display_aspect_ratio"`
	ColorSpace         string `json:"color_space"`
	NBFrames           string `json:"nb_frames"`
	SampleRate         string `json:"sample_rate"`
	Channels           int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string            `json:"filename"`
	NBStreams  int               `json:"nb_streams"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// VideoStream returns the first video stream, or nil when absent.
func (r Result) VideoStream() *Stream {
	return r.streamOfType("video")
}

// AudioStream returns the first audio stream, or nil when absent.
func (r Result) AudioStream() *Stream {
	return r.streamOfType("audio")
}

func (r Result) streamOfType(codecType string) *Stream {
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, codecType) {
			return &r.Streams[i]
		}
	}
	return nil
}

// Playability is the outcome of a null-output copy pass. Message carries
// the tool's error output when the pass fails.
type Playability struct {
	Playable bool
	Message  string
}

// Prober inspects media files. The ffmpeg-backed implementation lives
// below; tests substitute fakes.
type Prober interface {
	Inspect(ctx context.Context, path string) (Result, error)
	CheckPlayability(ctx context.Context, path string) Playability
}

// FFmpeg probes files by invoking the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// New constructs an FFmpeg prober. Empty paths fall back to $PATH lookup.
func New(ffmpegPath, ffprobePath string) *FFmpeg {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response.
func (f *FFmpeg) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// CheckPlayability runs a stream-copy pass into the null muxer. Success
// means every packet could be read end to end without decoding. The check
// never fails hard; tool errors are reported in the result.
func (f *FFmpeg) CheckPlayability(ctx context.Context, path string) Playability {
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-c", "copy",
		"-f", "null", "-")
	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			msg = err.Error()
		}
		return Playability{Playable: false, Message: msg}
	}
	return Playability{Playable: true}
}
