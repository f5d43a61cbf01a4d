// Package validation gates media files on container/codec support and
// stream playability before any further processing happens.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/your-org/mediaprep/internal/fault"
	"github.com/your-org/mediaprep/internal/probe"
)

var (
	supportedFormats     = []string{"mp4", "mov", "avi", "mkv"}
	supportedVideoCodecs = []string{"h264", "hevc", "vp8", "vp9"}
	supportedAudioCodecs = []string{"aac", "mp3", "opus"}
)

// BasicResult reports container-level validation of a staged file.
type BasicResult struct {
	Exists          bool   `json:"exists"`
	SizeInBytes     int64  `json:"sizeInBytes"`
	WithinSizeLimit bool   `json:"isWithinSizeLimit"`
	ContainerFormat string `json:"containerFormat"`
	DetectedFormats string `json:"detectedFormats"`
	VideoCodec      string `json:"videoCodec"`
	AudioCodec      string `json:"audioCodec"`
	Valid           bool   `json:"isValid"`
}

// StreamResult reports stream presence and playability of a staged file.
type StreamResult struct {
	HasVideoStream   bool   `json:"hasVideoStream"`
	HasAudioStream   bool   `json:"hasAudioStream"`
	Playable         bool   `json:"isPlayable"`
	HasCorruptFrames bool   `json:"hasCorruptFrames"`
	Error            string `json:"error,omitempty"`
}

// Service runs content validation probes. Probe failures degrade to
// invalid results; the service itself never fails.
type Service struct {
	prober       probe.Prober
	maxSizeBytes int64
}

// NewService constructs a validation Service. maxSizeBytes of zero
// disables the size-limit bookkeeping.
func NewService(prober probe.Prober, maxSizeBytes int64) *Service {
	return &Service{prober: prober, maxSizeBytes: maxSizeBytes}
}

func (s *Service) defaultResult(exists bool, size int64) BasicResult {
	return BasicResult{
		Exists:          exists,
		SizeInBytes:     size,
		WithinSizeLimit: exists && s.withinLimit(size),
		ContainerFormat: "unknown",
		DetectedFormats: "unknown",
		VideoCodec:      "none",
		AudioCodec:      "none",
	}
}

func (s *Service) withinLimit(size int64) bool {
	return s.maxSizeBytes <= 0 || size <= s.maxSizeBytes
}

// ValidateBasics probes container format and codecs against the supported
// whitelists.
func (s *Service) ValidateBasics(ctx context.Context, path string) BasicResult {
	info, err := os.Stat(path)
	if err != nil {
		return s.defaultResult(false, 0)
	}

	result, err := s.prober.Inspect(ctx, path)
	if err != nil {
		return s.defaultResult(true, info.Size())
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = firstFormat(result.Format.FormatName)
	}

	videoCodec := "none"
	if v := result.VideoStream(); v != nil && v.CodecName != "" {
		videoCodec = strings.ToLower(v.CodecName)
	}
	audioCodec := "none"
	if a := result.AudioStream(); a != nil && a.CodecName != "" {
		audioCodec = strings.ToLower(a.CodecName)
	}

	detected := result.Format.FormatName
	if detected == "" {
		detected = "unknown"
	}

	return BasicResult{
		Exists:          true,
		SizeInBytes:     info.Size(),
		WithinSizeLimit: s.withinLimit(info.Size()),
		ContainerFormat: format,
		DetectedFormats: detected,
		VideoCodec:      videoCodec,
		AudioCodec:      audioCodec,
		Valid:           isValidVideo(format, videoCodec, audioCodec),
	}
}

func firstFormat(formatName string) string {
	if formatName == "" {
		return "unknown"
	}
	return strings.SplitN(formatName, ",", 2)[0]
}

func isValidVideo(format, videoCodec, audioCodec string) bool {
	return formatSupported(format) &&
		contains(supportedVideoCodecs, videoCodec) &&
		contains(supportedAudioCodecs, audioCodec)
}

func formatSupported(format string) bool {
	for _, supported := range supportedFormats {
		if strings.Contains(format, supported) {
			return true
		}
	}
	return false
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// ValidateStreams determines stream presence and playability. A file whose
// metadata cannot be read at all is flagged corrupt.
func (s *Service) ValidateStreams(ctx context.Context, path string) StreamResult {
	result, err := s.prober.Inspect(ctx, path)
	if err != nil {
		return StreamResult{
			HasCorruptFrames: true,
			Error:            "unable to read file metadata",
		}
	}

	playability := s.prober.CheckPlayability(ctx, path)

	return StreamResult{
		HasVideoStream:   result.VideoStream() != nil,
		HasAudioStream:   result.AudioStream() != nil,
		Playable:         playability.Playable,
		HasCorruptFrames: !playability.Playable,
		Error:            playability.Message,
	}
}

// Accepted reports whether the combined validation results pass the
// pipeline gate.
func Accepted(basic BasicResult, stream StreamResult) bool {
	return basic.Valid &&
		stream.Playable &&
		!stream.HasCorruptFrames &&
		stream.HasVideoStream &&
		stream.HasAudioStream
}

// GateError returns the single validation fault to report for rejected
// content, or nil when the content is accepted. When several conditions
// fail at once the most specific one wins: missing video, missing audio,
// corrupt frames, not playable, then the generic rejection.
func GateError(basic BasicResult, stream StreamResult) *fault.Error {
	if Accepted(basic, stream) {
		return nil
	}

	switch {
	case !stream.HasVideoStream:
		return fault.Validation("no video stream detected")
	case !stream.HasAudioStream:
		return fault.Validation("no audio stream detected")
	case stream.HasCorruptFrames:
		return fault.Validation(corruptMessage(stream))
	case !stream.Playable:
		return fault.Validation("content is not playable")
	default:
		return fault.Validation(fmt.Sprintf(
			"unsupported content: format=%s video=%s audio=%s",
			basic.ContainerFormat, basic.VideoCodec, basic.AudioCodec))
	}
}

func corruptMessage(stream StreamResult) string {
	if stream.Error != "" {
		return "corrupt frames detected: " + stream.Error
	}
	return "corrupt frames detected"
}
