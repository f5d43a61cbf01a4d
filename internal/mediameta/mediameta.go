// Package mediameta extracts technical, descriptive, and quality metadata
// from staged media files. Every probe degrades to absent values instead of
// failing: a nil pointer means the field could not be determined.
package mediameta

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/mediaprep/internal/probe"
)

// Resolution is the pixel dimensions of the primary video stream.
type Resolution struct {
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

// Technical describes container- and stream-level facts about the file.
type Technical struct {
	ContainerFormat *string    `json:"containerFormat"`
	VideoCodec      *string    `json:"videoCodec"`
	AudioCodec      *string    `json:"audioCodec"`
	DurationSeconds *float64   `json:"duration"`
	BitRate         *int64     `json:"bitrate"`
	FrameRate       *string    `json:"frameRate"`
	Resolution      Resolution `json:"resolution"`
	AspectRatio     *string    `json:"aspectRatio"`
	ColorSpace      *string    `json:"colorSpace"`
}

// Content carries descriptive freshness signals.
type Content struct {
	CreationTime *string    `json:"creationDate"`
	LastModified *time.Time `json:"lastModified"`
}

// Corruption mirrors the playability check outcome.
type Corruption struct {
	Corrupted bool   `json:"isCorrupted"`
	Details   string `json:"details"`
}

// AudioSync is a placeholder signal; offset measurement needs a decode
// pass this pipeline does not perform.
type AudioSync struct {
	InSync   bool `json:"inSync"`
	OffsetMs *int `json:"offsetMs"`
}

// Quality aggregates heuristic quality signals.
type Quality struct {
	VideoQualityScore *int       `json:"videoQualityScore"`
	AudioQualityScore *int       `json:"audioQualityScore"`
	Corruption        Corruption `json:"corruptionStatus"`
	MissingFrames     *int64     `json:"missingFrames"`
	AudioSync         AudioSync  `json:"audioSync"`
}

// Extractor runs the three metadata probes.
type Extractor struct {
	prober probe.Prober
}

// NewExtractor constructs an Extractor over the given prober.
func NewExtractor(prober probe.Prober) *Extractor {
	return &Extractor{prober: prober}
}

// Technical probes container format, codecs, duration, bitrate, frame
// rate, resolution, aspect ratio, and color space.
func (e *Extractor) Technical(ctx context.Context, path string) Technical {
	result, err := e.prober.Inspect(ctx, path)
	if err != nil {
		return Technical{}
	}

	tech := Technical{
		ContainerFormat: nonEmpty(firstFormat(result.Format.FormatName)),
		DurationSeconds: parseFloat(result.Format.Duration),
		BitRate:         parseInt(result.Format.BitRate),
	}

	if video := result.VideoStream(); video != nil {
		tech.VideoCodec = nonEmpty(video.CodecName)
		tech.FrameRate = nonEmpty(video.RFrameRate)
		tech.Resolution = Resolution{
			Width:  positiveInt(video.Width),
			Height: positiveInt(video.Height),
		}
		tech.AspectRatio = nonEmpty(video.DisplayAspectRatio)
		tech.ColorSpace = nonEmpty(video.ColorSpace)
	}
	if audio := result.AudioStream(); audio != nil {
		tech.AudioCodec = nonEmpty(audio.CodecName)
	}

	return tech
}

// Content reads the container creation tag when present and falls back to
// the filesystem modification time as a freshness signal.
func (e *Extractor) Content(ctx context.Context, path string) Content {
	var content Content

	if result, err := e.prober.Inspect(ctx, path); err == nil {
		if created, ok := result.Format.Tags["creation_time"]; ok && created != "" {
			content.CreationTime = &created
		}
	}

	if info, err := os.Stat(path); err == nil {
		modified := info.ModTime().UTC()
		content.LastModified = &modified
	}

	return content
}

// Quality computes heuristic quality scores, the corruption status, and a
// missing-frame estimate.
func (e *Extractor) Quality(ctx context.Context, path string) Quality {
	result, err := e.prober.Inspect(ctx, path)
	if err != nil {
		return Quality{
			Corruption: Corruption{Details: "unable to determine"},
		}
	}

	playability := e.prober.CheckPlayability(ctx, path)
	details := "no corruption detected"
	if !playability.Playable {
		details = playability.Message
		if details == "" {
			details = "playability check failed"
		}
	}

	video := result.VideoStream()
	audio := result.AudioStream()

	return Quality{
		VideoQualityScore: videoQualityScore(video),
		AudioQualityScore: audioQualityScore(audio),
		Corruption: Corruption{
			Corrupted: !playability.Playable,
			Details:   details,
		},
		MissingFrames: missingFrames(video),
		AudioSync:     AudioSync{InSync: true},
	}
}

// videoQualityScore scales resolution and bitrate against a 1080p/5Mbps
// reference: clamp(0, 100, round(50 * (resRatio + bitrateRatio))).
func videoQualityScore(video *probe.Stream) *int {
	if video == nil {
		return nil
	}
	bitrate := parseInt(video.BitRate)
	if video.Width <= 0 || video.Height <= 0 || bitrate == nil || *bitrate <= 0 {
		return nil
	}

	resolutionRatio := float64(video.Width*video.Height) / (1920.0 * 1080.0)
	bitrateRatio := float64(*bitrate) / 5_000_000.0
	score := clampScore(math.Round(50 * (resolutionRatio + bitrateRatio)))
	return &score
}

// audioQualityScore scales the audio bitrate against a 320kbps reference.
func audioQualityScore(audio *probe.Stream) *int {
	if audio == nil {
		return nil
	}
	bitrate := parseInt(audio.BitRate)
	if bitrate == nil || *bitrate <= 0 {
		return nil
	}

	score := clampScore(math.Round(float64(*bitrate) / 320_000.0 * 100))
	return &score
}

// missingFrames estimates dropped frames as expected minus actual, floored
// at zero. Absent when duration, frame rate, or the actual frame count is
// unavailable.
func missingFrames(video *probe.Stream) *int64 {
	if video == nil {
		return nil
	}

	duration := parseFloat(video.Duration)
	actual := parseInt(video.NBFrames)
	num, den, ok := parseRational(video.RFrameRate)
	if duration == nil || actual == nil || !ok {
		return nil
	}

	expected := int64(math.Round(*duration * num / den))
	missing := expected - *actual
	if missing < 0 {
		missing = 0
	}
	return &missing
}

func firstFormat(formatName string) string {
	if formatName == "" {
		return ""
	}
	return strings.SplitN(formatName, ",", 2)[0]
}

func parseRational(raw string) (num, den float64, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, errN := strconv.ParseFloat(parts[0], 64)
	den, errD := strconv.ParseFloat(parts[1], 64)
	if errN != nil || errD != nil || den == 0 {
		return 0, 0, false
	}
	return num, den, true
}

func parseFloat(raw string) *float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &value
}

func parseInt(raw string) *int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

func nonEmpty(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}

func positiveInt(value int) *int {
	if value <= 0 {
		return nil
	}
	return &value
}

func clampScore(value float64) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return int(value)
}
