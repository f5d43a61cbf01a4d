package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediaprep/internal/fault"
	"github.com/your-org/mediaprep/internal/probe"
)

type fakeProber struct {
	result      probe.Result
	inspectErr  error
	playability probe.Playability
}

func (f *fakeProber) Inspect(context.Context, string) (probe.Result, error) {
	return f.result, f.inspectErr
}

func (f *fakeProber) CheckPlayability(context.Context, string) probe.Playability {
	return f.playability
}

func writeTestFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))
	return path
}

func h264AacResult() probe.Result {
	return probe.Result{
		Streams: []probe.Stream{
			{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080},
			{CodecType: "audio", CodecName: "aac"},
		},
		Format: probe.Format{FormatName: "mov,mp4,m4a,3gp,3g2,mj2"},
	}
}

func TestValidateBasicsAccepted(t *testing.T) {
	prober := &fakeProber{result: h264AacResult()}
	svc := NewService(prober, 0)

	result := svc.ValidateBasics(context.Background(), writeTestFile(t, "sample.mp4"))

	assert.True(t, result.Exists)
	assert.True(t, result.Valid)
	assert.Equal(t, "mp4", result.ContainerFormat)
	assert.Equal(t, "h264", result.VideoCodec)
	assert.Equal(t, "aac", result.AudioCodec)
}

func TestValidateBasicsMissingFile(t *testing.T) {
	svc := NewService(&fakeProber{}, 0)

	result := svc.ValidateBasics(context.Background(), filepath.Join(t.TempDir(), "absent.mp4"))

	assert.False(t, result.Exists)
	assert.False(t, result.Valid)
	assert.Equal(t, "unknown", result.ContainerFormat)
	assert.Equal(t, "none", result.VideoCodec)
}

func TestValidateBasicsProbeFailure(t *testing.T) {
	prober := &fakeProber{inspectErr: errors.New("corrupt header")}
	svc := NewService(prober, 0)

	result := svc.ValidateBasics(context.Background(), writeTestFile(t, "sample.mp4"))

	assert.True(t, result.Exists)
	assert.False(t, result.Valid)
	assert.Equal(t, "unknown", result.ContainerFormat)
	assert.Equal(t, "none", result.AudioCodec)
}

func TestValidateBasicsRejectsUnsupportedCodec(t *testing.T) {
	result := h264AacResult()
	result.Streams[0].CodecName = "mpeg2video"
	svc := NewService(&fakeProber{result: result}, 0)

	basic := svc.ValidateBasics(context.Background(), writeTestFile(t, "sample.mp4"))

	assert.False(t, basic.Valid)
	assert.Equal(t, "mpeg2video", basic.VideoCodec)
}

func TestValidateBasicsFormatSubstringMatch(t *testing.T) {
	// Extension-less path falls back to the detected format list, and the
	// whitelist matches by substring ("mov,mp4,..." contains "mov").
	prober := &fakeProber{result: h264AacResult()}
	svc := NewService(prober, 0)

	basic := svc.ValidateBasics(context.Background(), writeTestFile(t, "noextension"))

	assert.Equal(t, "mov", basic.ContainerFormat)
	assert.True(t, basic.Valid)
}

func TestValidateStreamsPlayable(t *testing.T) {
	prober := &fakeProber{
		result:      h264AacResult(),
		playability: probe.Playability{Playable: true},
	}
	svc := NewService(prober, 0)

	stream := svc.ValidateStreams(context.Background(), "any")

	assert.True(t, stream.HasVideoStream)
	assert.True(t, stream.HasAudioStream)
	assert.True(t, stream.Playable)
	assert.False(t, stream.HasCorruptFrames)
	assert.Empty(t, stream.Error)
}

func TestValidateStreamsNotPlayable(t *testing.T) {
	prober := &fakeProber{
		result:      h264AacResult(),
		playability: probe.Playability{Playable: false, Message: "invalid NAL unit"},
	}
	svc := NewService(prober, 0)

	stream := svc.ValidateStreams(context.Background(), "any")

	assert.False(t, stream.Playable)
	assert.True(t, stream.HasCorruptFrames)
	assert.Equal(t, "invalid NAL unit", stream.Error)
}

func TestValidateStreamsProbeFailure(t *testing.T) {
	prober := &fakeProber{inspectErr: errors.New("cannot read")}
	svc := NewService(prober, 0)

	stream := svc.ValidateStreams(context.Background(), "any")

	assert.False(t, stream.HasVideoStream)
	assert.False(t, stream.HasAudioStream)
	assert.True(t, stream.HasCorruptFrames)
	assert.Equal(t, "unable to read file metadata", stream.Error)
}

func TestGateErrorPrecedence(t *testing.T) {
	validBasic := BasicResult{Valid: true}

	cases := []struct {
		name    string
		basic   BasicResult
		stream  StreamResult
		wantMsg string
	}{
		{
			name:    "missing video wins over everything",
			basic:   BasicResult{},
			stream:  StreamResult{HasAudioStream: false, HasCorruptFrames: true},
			wantMsg: "no video stream detected",
		},
		{
			name:    "missing audio next",
			basic:   BasicResult{},
			stream:  StreamResult{HasVideoStream: true, HasCorruptFrames: true},
			wantMsg: "no audio stream detected",
		},
		{
			name:    "corrupt frames before playability",
			basic:   validBasic,
			stream:  StreamResult{HasVideoStream: true, HasAudioStream: true, HasCorruptFrames: true, Error: "bad atom"},
			wantMsg: "corrupt frames detected: bad atom",
		},
		{
			name:    "not playable",
			basic:   validBasic,
			stream:  StreamResult{HasVideoStream: true, HasAudioStream: true, Playable: false},
			wantMsg: "content is not playable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := GateError(tc.basic, tc.stream)
			require.NotNil(t, err)
			assert.Equal(t, fault.KindValidation, err.Kind)
			assert.True(t, err.ClientFault)
			assert.False(t, err.Retryable)
			assert.Equal(t, tc.wantMsg, err.Message)
		})
	}
}

func TestGateErrorGenericRejection(t *testing.T) {
	basic := BasicResult{Valid: false, ContainerFormat: "webm", VideoCodec: "av1", AudioCodec: "vorbis"}
	stream := StreamResult{HasVideoStream: true, HasAudioStream: true, Playable: true}

	err := GateError(basic, stream)
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "unsupported content")
	assert.Contains(t, err.Message, "webm")
}

func TestGateErrorNilWhenAccepted(t *testing.T) {
	stream := StreamResult{HasVideoStream: true, HasAudioStream: true, Playable: true}

	assert.True(t, Accepted(BasicResult{Valid: true}, stream))
	assert.Nil(t, GateError(BasicResult{Valid: true}, stream))
}
