package metacache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediaprep/internal/mediameta"
)

func TestStageColumnsCoverEveryStage(t *testing.T) {
	stages := []Stage{
		StageUpload, StageValidation, StageMetadata, StageGopCreation,
		StageTranscoding, StageCompletion, StageDistribution,
	}

	for _, stage := range stages {
		column, ok := stageColumns[stage]
		assert.True(t, ok, "stage %s has no column", stage)
		assert.NotEmpty(t, column)
	}
	assert.Len(t, stageColumns, len(stages))
}

func TestPathColumnsCoverEveryPath(t *testing.T) {
	paths := []Path{
		PathValidationBasic, PathValidationStream,
		PathTechnical, PathQuality, PathContent,
	}

	for _, path := range paths {
		column, ok := pathColumns[path]
		assert.True(t, ok, "path %s has no column", path)
		assert.NotEmpty(t, column)
	}
	assert.Len(t, pathColumns, len(paths))
}

func TestMarshalValueAbsentPointersBecomeNull(t *testing.T) {
	width := 1280
	tech := mediameta.Technical{
		Resolution: mediameta.Resolution{Width: &width},
	}

	payload, err := marshalValue(tech)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Nil(t, decoded["containerFormat"])
	assert.Nil(t, decoded["duration"])

	resolution, ok := decoded["resolution"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1280), resolution["width"])
	assert.Nil(t, resolution["height"])
}

func TestMarshalValuePreservesTypes(t *testing.T) {
	payload, err := marshalValue(map[string]any{
		"flag":   true,
		"count":  3,
		"ratio":  0.5,
		"label":  "segment",
		"nested": map[string]any{"inner": false},
		"list":   []any{1, "two", nil},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, true, decoded["flag"])
	assert.Equal(t, float64(3), decoded["count"])
	assert.Equal(t, 0.5, decoded["ratio"])
	assert.Equal(t, "segment", decoded["label"])

	nested, ok := decoded["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, nested["inner"])

	list, ok := decoded["list"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{float64(1), "two", nil}, list)
}

func TestGopStateRoundTrip(t *testing.T) {
	payload, err := marshalValue(GopState{TotalCount: 2, CompletedCount: 2})
	require.NoError(t, err)

	var decoded GopState
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, 2, decoded.TotalCount)
	assert.Equal(t, 2, decoded.CompletedCount)
}
