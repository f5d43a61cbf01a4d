package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediaprep/internal/fault"
)

func TestParseKeyExtractsOwner(t *testing.T) {
	owner, err := ParseKey("user1/2024/05/abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "user1", owner.UserID)
	assert.Equal(t, "abcd1234", owner.AssetID)
}

func TestParseKeyRejectsWrongSegmentCount(t *testing.T) {
	keys := []string{
		"",
		"user1",
		"user1/abcd1234",
		"user1/2024/abcd1234",
		"user1/2024/05/06/abcd1234",
		"user1/2024/05/abcd1234/",
		"/2024/05/abcd1234",
	}

	for _, key := range keys {
		_, err := ParseKey(key)
		require.Error(t, err, "key %q should be rejected", key)
		assert.Equal(t, fault.KindValidation, fault.KindOf(err))
		assert.False(t, fault.Retryable(err))
	}
}

func TestSegmentKeyAndAssetPrefix(t *testing.T) {
	owner := Owner{UserID: "user1", AssetID: "abcd1234"}

	assert.Equal(t, "user1/abcd1234/segment_000.mp4", SegmentKey(owner, "segment_000.mp4"))
	assert.Equal(t, "user1/abcd1234/", AssetPrefix(owner))
}
