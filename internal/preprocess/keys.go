package preprocess

import (
	"fmt"
	"strings"

	"github.com/your-org/mediaprep/internal/fault"
)

// Owner identifies who an ingested object belongs to and which asset it
// becomes.
type Owner struct {
	UserID  string
	AssetID string
}

// ParseKey extracts the owner from an ingested object key. Keys follow a
// fixed 4-segment grammar, "userId/<partition>/<partition>/hash": the
// first segment is the user, the last is the asset identifier. Any other
// segment count is a client-fault format error.
func ParseKey(key string) (Owner, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		return Owner{}, fault.Validation(fmt.Sprintf("invalid object key format: %q", key))
	}
	for _, part := range parts {
		if part == "" {
			return Owner{}, fault.Validation(fmt.Sprintf("invalid object key format: %q", key))
		}
	}

	return Owner{UserID: parts[0], AssetID: parts[3]}, nil
}

// SegmentKey computes the asset-scoped destination key for one uploaded
// GOP segment.
func SegmentKey(owner Owner, filename string) string {
	return fmt.Sprintf("%s/%s/%s", owner.UserID, owner.AssetID, filename)
}

// AssetPrefix is the asset storage prefix all of an asset's derived
// objects share.
func AssetPrefix(owner Owner) string {
	return fmt.Sprintf("%s/%s/", owner.UserID, owner.AssetID)
}
