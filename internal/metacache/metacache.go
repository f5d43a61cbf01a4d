// Package metacache persists one durable state record per (userId, assetId)
// pair. Conditional creation of that record is the pipeline's only
// deduplication primitive against redelivered ingestion events; everything
// else is last-writer-wins by design.
package metacache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/your-org/mediaprep/internal/fault"
	"github.com/your-org/mediaprep/internal/gop"
)

// Stage names one progress flag on the asset record.
type Stage string

const (
	StageUpload       Stage = "upload"
	StageValidation   Stage = "validation"
	StageMetadata     Stage = "metadata"
	StageGopCreation  Stage = "gopCreation"
	StageTranscoding  Stage = "transcoding"
	StageCompletion   Stage = "completion"
	StageDistribution Stage = "distribution"
)

var stageColumns = map[Stage]string{
	StageUpload:       "progress_upload",
	StageValidation:   "progress_validation",
	StageMetadata:     "progress_metadata",
	StageGopCreation:  "progress_gop_creation",
	StageTranscoding:  "progress_transcoding",
	StageCompletion:   "progress_completion",
	StageDistribution: "progress_distribution",
}

// Path names one of the five writable metadata sub-trees.
type Path string

const (
	PathValidationBasic  Path = "validation.basic"
	PathValidationStream Path = "validation.stream"
	PathTechnical        Path = "metadata.technical"
	PathQuality          Path = "metadata.quality"
	PathContent          Path = "metadata.content"
)

var pathColumns = map[Path]string{
	PathValidationBasic:  "validation_basic",
	PathValidationStream: "validation_stream",
	PathTechnical:        "meta_technical",
	PathQuality:          "meta_quality",
	PathContent:          "meta_content",
}

// GopState is the segment bookkeeping persisted after segmentation.
type GopState struct {
	TotalCount     int           `json:"totalCount"`
	CompletedCount int           `json:"completedCount"`
	Segments       []gop.Segment `json:"segments"`
}

// AssetRecord is the durable per-asset state row.
type AssetRecord struct {
	UserID             string    `gorm:"primaryKey;size:255"`
	AssetID            string    `gorm:"primaryKey;size:255"`
	CreatedAt          time.Time `gorm:"autoCreateTime:false"`
	HasCriticalFailure bool

	ProgressUpload       bool
	ProgressValidation   bool
	ProgressMetadata     bool
	ProgressGopCreation  bool
	ProgressTranscoding  bool
	ProgressCompletion   bool
	ProgressDistribution bool
	ProgressUpdatedAt    time.Time

	ValidationBasic  datatypes.JSON `gorm:"type:jsonb"`
	ValidationStream datatypes.JSON `gorm:"type:jsonb"`
	MetaTechnical    datatypes.JSON `gorm:"type:jsonb"`
	MetaQuality      datatypes.JSON `gorm:"type:jsonb"`
	MetaContent      datatypes.JSON `gorm:"type:jsonb"`
	Gops             datatypes.JSON `gorm:"type:jsonb"`
}

func (AssetRecord) TableName() string {
	return "asset_records"
}

// Cache is the per-asset state store the orchestrator depends on.
type Cache interface {
	InitializeRecord(ctx context.Context, userID, assetID string) (bool, error)
	UpdateProgress(ctx context.Context, userID, assetID string, stage Stage) error
	UpdateMetadata(ctx context.Context, userID, assetID string, path Path, data any) error
	UpdateGops(ctx context.Context, userID, assetID string, state GopState) error
	MarkCriticalFailure(ctx context.Context, userID, assetID string) error
}

// Store implements Cache on a gorm-managed postgres table.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the asset_records table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&AssetRecord{})
}

// InitializeRecord creates the record if and only if none exists for the
// key pair. It returns false without side effects when the record is
// already present. Call it exactly once per pipeline invocation, before
// any other write.
func (s *Store) InitializeRecord(ctx context.Context, userID, assetID string) (bool, error) {
	now := time.Now().UTC()
	record := AssetRecord{
		UserID:            userID,
		AssetID:           assetID,
		CreatedAt:         now,
		ProgressUpdatedAt: now,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, fault.Storage("initialize asset record", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// UpdateProgress sets one stage flag plus the shared progress timestamp.
// No ordering between stages is enforced at this layer.
func (s *Store) UpdateProgress(ctx context.Context, userID, assetID string, stage Stage) error {
	column, ok := stageColumns[stage]
	if !ok {
		return fmt.Errorf("unknown progress stage %q", stage)
	}

	result := s.db.WithContext(ctx).
		Model(&AssetRecord{}).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		Updates(map[string]any{
			column:                true,
			"progress_updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fault.Storage(fmt.Sprintf("update progress %s", stage), result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.Storage(fmt.Sprintf("update progress %s", stage),
			fmt.Errorf("no record for %s/%s", userID, assetID))
	}
	return nil
}

// UpdateMetadata replaces the whole sub-tree at one of the five fixed
// metadata paths. Calls do not merge: each write fully overwrites its path.
func (s *Store) UpdateMetadata(ctx context.Context, userID, assetID string, path Path, data any) error {
	column, ok := pathColumns[path]
	if !ok {
		return fmt.Errorf("unknown metadata path %q", path)
	}

	payload, err := marshalValue(data)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", path, err)
	}

	result := s.db.WithContext(ctx).
		Model(&AssetRecord{}).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		Update(column, datatypes.JSON(payload))
	if result.Error != nil {
		return fault.Storage(fmt.Sprintf("update metadata %s", path), result.Error)
	}
	return nil
}

// UpdateGops persists the segment bookkeeping.
func (s *Store) UpdateGops(ctx context.Context, userID, assetID string, state GopState) error {
	payload, err := marshalValue(state)
	if err != nil {
		return fmt.Errorf("encode gop state: %w", err)
	}

	result := s.db.WithContext(ctx).
		Model(&AssetRecord{}).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		Update("gops", datatypes.JSON(payload))
	if result.Error != nil {
		return fault.Storage("update gop state", result.Error)
	}
	return nil
}

// MarkCriticalFailure sets the terminal abort sentinel on the record.
func (s *Store) MarkCriticalFailure(ctx context.Context, userID, assetID string) error {
	result := s.db.WithContext(ctx).
		Model(&AssetRecord{}).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		Update("has_critical_failure", true)
	if result.Error != nil {
		return fault.Storage("mark critical failure", result.Error)
	}
	return nil
}

// marshalValue converts a structured value to its stored representation:
// absent pointers become JSON null, booleans and numbers keep their type,
// nested structs become nested objects, and anything without a native JSON
// shape is stored as its string form.
func marshalValue(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		raw, err = json.Marshal(fmt.Sprint(data))
		if err != nil {
			return nil, err
		}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return json.Marshal(normalize(decoded))
}

func normalize(value any) any {
	switch typed := value.(type) {
	case nil, bool, float64, string:
		return typed
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalize(item)
		}
		return out
	default:
		return fmt.Sprint(typed)
	}
}
