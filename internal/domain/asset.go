package domain

import "time"

// AssetType enumerates the generatable asset categories.
type AssetType string

const (
	AssetTypeCharacter AssetType = "character"
	AssetTypeTileset   AssetType = "tileset"
	AssetTypeObject    AssetType = "object"
	AssetTypeMap       AssetType = "map"
)

// KnownAssetType reports whether t is one of the supported asset categories.
func KnownAssetType(t AssetType) bool {
	switch t {
	case AssetTypeCharacter, AssetTypeTileset, AssetTypeObject, AssetTypeMap:
		return true
	}
	return false
}

// AssetStatus enumerates the persisted lifecycle states of a generation record.
// Records move PENDING -> PROCESSING -> COMPLETED|FAILED; a terminal status is
// never rewritten.
type AssetStatus string

const (
	AssetStatusPending    AssetStatus = "PENDING"
	AssetStatusProcessing AssetStatus = "PROCESSING"
	AssetStatusCompleted  AssetStatus = "COMPLETED"
	AssetStatusFailed     AssetStatus = "FAILED"
)

// GenerationRequest captures the caller's inputs for one asset. Immutable once
// accepted by the pipeline.
type GenerationRequest struct {
	Type          AssetType
	Name          string
	Prompt        string
	WorkflowKey   string
	Seed          int64
	Width         int
	Height        int
	UseChibiStyle bool
	UseControlNet bool
}

// GeneratedAssetMetadata is the coordinator's output and the sole contract
// with the persistence layer.
type GeneratedAssetMetadata struct {
	FilePath      string
	ThumbnailPath string
	FileSize      int64
	Width         int
	Height        int
	FrameWidth    int
	FrameHeight   int
	Columns       int
	Rows          int
	Seed          int64
	ComfyJobIDs   []string
	Workflow      string
	GeneratedAt   time.Time
	Elapsed       time.Duration
}

// AssetRecord mirrors a row of the generated_assets table.
type AssetRecord struct {
	ID            string
	Type          AssetType
	Name          string
	Prompt        string
	Workflow      string
	Status        AssetStatus
	BatchID       string
	FilePath      string
	ThumbnailPath string
	FileSize      int64
	Width         int
	Height        int
	Seed          int64
	ComfyJobID    string
	ErrorDetail   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AssetFilter narrows List queries.
type AssetFilter struct {
	Type    AssetType
	Status  AssetStatus
	BatchID string
	Limit   int
	Offset  int
}

// BatchStatus aggregates the persisted state of one batch submission.
type BatchStatus struct {
	BatchID   string
	Total     int
	Completed int
	Failed    int
	Pending   int
	Items     []AssetRecord
}
