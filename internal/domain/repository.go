package domain

import (
	"context"
	"time"
)

// AssetRepository defines persistence for generation records. Terminal
// statuses (COMPLETED/FAILED) are written at most once per record; Mark
// operations on an already terminal record are no-ops.
type AssetRepository interface {
	Create(ctx context.Context, rec *AssetRecord) error
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, meta *GeneratedAssetMetadata) error
	MarkFailed(ctx context.Context, id string, detail string) error
	GetByID(ctx context.Context, id string) (*AssetRecord, error)
	List(ctx context.Context, filter AssetFilter) ([]AssetRecord, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration, detail string) (int, error)
}
