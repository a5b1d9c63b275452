package repo

import (
	"context"
	"fmt"
	"time"

	"spriteforge/internal/domain"
	"spriteforge/internal/infra"
	"spriteforge/internal/sqlinline"
)

// AssetRepo is the pgx-backed implementation of domain.AssetRepository.
type AssetRepo struct {
	db infra.SQLExecutor
}

func NewAssetRepo(db infra.SQLExecutor) *AssetRepo {
	return &AssetRepo{db: db}
}

func (r *AssetRepo) Create(ctx context.Context, rec *domain.AssetRecord) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertGeneratedAsset,
		rec.ID, string(rec.Type), rec.Name, rec.Prompt, rec.Workflow,
		string(rec.Status), rec.BatchID, rec.Seed,
	)
	if err != nil {
		return fmt.Errorf("asset repo: insert: %w", err)
	}
	return nil
}

func (r *AssetRepo) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, sqlinline.QMarkAssetProcessing, id)
	if err != nil {
		return fmt.Errorf("asset repo: mark processing: %w", err)
	}
	return nil
}

func (r *AssetRepo) MarkCompleted(ctx context.Context, id string, meta *domain.GeneratedAssetMetadata) error {
	jobID := ""
	if len(meta.ComfyJobIDs) > 0 {
		jobID = meta.ComfyJobIDs[0]
	}
	_, err := r.db.Exec(ctx, sqlinline.QMarkAssetCompleted,
		id, meta.FilePath, meta.ThumbnailPath, meta.FileSize,
		meta.Width, meta.Height, meta.Seed, jobID, meta.Workflow,
	)
	if err != nil {
		return fmt.Errorf("asset repo: mark completed: %w", err)
	}
	return nil
}

func (r *AssetRepo) MarkFailed(ctx context.Context, id string, detail string) error {
	_, err := r.db.Exec(ctx, sqlinline.QMarkAssetFailed, id, detail)
	if err != nil {
		return fmt.Errorf("asset repo: mark failed: %w", err)
	}
	return nil
}

func (r *AssetRepo) GetByID(ctx context.Context, id string) (*domain.AssetRecord, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectAssetByID, id)
	rec, err := scanAsset(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("asset repo: get: %w", err)
	}
	return rec, nil
}

func (r *AssetRepo) List(ctx context.Context, filter domain.AssetFilter) ([]domain.AssetRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, sqlinline.QListAssets,
		string(filter.Type), string(filter.Status), filter.BatchID, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("asset repo: list: %w", err)
	}
	defer rows.Close()

	var out []domain.AssetRecord
	for rows.Next() {
		rec, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("asset repo: scan: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("asset repo: rows: %w", err)
	}
	return out, nil
}

func (r *AssetRepo) ReclaimStale(ctx context.Context, olderThan time.Duration, detail string) (int, error) {
	interval := fmt.Sprintf("%d seconds", int64(olderThan.Seconds()))
	tag, err := r.db.Exec(ctx, sqlinline.QReclaimStaleAssets, interval, detail)
	if err != nil {
		return 0, fmt.Errorf("asset repo: reclaim stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*domain.AssetRecord, error) {
	var rec domain.AssetRecord
	var assetType, status string
	err := row.Scan(
		&rec.ID, &assetType, &rec.Name, &rec.Prompt, &rec.Workflow, &status,
		&rec.BatchID, &rec.FilePath, &rec.ThumbnailPath, &rec.FileSize,
		&rec.Width, &rec.Height, &rec.Seed, &rec.ComfyJobID, &rec.ErrorDetail,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Type = domain.AssetType(assetType)
	rec.Status = domain.AssetStatus(status)
	return &rec, nil
}

var _ domain.AssetRepository = (*AssetRepo)(nil)
