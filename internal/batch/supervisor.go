package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"spriteforge/internal/domain"
	"spriteforge/internal/infra"
)

// settleTimeout bounds the terminal status write, which runs on its own
// context so a run that dies at the dispatch deadline still settles.
const settleTimeout = 30 * time.Second

// Processor runs one generation request to completion.
type Processor interface {
	Process(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedAssetMetadata, error)
}

// Supervisor accepts generation requests, persists their lifecycle, and runs
// them asynchronously. Submission returns as soon as records are PENDING;
// callers poll the persisted status.
type Supervisor struct {
	repo      domain.AssetRepository
	processor Processor
	logger    infra.Logger
	maxBatch  int

	// dispatchTimeout bounds a detached generation run.
	dispatchTimeout time.Duration

	wg sync.WaitGroup
}

func NewSupervisor(repo domain.AssetRepository, processor Processor, logger infra.Logger, maxBatch int) *Supervisor {
	if maxBatch <= 0 {
		maxBatch = 10
	}
	return &Supervisor{
		repo:            repo,
		processor:       processor,
		logger:          logger,
		maxBatch:        maxBatch,
		dispatchTimeout: 15 * time.Minute,
	}
}

// Submit accepts one request: a record is created PENDING and the run is
// detached. The returned id is immediately pollable.
func (s *Supervisor) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	rec := newRecord(req, "")
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("batch: create record: %w", err)
	}
	s.dispatch(rec.ID, req)
	return rec.ID, nil
}

// SubmitBatch accepts up to maxBatch requests under one batch id. All
// records are created before any run starts, so a partially visible batch
// never exists.
func (s *Supervisor) SubmitBatch(ctx context.Context, reqs []domain.GenerationRequest) (string, []string, error) {
	if len(reqs) == 0 {
		return "", nil, fmt.Errorf("%w: empty batch", domain.ErrValidation)
	}
	if len(reqs) > s.maxBatch {
		return "", nil, fmt.Errorf("%w: %d items, limit %d", domain.ErrBatchTooLarge, len(reqs), s.maxBatch)
	}

	batchID := "batch-" + uuid.NewString()
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		rec := newRecord(req, batchID)
		if err := s.repo.Create(ctx, rec); err != nil {
			return "", nil, fmt.Errorf("batch: create record: %w", err)
		}
		ids = append(ids, rec.ID)
	}
	for i, req := range reqs {
		s.dispatch(ids[i], req)
	}
	s.logger.Info().Str("batch_id", batchID).Int("items", len(ids)).Msg("batch: accepted")
	return batchID, ids, nil
}

// Status aggregates the persisted state of a batch. It reads only the
// repository, so it reflects exactly what has been committed.
func (s *Supervisor) Status(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	items, err := s.repo.List(ctx, domain.AssetFilter{BatchID: batchID})
	if err != nil {
		return nil, fmt.Errorf("batch: list: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	status := &domain.BatchStatus{BatchID: batchID, Total: len(items), Items: items}
	for _, item := range items {
		switch item.Status {
		case domain.AssetStatusCompleted:
			status.Completed++
		case domain.AssetStatusFailed:
			status.Failed++
		default:
			status.Pending++
		}
	}
	return status, nil
}

// Wait blocks until all detached runs settle. Used by shutdown and tests.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// dispatch runs one request on a detached context and writes exactly one
// terminal status for the record.
func (s *Supervisor) dispatch(id string, req domain.GenerationRequest) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		defer cancel()

		var settled sync.Once
		fail := func(detail string) {
			settled.Do(func() {
				wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
				defer wcancel()
				if err := s.repo.MarkFailed(wctx, id, detail); err != nil {
					s.logger.Error().Err(err).Str("id", id).Msg("batch: mark failed")
				}
			})
		}

		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Str("id", id).Interface("panic", r).Msg("batch: run panicked")
				fail(fmt.Sprintf("internal: %v", r))
			}
		}()

		if err := s.repo.MarkProcessing(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("id", id).Msg("batch: mark processing")
		}
		meta, err := s.processor.Process(ctx, req)
		if err != nil {
			var genErr *domain.GenerationError
			detail := err.Error()
			if errors.As(err, &genErr) {
				detail = genErr.Reason + ": " + genErr.Detail
			}
			s.logger.Error().Err(err).Str("id", id).Str("type", string(req.Type)).Msg("batch: generation failed")
			fail(detail)
			return
		}
		settled.Do(func() {
			wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
			defer wcancel()
			if err := s.repo.MarkCompleted(wctx, id, meta); err != nil {
				s.logger.Error().Err(err).Str("id", id).Msg("batch: mark completed")
			}
		})
	}()
}

func newRecord(req domain.GenerationRequest, batchID string) *domain.AssetRecord {
	now := time.Now()
	return &domain.AssetRecord{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Name:      req.Name,
		Prompt:    req.Prompt,
		Workflow:  req.WorkflowKey,
		Status:    domain.AssetStatusPending,
		BatchID:   batchID,
		Seed:      req.Seed,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
