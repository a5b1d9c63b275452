package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"spriteforge/internal/domain"
	"spriteforge/internal/pipeline"
)

type generateRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	Prompt        string `json:"prompt"`
	Workflow      string `json:"workflow,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	UseChibiStyle bool   `json:"use_chibi_style,omitempty"`
	UseControlNet bool   `json:"use_controlnet,omitempty"`
}

func (g generateRequest) toDomain() domain.GenerationRequest {
	return domain.GenerationRequest{
		Type:          domain.AssetType(g.Type),
		Name:          g.Name,
		Prompt:        g.Prompt,
		WorkflowKey:   g.Workflow,
		Seed:          g.Seed,
		Width:         g.Width,
		Height:        g.Height,
		UseChibiStyle: g.UseChibiStyle,
		UseControlNet: g.UseControlNet,
	}
}

type assetResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	Prompt        string    `json:"prompt"`
	Workflow      string    `json:"workflow,omitempty"`
	Status        string    `json:"status"`
	BatchID       string    `json:"batch_id,omitempty"`
	FilePath      string    `json:"file_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	FileSize      int64     `json:"file_size,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	Seed          int64     `json:"seed,omitempty"`
	ComfyJobID    string    `json:"comfy_job_id,omitempty"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toAssetResponse(rec domain.AssetRecord) assetResponse {
	return assetResponse{
		ID:            rec.ID,
		Type:          string(rec.Type),
		Name:          rec.Name,
		Prompt:        rec.Prompt,
		Workflow:      rec.Workflow,
		Status:        string(rec.Status),
		BatchID:       rec.BatchID,
		FilePath:      rec.FilePath,
		ThumbnailPath: rec.ThumbnailPath,
		FileSize:      rec.FileSize,
		Width:         rec.Width,
		Height:        rec.Height,
		Seed:          rec.Seed,
		ComfyJobID:    rec.ComfyJobID,
		ErrorDetail:   rec.ErrorDetail,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

// Generate accepts one generation request and returns 202 with the record
// id; the run continues in the background.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	dreq := req.toDomain()
	if err := pipeline.ValidateRequest(dreq); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := a.Supervisor.Submit(r.Context(), dreq)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": string(domain.AssetStatusPending),
	})
}

type batchRequest struct {
	Items []generateRequest `json:"items"`
}

// GenerateBatch accepts up to the configured batch limit of requests under
// one batch id.
func (a *App) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	reqs := make([]domain.GenerationRequest, len(req.Items))
	for i, item := range req.Items {
		reqs[i] = item.toDomain()
		if err := pipeline.ValidateRequest(reqs[i]); err != nil {
			a.writeError(w, r, fmt.Errorf("item %d: %w", i, err))
			return
		}
	}
	batchID, ids, err := a.Supervisor.SubmitBatch(r.Context(), reqs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"ids":      ids,
	})
}

// BatchStatus reports the aggregated persisted state of one batch.
func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	status, err := a.Supervisor.Status(r.Context(), batchID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := make([]assetResponse, len(status.Items))
	for i, item := range status.Items {
		items[i] = toAssetResponse(item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id":  status.BatchID,
		"total":     status.Total,
		"completed": status.Completed,
		"failed":    status.Failed,
		"pending":   status.Pending,
		"items":     items,
	})
}

// GetAsset returns one record by id.
func (a *App) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "assetID")
	rec, err := a.Repo.GetByID(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(*rec))
}

// ListAssets returns records filtered by type, status, and batch.
func (a *App) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AssetFilter{
		Type:    domain.AssetType(q.Get("type")),
		Status:  domain.AssetStatus(q.Get("status")),
		BatchID: q.Get("batch_id"),
	}
	if filter.Type != "" && !domain.KnownAssetType(filter.Type) {
		a.writeError(w, r, fmt.Errorf("%w: unknown asset type %q", domain.ErrValidation, filter.Type))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Offset = n
		}
	}
	records, err := a.Repo.List(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := make([]assetResponse, len(records))
	for i, rec := range records {
		items[i] = toAssetResponse(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
