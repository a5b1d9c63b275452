package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spriteforge/internal/capability"
	"spriteforge/internal/comfy"
	"spriteforge/internal/domain"
	"spriteforge/internal/infra"
	"spriteforge/internal/sprite"
	"spriteforge/internal/storage"
	"spriteforge/internal/workflow"
)

const (
	thumbnailWidth  = 192
	maxPromptLength = 500
	maxNameLength   = 100

	// Dimension overrides must stay inside the server's workable range and
	// on the 8px grid the latent space requires.
	minDimension = 64
	maxDimension = 2048
)

// ComputeClient is the slice of the job server client the coordinator uses.
type ComputeClient interface {
	Submit(ctx context.Context, graph comfy.JobGraph) (string, error)
	WaitForCompletion(ctx context.Context, promptID string, deadline time.Duration) (*comfy.HistoryEntry, error)
	FetchImage(ctx context.Context, img comfy.OutputImage) ([]byte, error)
}

// CapabilityChecker reports what the connected server can do.
type CapabilityChecker interface {
	Check(ctx context.Context) capability.Snapshot
}

// PoseProvider pushes the pose reference set server-side before guided runs.
type PoseProvider interface {
	EnsureUploaded(ctx context.Context) error
}

// Options wires a Coordinator.
type Options struct {
	Client           ComputeClient
	Registry         *workflow.Registry
	Capabilities     CapabilityChecker
	Poses            PoseProvider
	Store            storage.Store
	Logger           infra.Logger
	FrameConcurrency int
	SingleDeadline   time.Duration
	FramesDeadline   time.Duration
}

// Coordinator runs one generation request end to end: template resolution,
// job submission, frame fan-out for characters, composition, and storage.
// It is stateless across requests and safe for concurrent use.
type Coordinator struct {
	client           ComputeClient
	registry         *workflow.Registry
	caps             CapabilityChecker
	poses            PoseProvider
	store            storage.Store
	logger           infra.Logger
	frameConcurrency int
	singleDeadline   time.Duration
	framesDeadline   time.Duration
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.FrameConcurrency <= 0 {
		opts.FrameConcurrency = 8
	}
	if opts.SingleDeadline <= 0 {
		opts.SingleDeadline = 2 * time.Minute
	}
	if opts.FramesDeadline <= 0 {
		opts.FramesDeadline = 10 * time.Minute
	}
	return &Coordinator{
		client:           opts.Client,
		registry:         opts.Registry,
		caps:             opts.Capabilities,
		poses:            opts.Poses,
		store:            opts.Store,
		logger:           opts.Logger,
		frameConcurrency: opts.FrameConcurrency,
		singleDeadline:   opts.SingleDeadline,
		framesDeadline:   opts.FramesDeadline,
	}
}

// Process runs one request to completion. Failures come back as a single
// *domain.GenerationError carrying a stable reason tag.
func (c *Coordinator) Process(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedAssetMetadata, error) {
	started := time.Now()
	if err := ValidateRequest(req); err != nil {
		return nil, domain.NewGenerationError("validation", err)
	}

	var (
		meta *domain.GeneratedAssetMetadata
		err  error
	)
	if req.Type == domain.AssetTypeCharacter && req.WorkflowKey != workflow.KeyCharacter {
		meta, err = c.processCharacter(ctx, req)
	} else {
		meta, err = c.processSingle(ctx, req)
	}
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			return nil, genErr
		}
		return nil, domain.NewGenerationError(classify(err), err)
	}

	meta.GeneratedAt = started
	meta.Elapsed = time.Since(started)
	c.logger.Info().
		Str("type", string(req.Type)).
		Str("name", req.Name).
		Str("workflow", meta.Workflow).
		Int("jobs", len(meta.ComfyJobIDs)).
		Dur("elapsed", meta.Elapsed).
		Msg("pipeline: asset generated")
	return meta, nil
}

// ValidateRequest rejects malformed requests before any compute is spent.
func ValidateRequest(req domain.GenerationRequest) error {
	if !domain.KnownAssetType(req.Type) {
		return fmt.Errorf("%w: unknown asset type %q", domain.ErrValidation, req.Type)
	}
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(req.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", domain.ErrValidation, maxNameLength)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}
	if len(req.Prompt) > maxPromptLength {
		return fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrValidation, maxPromptLength)
	}
	if req.Seed != 0 && (req.Seed < SeedMin || req.Seed > SeedMax) {
		return fmt.Errorf("%w: seed out of range [%d, %d]", domain.ErrValidation, SeedMin, SeedMax)
	}
	if req.Width != 0 || req.Height != 0 {
		if req.Width <= 0 || req.Height <= 0 {
			return fmt.Errorf("%w: width and height must both be positive when set", domain.ErrValidation)
		}
		for _, dim := range []struct {
			name  string
			value int
		}{{"width", req.Width}, {"height", req.Height}} {
			if dim.value < minDimension || dim.value > maxDimension {
				return fmt.Errorf("%w: %s %d out of range [%d, %d]", domain.ErrValidation, dim.name, dim.value, minDimension, maxDimension)
			}
			if dim.value%8 != 0 {
				return fmt.Errorf("%w: %s %d is not a multiple of 8", domain.ErrValidation, dim.name, dim.value)
			}
		}
	}
	return nil
}

// processSingle drives the one-job path used by tilesets, objects, maps, and
// the unguided full-sheet character workflow.
func (c *Coordinator) processSingle(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedAssetMetadata, error) {
	spec := SpecFor(req.Type)
	width, height := spec.Width, spec.Height
	if req.Width > 0 && req.Height > 0 {
		width, height = req.Width, req.Height
	}

	tpl, err := c.registry.Resolve(req.Type, req.WorkflowKey)
	if err != nil {
		return nil, err
	}
	inst, err := tpl.Instantiate()
	if err != nil {
		return nil, err
	}
	seed := ResolveSeed(req.Seed)
	if err := inst.SetPrompt(BuildPrompt(req.Type, req.Prompt)); err != nil {
		return nil, err
	}
	if err := inst.SetNegativePrompt(NegativePrompt(req.Type)); err != nil {
		return nil, err
	}
	if err := inst.SetSeed(seed); err != nil {
		return nil, err
	}
	if err := inst.SetSize(width, height); err != nil {
		return nil, err
	}

	jobID, err := c.client.Submit(ctx, inst.Graph())
	if err != nil {
		return nil, err
	}
	entry, err := c.client.WaitForCompletion(ctx, jobID, c.singleDeadline)
	if err != nil {
		return nil, err
	}
	images := entry.Images()
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: job %s produced no images", domain.ErrRemoteExecution, jobID)
	}
	data, err := c.client.FetchImage(ctx, images[0])
	if err != nil {
		return nil, err
	}
	if req.Type == domain.AssetTypeObject {
		cut, err := sprite.RemoveBackground(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("pipeline: background removal failed, keeping original")
		} else {
			data = cut
		}
	}

	meta, err := c.storeAsset(ctx, req, data, seed)
	if err != nil {
		return nil, err
	}
	meta.Width, meta.Height = width, height
	meta.ComfyJobIDs = []string{jobID}
	meta.Workflow = tpl.Meta.Name
	return meta, nil
}

// processCharacter drives the 32-frame walk-cycle path: pose upload when
// guidance is on, frame fan-out, and sheet composition.
func (c *Coordinator) processCharacter(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedAssetMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.framesDeadline)
	defer cancel()

	spec := SpecFor(domain.AssetTypeCharacter)
	snapshot := c.caps.Check(ctx)
	usePose := req.UseControlNet && snapshot.ControlNetAvailable
	if req.UseControlNet && !usePose {
		c.logger.Warn().Msg("pipeline: pose guidance requested but unavailable, generating unguided")
	}
	if usePose {
		if err := c.poses.EnsureUploaded(ctx); err != nil {
			// Guidance is an enhancement; a failed pose upload downgrades
			// the run instead of failing it.
			c.logger.Warn().Err(err).Msg("pipeline: pose upload failed, generating unguided")
			usePose = false
		}
	}

	key := workflow.KeyCharacterFrame
	if !usePose {
		key = workflow.KeyCharacterFrameOpen
	}
	if req.WorkflowKey != "" {
		key = req.WorkflowKey
	}
	tpl, err := c.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if usePose && !tpl.HasSlot(workflow.SlotPoseImage) {
		usePose = false
	}

	seed := ResolveSeed(req.Seed)
	results, err := c.generateFrames(ctx, frameParams{
		template: tpl,
		prompt:   BuildPrompt(req.Type, req.Prompt),
		negative: NegativePrompt(req.Type),
		baseSeed: seed,
		spec:     spec,
		usePose:  usePose,
	})
	jobIDs := make([]string, 0, len(results))
	for _, res := range results {
		if res.jobID != "" {
			jobIDs = append(jobIDs, res.jobID)
		}
	}
	if err != nil {
		return nil, domain.NewGenerationError("frame_generation", err)
	}

	frames := make([][]byte, len(results))
	for i, res := range results {
		frames[i] = res.png
	}
	sheet, err := sprite.Compose(frames, spec.Columns, spec.Rows)
	if err != nil {
		return nil, domain.NewGenerationError("composition", err)
	}

	meta, err := c.storeAsset(ctx, req, sheet.PNG, seed)
	if err != nil {
		return nil, err
	}
	meta.Width, meta.Height = sheet.Width, sheet.Height
	meta.FrameWidth, meta.FrameHeight = sheet.FrameWidth, sheet.FrameHeight
	meta.Columns, meta.Rows = spec.Columns, spec.Rows
	meta.ComfyJobIDs = jobIDs
	meta.Workflow = tpl.Meta.Name
	return meta, nil
}

// storeAsset writes the artifact and its thumbnail and fills the storage
// fields of the metadata.
func (c *Coordinator) storeAsset(ctx context.Context, req domain.GenerationRequest, data []byte, seed int64) (*domain.GeneratedAssetMetadata, error) {
	name := Filename(req.Type, req.Name, time.Now().UnixMilli())
	filePath, err := c.store.Write(ctx, name, data)
	if err != nil {
		return nil, domain.NewGenerationError("storage", err)
	}
	meta := &domain.GeneratedAssetMetadata{
		FilePath: filePath,
		FileSize: int64(len(data)),
		Seed:     seed,
	}
	thumb, err := sprite.Thumbnail(data, thumbnailWidth)
	if err != nil {
		c.logger.Warn().Err(err).Msg("pipeline: thumbnail generation failed")
		return meta, nil
	}
	thumbPath, err := c.store.Write(ctx, "thumbs/"+name, thumb)
	if err != nil {
		c.logger.Warn().Err(err).Msg("pipeline: thumbnail write failed")
		return meta, nil
	}
	meta.ThumbnailPath = thumbPath
	return meta, nil
}

// classify maps sentinel errors to the stable reason tags persisted with
// failed records.
func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrTemplateNotFound), errors.Is(err, domain.ErrInvalidSlot):
		return "template"
	case errors.Is(err, domain.ErrSubmissionRejected):
		return "submission"
	case errors.Is(err, domain.ErrRemoteExecution):
		return "remote_execution"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrInconsistentFrameSize):
		return "composition"
	default:
		return "internal"
	}
}
