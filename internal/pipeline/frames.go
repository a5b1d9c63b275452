package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"spriteforge/internal/pose"
	"spriteforge/internal/sprite"
	"spriteforge/internal/workflow"
)

// frameResult settles one cell of the walk-cycle grid. Results are indexed
// row-major so direction rows land in sheet order: down, left, right, up.
type frameResult struct {
	jobID string
	png   []byte
	err   error
}

// frameParams carries the per-sheet inputs shared by all 32 frame jobs.
type frameParams struct {
	template *workflow.Template
	prompt   string
	negative string
	baseSeed int64
	spec     AssetSpec
	usePose  bool
}

// generateFrames fans the 32 frame jobs out across a bounded worker group.
// Every frame settles before the function returns; a failed frame never
// cancels its siblings, so one aborted sampler does not waste the other 31
// jobs already queued.
func (c *Coordinator) generateFrames(ctx context.Context, p frameParams) ([]frameResult, error) {
	total := p.spec.FrameCount()
	results := make([]frameResult, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.frameConcurrency)
	for row, direction := range pose.Directions {
		for frame := 0; frame < pose.FramesPerDirection; frame++ {
			idx := row*pose.FramesPerDirection + frame
			direction, frame := direction, frame
			g.Go(func() error {
				results[idx] = c.generateFrame(gctx, p, direction, frame, idx)
				// Settle every frame; errors are aggregated by the caller.
				return nil
			})
		}
	}
	_ = g.Wait()

	var failed int
	var firstErr error
	for _, res := range results {
		if res.err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.err
			}
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d frames failed, first: %w", failed, total, firstErr)
	}
	return results, nil
}

func (c *Coordinator) generateFrame(ctx context.Context, p frameParams, direction string, frame, idx int) frameResult {
	inst, err := p.template.Instantiate()
	if err != nil {
		return frameResult{err: err}
	}
	if err := inst.SetPrompt(FramePrompt(p.prompt, direction, frame)); err != nil {
		return frameResult{err: err}
	}
	if err := inst.SetNegativePrompt(p.negative); err != nil {
		return frameResult{err: err}
	}
	if err := inst.SetSeed(FrameSeed(p.baseSeed, idx)); err != nil {
		return frameResult{err: err}
	}
	if err := inst.SetSize(p.spec.FrameWidth, p.spec.FrameHeight); err != nil {
		return frameResult{err: err}
	}
	if p.usePose {
		if err := inst.SetPoseImage(pose.ReferenceFor(direction, frame)); err != nil {
			return frameResult{err: err}
		}
	}

	jobID, err := c.client.Submit(ctx, inst.Graph())
	if err != nil {
		return frameResult{err: fmt.Errorf("frame %s/%d: %w", direction, frame, err)}
	}
	entry, err := c.client.WaitForCompletion(ctx, jobID, c.singleDeadline)
	if err != nil {
		return frameResult{jobID: jobID, err: fmt.Errorf("frame %s/%d: %w", direction, frame, err)}
	}
	images := entry.Images()
	if len(images) == 0 {
		return frameResult{jobID: jobID, err: fmt.Errorf("frame %s/%d: job %s produced no images", direction, frame, jobID)}
	}
	data, err := c.client.FetchImage(ctx, images[0])
	if err != nil {
		return frameResult{jobID: jobID, err: fmt.Errorf("frame %s/%d: %w", direction, frame, err)}
	}
	cut, err := sprite.RemoveBackground(data)
	if err != nil {
		// A frame that decodes badly enough to defeat the cutout still
		// composes; keep the original bytes.
		c.logger.Warn().Err(err).Str("direction", direction).Int("frame", frame).Msg("pipeline: background removal failed, keeping original")
		cut = data
	}
	return frameResult{jobID: jobID, png: cut}
}
