package workflow

import (
	"fmt"

	"spriteforge/internal/comfy"
	"spriteforge/internal/domain"
)

// Slot names a node input inside a template graph. Slot paths live only in
// the template definition; call sites use the named setters below.
const (
	SlotPrompt         = "prompt"
	SlotNegativePrompt = "negative_prompt"
	SlotSeed           = "seed"
	SlotWidth          = "width"
	SlotHeight         = "height"
	SlotSteps          = "steps"
	SlotCFG            = "cfg"
	SlotSamplerName    = "sampler_name"
	SlotScheduler      = "scheduler"
	SlotPoseImage      = "pose_image"
)

// Slot points at one input field of one node.
type Slot struct {
	Node  string `json:"node"`
	Field string `json:"field"`
}

// Meta describes a template: identity plus the slot map that parameter
// injection operates on.
type Meta struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	AssetType   string          `json:"asset_type"`
	Description string          `json:"description"`
	Slots       map[string]Slot `json:"slots"`
}

// Template is an immutable parameterized job-graph description. Each
// submission instantiates a deep clone and fills its slots.
type Template struct {
	Meta  Meta
	Graph comfy.JobGraph
}

// HasSlot reports whether the template declares the named slot.
func (t *Template) HasSlot(name string) bool {
	_, ok := t.Meta.Slots[name]
	return ok
}

// Instantiate deep-clones the graph for parameter injection.
func (t *Template) Instantiate() (*Instance, error) {
	graph, err := t.Graph.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone template %q: %w", t.Meta.Name, err)
	}
	return &Instance{name: t.Meta.Name, graph: graph, slots: t.Meta.Slots}, nil
}

// Instance is one mutable clone of a template graph.
type Instance struct {
	name  string
	graph comfy.JobGraph
	slots map[string]Slot
}

// Graph returns the underlying job graph for submission.
func (in *Instance) Graph() comfy.JobGraph {
	return in.graph
}

// SetPrompt injects the positive prompt text.
func (in *Instance) SetPrompt(text string) error {
	return in.set(SlotPrompt, text)
}

// SetNegativePrompt injects the negative prompt text.
func (in *Instance) SetNegativePrompt(text string) error {
	return in.set(SlotNegativePrompt, text)
}

// SetSeed injects the sampler seed.
func (in *Instance) SetSeed(seed int64) error {
	return in.set(SlotSeed, seed)
}

// SetSize injects the latent canvas dimensions.
func (in *Instance) SetSize(width, height int) error {
	if err := in.set(SlotWidth, width); err != nil {
		return err
	}
	return in.set(SlotHeight, height)
}

// SetPoseImage points the pose-loader node at an uploaded pose reference.
func (in *Instance) SetPoseImage(remotePath string) error {
	return in.set(SlotPoseImage, remotePath)
}

// SetSampler overrides the sampler tuning slots when the template declares
// them; templates without sampler slots keep their baked-in values.
func (in *Instance) SetSampler(steps int, cfg float64, sampler, scheduler string) error {
	pairs := []struct {
		slot  string
		value any
	}{
		{SlotSteps, steps},
		{SlotCFG, cfg},
		{SlotSamplerName, sampler},
		{SlotScheduler, scheduler},
	}
	for _, p := range pairs {
		if _, ok := in.slots[p.slot]; !ok {
			continue
		}
		if err := in.set(p.slot, p.value); err != nil {
			return err
		}
	}
	return nil
}

func (in *Instance) set(slotName string, value any) error {
	slot, ok := in.slots[slotName]
	if !ok {
		return fmt.Errorf("%w: template %q declares no %q slot", domain.ErrInvalidSlot, in.name, slotName)
	}
	node, ok := in.graph[slot.Node]
	if !ok {
		return fmt.Errorf("%w: template %q slot %q points at missing node %q", domain.ErrInvalidSlot, in.name, slotName, slot.Node)
	}
	if node.Inputs == nil {
		return fmt.Errorf("%w: template %q node %q has no inputs", domain.ErrInvalidSlot, in.name, slot.Node)
	}
	node.Inputs[slot.Field] = value
	return nil
}
