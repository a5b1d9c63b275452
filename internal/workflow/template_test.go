package workflow

import (
	"errors"
	"testing"

	"spriteforge/internal/domain"
)

func TestRegistryLoadsAllTemplates(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	want := []string{
		KeyCharacter, KeyCharacterFrame, KeyCharacterFrameOpen,
		KeyTileset, KeyTilesetSeamless, KeyObject, KeyMap,
	}
	for _, name := range want {
		if _, err := reg.Get(name); err != nil {
			t.Errorf("Get(%q): %v", name, err)
		}
	}
	if got := len(reg.Names()); got != len(want) {
		t.Fatalf("template count = %d, want %d (%v)", got, len(want), reg.Names())
	}
}

func TestRegistryResolve(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tpl, err := reg.Resolve(domain.AssetTypeTileset, "")
	if err != nil {
		t.Fatalf("Resolve default: %v", err)
	}
	if tpl.Meta.Name != KeyTileset {
		t.Fatalf("default template = %q, want %q", tpl.Meta.Name, KeyTileset)
	}

	tpl, err = reg.Resolve(domain.AssetTypeTileset, KeyTilesetSeamless)
	if err != nil {
		t.Fatalf("Resolve explicit: %v", err)
	}
	if tpl.Meta.Name != KeyTilesetSeamless {
		t.Fatalf("explicit template = %q, want %q", tpl.Meta.Name, KeyTilesetSeamless)
	}

	if _, err := reg.Resolve(domain.AssetTypeTileset, "no-such-workflow"); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("unknown key error = %v, want ErrTemplateNotFound", err)
	}
}

func TestInstantiateClonesGraph(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	tpl, err := reg.Get(KeyObject)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	inst, err := tpl.Instantiate()
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if err := inst.SetPrompt("a wooden barrel"); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	if err := inst.SetSeed(42); err != nil {
		t.Fatalf("SetSeed: %v", err)
	}
	if err := inst.SetSize(256, 256); err != nil {
		t.Fatalf("SetSize: %v", err)
	}

	slot := tpl.Meta.Slots[SlotPrompt]
	if got := tpl.Graph[slot.Node].Inputs[slot.Field]; got != "" {
		t.Fatalf("original prompt mutated to %v", got)
	}
	if got := inst.Graph()[slot.Node].Inputs[slot.Field]; got != "a wooden barrel" {
		t.Fatalf("instance prompt = %v, want injected text", got)
	}

	second, err := tpl.Instantiate()
	if err != nil {
		t.Fatalf("second Instantiate: %v", err)
	}
	if got := second.Graph()[slot.Node].Inputs[slot.Field]; got != "" {
		t.Fatalf("second instance saw first instance's prompt: %v", got)
	}
}

func TestSetPoseImageRequiresSlot(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	frame, err := reg.Get(KeyCharacterFrame)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !frame.HasSlot(SlotPoseImage) {
		t.Fatalf("character-frame should declare a pose_image slot")
	}
	inst, err := frame.Instantiate()
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if err := inst.SetPoseImage("sprite-poses/pose_down_0.png"); err != nil {
		t.Fatalf("SetPoseImage: %v", err)
	}

	basic, err := reg.Get(KeyCharacterFrameOpen)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if basic.HasSlot(SlotPoseImage) {
		t.Fatalf("basic frame template should not declare a pose_image slot")
	}
	inst, err = basic.Instantiate()
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if err := inst.SetPoseImage("sprite-poses/pose_down_0.png"); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Fatalf("SetPoseImage on basic template = %v, want ErrInvalidSlot", err)
	}
}

func TestParseTemplateRejectsDanglingSlot(t *testing.T) {
	raw := []byte(`{
		"_meta": {
			"name": "broken",
			"slots": {"prompt": {"node": "99", "field": "text"}}
		},
		"1": {"class_type": "CLIPTextEncode", "inputs": {"text": ""}}
	}`)
	if _, err := parseTemplate(raw); err == nil {
		t.Fatalf("expected error for slot pointing at missing node")
	}
}

func TestSetSamplerSkipsUndeclaredSlots(t *testing.T) {
	raw := []byte(`{
		"_meta": {
			"name": "minimal",
			"slots": {
				"prompt": {"node": "1", "field": "text"},
				"steps": {"node": "2", "field": "steps"}
			}
		},
		"1": {"class_type": "CLIPTextEncode", "inputs": {"text": ""}},
		"2": {"class_type": "KSampler", "inputs": {"steps": 20, "cfg": 7.0}}
	}`)
	tpl, err := parseTemplate(raw)
	if err != nil {
		t.Fatalf("parseTemplate: %v", err)
	}
	inst, err := tpl.Instantiate()
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if err := inst.SetSampler(30, 8.0, "euler", "normal"); err != nil {
		t.Fatalf("SetSampler: %v", err)
	}
	inputs := inst.Graph()["2"].Inputs
	if got := inputs["steps"]; got != 30 {
		t.Fatalf("steps = %v, want 30", got)
	}
	// cfg has no slot, so the baked-in value survives.
	if got := inputs["cfg"]; got != 7.0 {
		t.Fatalf("cfg = %v, want untouched 7.0", got)
	}
}
