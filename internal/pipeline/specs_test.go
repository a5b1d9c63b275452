package pipeline

import (
	"strings"
	"testing"

	"spriteforge/internal/domain"
)

func TestSpecGeometry(t *testing.T) {
	char := SpecFor(domain.AssetTypeCharacter)
	if char.Width != 1024 || char.Height != 512 {
		t.Fatalf("character sheet = %dx%d, want 1024x512", char.Width, char.Height)
	}
	if char.FrameWidth != 128 || char.FrameHeight != 128 {
		t.Fatalf("character frame = %dx%d, want 128x128", char.FrameWidth, char.FrameHeight)
	}
	if char.FrameCount() != 32 {
		t.Fatalf("character frames = %d, want 32", char.FrameCount())
	}

	tileset := SpecFor(domain.AssetTypeTileset)
	if tileset.Width != 512 || tileset.Height != 448 {
		t.Fatalf("tileset = %dx%d, want 512x448", tileset.Width, tileset.Height)
	}
	if tileset.FrameCount() != 0 {
		t.Fatalf("tileset is a single-image category, FrameCount = %d", tileset.FrameCount())
	}
}

func TestResolveSeed(t *testing.T) {
	if got := ResolveSeed(1234); got != 1234 {
		t.Fatalf("in-range seed = %d, want 1234", got)
	}
	for _, requested := range []int64{0, -5, SeedMax + 1} {
		got := ResolveSeed(requested)
		if got < SeedMin || got > SeedMax {
			t.Fatalf("ResolveSeed(%d) = %d, out of range", requested, got)
		}
	}
}

func TestFrameSeedDeterministicAndInRange(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 32; i++ {
		a := FrameSeed(99, i)
		b := FrameSeed(99, i)
		if a != b {
			t.Fatalf("FrameSeed not deterministic for frame %d: %d vs %d", i, a, b)
		}
		if a < SeedMin || a > SeedMax {
			t.Fatalf("FrameSeed(99, %d) = %d, out of range", i, a)
		}
		seen[a] = true
	}
	if len(seen) != 32 {
		t.Fatalf("frame seeds collide: %d distinct of 32", len(seen))
	}
}

func TestFramePrompt(t *testing.T) {
	got := FramePrompt("a knight", "left", 2)
	if !strings.Contains(got, "facing left") || !strings.Contains(got, "frame 3 of 8") {
		t.Fatalf("FramePrompt = %q", got)
	}
}

func TestBuildPromptPrependsPrefix(t *testing.T) {
	got := BuildPrompt(domain.AssetTypeObject, "  a wooden barrel ")
	if !strings.HasPrefix(got, "pixel art game object sprite") {
		t.Fatalf("prompt missing category prefix: %q", got)
	}
	if !strings.HasSuffix(got, "a wooden barrel") {
		t.Fatalf("user prompt not trimmed and appended: %q", got)
	}
}

func TestSlugifyAndFilename(t *testing.T) {
	cases := map[string]string{
		"Forest Knight!":   "forest-knight",
		"  --Weird__Name ": "weird-name",
		"":                 "asset",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}

	name := Filename(domain.AssetTypeCharacter, "Forest Knight", 1700000000000)
	if !strings.HasPrefix(name, "character_forest-knight_") || !strings.HasSuffix(name, ".png") {
		t.Fatalf("Filename = %q", name)
	}
}
