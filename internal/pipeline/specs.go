package pipeline

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"spriteforge/internal/domain"
)

// Seed bounds match the 32-bit sampler seed the server accepts.
const (
	SeedMin = 1
	SeedMax = 2147483647
)

// AssetSpec fixes the canvas geometry of one asset category.
type AssetSpec struct {
	Width       int
	Height      int
	FrameWidth  int
	FrameHeight int
	Columns     int
	Rows        int
}

// FrameCount is the number of independently generated frames, zero for
// single-image categories.
func (s AssetSpec) FrameCount() int {
	if s.FrameWidth == 0 {
		return 0
	}
	return s.Columns * s.Rows
}

var specs = map[domain.AssetType]AssetSpec{
	domain.AssetTypeCharacter: {Width: 1024, Height: 512, FrameWidth: 128, FrameHeight: 128, Columns: 8, Rows: 4},
	domain.AssetTypeTileset:   {Width: 512, Height: 448, FrameWidth: 0, FrameHeight: 0, Columns: 16, Rows: 14},
	domain.AssetTypeObject:    {Width: 512, Height: 512},
	domain.AssetTypeMap:       {Width: 768, Height: 576},
}

// SpecFor returns the geometry for an asset type; callers validate the type
// first.
func SpecFor(t domain.AssetType) AssetSpec {
	return specs[t]
}

var promptPrefixes = map[domain.AssetType]string{
	domain.AssetTypeCharacter: "pixel art game character sprite, chibi proportions, full body, transparent background, clean outline,",
	domain.AssetTypeTileset:   "pixel art terrain tileset, top-down view, 32px tiles, consistent palette, seamless edges,",
	domain.AssetTypeObject:    "pixel art game object sprite, top-down view, single prop, plain background, clean outline,",
	domain.AssetTypeMap:       "pixel art game map background, top-down view, cohesive terrain, rich detail,",
}

var negativePrompts = map[domain.AssetType]string{
	domain.AssetTypeCharacter: "blurry, realistic, photograph, 3d render, text, watermark, extra limbs, deformed hands, cropped",
	domain.AssetTypeTileset:   "blurry, realistic, photograph, 3d render, text, watermark, perspective distortion, visible seams",
	domain.AssetTypeObject:    "blurry, realistic, photograph, 3d render, text, watermark, multiple objects, cluttered",
	domain.AssetTypeMap:       "blurry, realistic, photograph, 3d render, text, watermark, characters, user interface",
}

// BuildPrompt prepends the category prefix to the caller's prompt.
func BuildPrompt(t domain.AssetType, userPrompt string) string {
	prefix := promptPrefixes[t]
	userPrompt = strings.TrimSpace(userPrompt)
	if prefix == "" {
		return userPrompt
	}
	return prefix + " " + userPrompt
}

// NegativePrompt returns the category's negative prompt.
func NegativePrompt(t domain.AssetType) string {
	return negativePrompts[t]
}

// FramePrompt extends the base prompt with the direction and walk-cycle
// phase of one sheet frame.
func FramePrompt(base, direction string, frame int) string {
	return fmt.Sprintf("%s, facing %s, walk cycle frame %d of 8", base, direction, frame+1)
}

// ResolveSeed returns the request seed clamped into range, or a fresh random
// seed when the request carries none.
func ResolveSeed(requested int64) int64 {
	if requested >= SeedMin && requested <= SeedMax {
		return requested
	}
	return rand.Int63n(SeedMax-SeedMin+1) + SeedMin
}

// FrameSeed derives a deterministic per-frame seed from the base seed so a
// sheet regenerates identically from the same seed.
func FrameSeed(base int64, frameIndex int) int64 {
	seed := (base + int64(frameIndex)*7919) % SeedMax
	if seed < SeedMin {
		seed += SeedMax
	}
	return seed
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a name and collapses non-alphanumerics to hyphens.
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "asset"
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return slug
}

// Filename builds the stored file name: type, slug, and a base36 timestamp
// tail for uniqueness.
func Filename(t domain.AssetType, name string, stamp int64) string {
	return fmt.Sprintf("%s_%s_%s.png", t, Slugify(name), strconv.FormatInt(stamp, 36))
}
