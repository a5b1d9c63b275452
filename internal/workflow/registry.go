package workflow

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"

	"spriteforge/internal/comfy"
	"spriteforge/internal/domain"
)

//go:embed templates/*.json
var templateFS embed.FS

// Well-known template keys. The default template for an asset type is the
// one named after the type itself.
const (
	KeyCharacter          = "character"
	KeyCharacterFrame     = "character-frame"
	KeyCharacterFrameOpen = "character-frame-basic"
	KeyTileset            = "tileset"
	KeyTilesetSeamless    = "tileset-seamless"
	KeyObject             = "object"
	KeyMap                = "map"
)

// Registry holds all embedded templates keyed by name.
type Registry struct {
	templates map[string]*Template
}

// NewRegistry parses every embedded template. A malformed template file is a
// build defect, so parse errors fail startup.
func NewRegistry() (*Registry, error) {
	entries, err := fs.Glob(templateFS, "templates/*.json")
	if err != nil {
		return nil, err
	}
	reg := &Registry{templates: make(map[string]*Template, len(entries))}
	for _, path := range entries {
		raw, err := templateFS.ReadFile(path)
		if err != nil {
			return nil, err
		}
		tpl, err := parseTemplate(raw)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", path, err)
		}
		if _, dup := reg.templates[tpl.Meta.Name]; dup {
			return nil, fmt.Errorf("template %s: duplicate name %q", path, tpl.Meta.Name)
		}
		reg.templates[tpl.Meta.Name] = tpl
	}
	return reg, nil
}

// parseTemplate splits the on-disk shape, where the _meta block sits next to
// the graph nodes, into Meta plus a pure JobGraph.
func parseTemplate(raw []byte) (*Template, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	metaRaw, ok := doc["_meta"]
	if !ok {
		return nil, fmt.Errorf("missing _meta block")
	}
	var meta Meta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("parse _meta: %w", err)
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("_meta.name is empty")
	}
	delete(doc, "_meta")
	graph := make(comfy.JobGraph, len(doc))
	for id, nodeRaw := range doc {
		var node comfy.Node
		if err := json.Unmarshal(nodeRaw, &node); err != nil {
			return nil, fmt.Errorf("parse node %q: %w", id, err)
		}
		graph[id] = node
	}
	for name, slot := range meta.Slots {
		if _, ok := graph[slot.Node]; !ok {
			return nil, fmt.Errorf("slot %q points at missing node %q", name, slot.Node)
		}
	}
	return &Template{Meta: meta, Graph: graph}, nil
}

// Get returns the template with the exact name.
func (r *Registry) Get(name string) (*Template, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, name)
	}
	return tpl, nil
}

// Resolve picks the template for an asset type, honoring an explicit
// workflow key when the request carries one.
func (r *Registry) Resolve(assetType domain.AssetType, workflowKey string) (*Template, error) {
	if workflowKey != "" {
		return r.Get(workflowKey)
	}
	return r.Get(string(assetType))
}

// Names lists all registered template names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
