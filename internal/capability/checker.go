package capability

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"spriteforge/internal/infra"
)

const (
	cacheKey = "snapshot"
	cacheTTL = 60 * time.Second
)

// Probe is the slice of the compute client the checker needs.
type Probe interface {
	ObjectInfo(ctx context.Context) (map[string]json.RawMessage, error)
	Mocked(ctx context.Context) bool
}

// Snapshot is the capability surface of the connected server at one point
// in time.
type Snapshot struct {
	ControlNetAvailable bool      `json:"controlnet_available"`
	OpenPoseAvailable   bool      `json:"openpose_available"`
	ControlNetModels    []string  `json:"controlnet_models"`
	NodeCount           int       `json:"node_count"`
	CheckedAt           time.Time `json:"checked_at"`
}

// Checker probes the server's installed node classes and caches the answer.
// A probe failure yields an all-false snapshot rather than an error, so
// callers degrade to unguided generation instead of failing requests.
type Checker struct {
	probe  Probe
	cache  *gocache.Cache
	logger infra.Logger
}

func NewChecker(probe Probe, logger infra.Logger) *Checker {
	return &Checker{
		probe:  probe,
		cache:  gocache.New(cacheTTL, 2*cacheTTL),
		logger: logger,
	}
}

// Check returns the current capability snapshot, served from cache for up
// to a minute.
func (c *Checker) Check(ctx context.Context) Snapshot {
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(Snapshot)
	}
	snap := c.probeNow(ctx)
	c.cache.SetDefault(cacheKey, snap)
	return snap
}

// Invalidate drops the cached snapshot so the next Check probes again.
func (c *Checker) Invalidate() {
	c.cache.Delete(cacheKey)
}

func (c *Checker) probeNow(ctx context.Context) Snapshot {
	snap := Snapshot{CheckedAt: time.Now()}
	if c.probe.Mocked(ctx) {
		// The mock backend accepts any graph, so advertise everything.
		snap.ControlNetAvailable = true
		snap.OpenPoseAvailable = true
		return snap
	}
	info, err := c.probe.ObjectInfo(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("capability: probe failed, degrading to unguided generation")
		return snap
	}
	snap.NodeCount = len(info)
	for class := range info {
		switch {
		case class == "ControlNetLoader" || class == "ControlNetApplyAdvanced":
			snap.ControlNetAvailable = true
		case strings.Contains(strings.ToLower(class), "openpose"):
			snap.OpenPoseAvailable = true
		}
	}
	// Loading OpenPose models goes through the generic ControlNet loader,
	// so the loader alone is enough for pose guidance.
	if snap.ControlNetAvailable {
		snap.OpenPoseAvailable = true
		snap.ControlNetModels = controlNetModels(info)
	}
	c.logger.Debug().
		Bool("controlnet", snap.ControlNetAvailable).
		Int("node_count", snap.NodeCount).
		Msg("capability: probed server")
	return snap
}

// controlNetModels pulls the installed model names out of the loader's
// input spec: input.required.control_net_name is [[names...], opts].
func controlNetModels(info map[string]json.RawMessage) []string {
	raw, ok := info["ControlNetLoader"]
	if !ok {
		return nil
	}
	var def struct {
		Input struct {
			Required map[string][]json.RawMessage `json:"required"`
		} `json:"input"`
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil
	}
	field, ok := def.Input.Required["control_net_name"]
	if !ok || len(field) == 0 {
		return nil
	}
	var models []string
	if err := json.Unmarshal(field[0], &models); err != nil {
		return nil
	}
	return models
}
