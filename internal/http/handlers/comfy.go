package handlers

import "net/http"

// Capabilities reports what the connected compute server supports. Probe
// failures surface as an all-false snapshot, never a 5xx, so frontends can
// always render the feature toggles.
func (a *App) Capabilities(w http.ResponseWriter, r *http.Request) {
	snap := a.Caps.Check(r.Context())
	writeJSON(w, http.StatusOK, snap)
}

// ComfyStatus reports server connectivity and version.
func (a *App) ComfyStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.Comfy.Mocked(ctx) {
		writeJSON(w, http.StatusOK, map[string]any{
			"connected": false,
			"mode":      "mock",
			"url":       a.Comfy.BaseURL(),
		})
		return
	}
	stats, err := a.Comfy.SystemStats(ctx)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"connected": false,
			"mode":      "real",
			"url":       a.Comfy.BaseURL(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": true,
		"mode":      "real",
		"url":       a.Comfy.BaseURL(),
		"version":   stats.System.ComfyUIVersion,
	})
}
