package comfy

import "encoding/json"

// Node is one node of a ComfyUI prompt graph in API format.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// JobGraph is a full prompt graph keyed by node id.
type JobGraph map[string]Node

// Clone deep-copies the graph through a JSON round trip so a template
// instance can be mutated without touching the original.
func (g JobGraph) Clone() (JobGraph, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	var out JobGraph
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// JobStatus enumerates client-visible job states. TimedOut is client-side
// only; the remote job may still be running when it is reported.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

type queuePromptRequest struct {
	Prompt   JobGraph `json:"prompt"`
	ClientID string   `json:"client_id,omitempty"`
}

// QueuePromptResponse is the body of POST /prompt.
type QueuePromptResponse struct {
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
}

// OutputImage identifies a produced image by the filename/subfolder/type
// triple accepted by GET /view.
type OutputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// HistoryOutput is one node's output block inside a history entry.
type HistoryOutput struct {
	Images []OutputImage `json:"images"`
}

// HistoryStatus carries the execution verdict of a prompt.
type HistoryStatus struct {
	StatusStr string              `json:"status_str"`
	Completed bool                `json:"completed"`
	Messages  [][]json.RawMessage `json:"messages"`
}

// HistoryEntry is the per-prompt value of GET /history/{id}.
type HistoryEntry struct {
	Outputs map[string]HistoryOutput `json:"outputs"`
	Status  HistoryStatus            `json:"status"`
}

// JobStatus maps the history verdict onto the client-side state machine. A
// nil entry means the prompt has not reached the history yet.
func (h *HistoryEntry) JobStatus() JobStatus {
	switch {
	case h == nil:
		return JobStatusQueued
	case h.Status.StatusStr == "error":
		return JobStatusFailed
	case h.Status.Completed:
		return JobStatusSucceeded
	default:
		return JobStatusRunning
	}
}

// Images flattens all output images across nodes.
func (h *HistoryEntry) Images() []OutputImage {
	var images []OutputImage
	for _, out := range h.Outputs {
		images = append(images, out.Images...)
	}
	return images
}

// SystemStats is the body of GET /system_stats.
type SystemStats struct {
	System struct {
		ComfyUIVersion string `json:"comfyui_version"`
		OS             string `json:"os"`
	} `json:"system"`
	Devices []struct {
		Name      string `json:"name"`
		Type      string `json:"type"`
		VRAMTotal int64  `json:"vram_total"`
		VRAMFree  int64  `json:"vram_free"`
	} `json:"devices"`
}

type uploadImageResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}
