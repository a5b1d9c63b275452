package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spriteforge/internal/domain"
)

const (
	// modeCacheTTL bounds how long an auto-mode connectivity probe is trusted.
	modeCacheTTL = 30 * time.Second

	pingTimeout = 5 * time.Second

	// errorDetailLimit truncates remote execution messages for persistence.
	errorDetailLimit = 300
)

// Options configures the ComfyUI client.
type Options struct {
	BaseURL        string
	Mode           string // auto | real | mock
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
	RequestTimeout time.Duration
	PollInterval   time.Duration
	SubmitPerSec   float64
}

// Client performs HTTP calls against a ComfyUI job server. Submissions pass
// through a rate limiter shared by all concurrent frame jobs.
type Client struct {
	baseURL      string
	mode         string
	clientID     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       zerolog.Logger
	pollInterval time.Duration

	modeMu       sync.Mutex
	resolvedMode string
	modeExpires  time.Time
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8188"
	}
	mode := opts.Mode
	if mode == "" {
		mode = "auto"
	}
	perSec := opts.SubmitPerSec
	if perSec <= 0 {
		perSec = 4
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:      baseURL,
		mode:         mode,
		clientID:     uuid.NewString(),
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(rate.Limit(perSec), 1),
		logger:       logger,
		pollInterval: pollInterval,
	}
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ClientID returns the identifier sent with submissions, used to correlate
// websocket progress events.
func (c *Client) ClientID() string {
	return c.clientID
}

// Ping reports whether the server answers /system_stats.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

// effectiveMode resolves auto mode against a short-lived connectivity probe.
func (c *Client) effectiveMode(ctx context.Context) string {
	if c.mode != "auto" {
		return c.mode
	}
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	if c.resolvedMode != "" && time.Now().Before(c.modeExpires) {
		return c.resolvedMode
	}
	resolved := "mock"
	if c.Ping(ctx) {
		resolved = "real"
	} else {
		c.logger.Warn().Str("url", c.baseURL).Msg("comfy: server unreachable, falling back to mock mode")
	}
	c.resolvedMode = resolved
	c.modeExpires = time.Now().Add(modeCacheTTL)
	return resolved
}

// Mocked reports whether calls are currently served synthetically.
func (c *Client) Mocked(ctx context.Context) bool {
	return c.effectiveMode(ctx) == "mock"
}

// Submit queues a prompt graph and returns the remote job id.
func (c *Client) Submit(ctx context.Context, graph JobGraph) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("comfy: submit rate wait: %w", err)
	}
	if c.effectiveMode(ctx) == "mock" {
		return fmt.Sprintf("mock-%s", uuid.NewString()), nil
	}

	body, err := json.Marshal(queuePromptRequest{Prompt: graph, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("comfy: encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("comfy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("comfy: queue prompt: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("comfy: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrSubmissionRejected, resp.StatusCode, truncate(string(raw), errorDetailLimit))
	}

	var decoded QueuePromptResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("comfy: decode response: %w", err)
	}
	if decoded.PromptID == "" {
		return "", fmt.Errorf("%w: empty prompt id", domain.ErrSubmissionRejected)
	}
	c.logger.Debug().Str("prompt_id", decoded.PromptID).Msg("comfy: prompt queued")
	return decoded.PromptID, nil
}

// History fetches the history entry for a prompt. A nil entry without error
// means the job has not reached the history yet.
func (c *Client) History(ctx context.Context, promptID string) (*HistoryEntry, error) {
	if c.effectiveMode(ctx) == "mock" {
		return mockHistory(), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, nil
	}
	var entries map[string]HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("comfy: decode history: %w", err)
	}
	entry, ok := entries[promptID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// WaitForCompletion polls the history until the job reaches a terminal state
// or the deadline elapses. Remote errors surface as ErrRemoteExecution with
// the execution messages attached; deadline expiry surfaces as ErrTimeout.
func (c *Client) WaitForCompletion(ctx context.Context, promptID string, deadline time.Duration) (*HistoryEntry, error) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		entry, err := c.History(ctx, promptID)
		if err != nil {
			return nil, err
		}
		switch entry.JobStatus() {
		case JobStatusFailed:
			return nil, fmt.Errorf("%w: prompt %s: %s", domain.ErrRemoteExecution, promptID, truncate(formatMessages(entry.Status.Messages), errorDetailLimit))
		case JobStatusSucceeded:
			return entry, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: prompt %s: %v", domain.ErrTimeout, promptID, ctx.Err())
		case <-timer.C:
			c.logger.Warn().Str("prompt_id", promptID).Str("state", string(JobStatusTimedOut)).Msg("comfy: no terminal status before deadline")
			return nil, fmt.Errorf("%w: prompt %s after %s", domain.ErrTimeout, promptID, deadline)
		case <-ticker.C:
		}
	}
}

// FetchImage downloads a produced image.
func (c *Client) FetchImage(ctx context.Context, img OutputImage) ([]byte, error) {
	if c.effectiveMode(ctx) == "mock" {
		return mockPNG(), nil
	}
	params := url.Values{}
	params.Set("filename", img.Filename)
	params.Set("subfolder", img.Subfolder)
	params.Set("type", img.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("comfy: fetch image %q: status %d", img.Filename, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("comfy: read image: %w", err)
	}
	return data, nil
}

// UploadImage stores an auxiliary image (pose guides) in the server's input
// directory under the given subfolder. Existing files are overwritten.
func (c *Client) UploadImage(ctx context.Context, data []byte, filename, subfolder string) error {
	if c.effectiveMode(ctx) == "mock" {
		return nil
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return fmt.Errorf("comfy: build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("comfy: write upload payload: %w", err)
	}
	if subfolder != "" {
		if err := writer.WriteField("subfolder", subfolder); err != nil {
			return fmt.Errorf("comfy: write upload field: %w", err)
		}
	}
	if err := writer.WriteField("overwrite", "true"); err != nil {
		return fmt.Errorf("comfy: write upload field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("comfy: close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &body)
	if err != nil {
		return fmt.Errorf("comfy: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("comfy: upload image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("comfy: upload image %q: status %d: %s", filename, resp.StatusCode, truncate(string(raw), errorDetailLimit))
	}
	var stored uploadImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&stored); err == nil && stored.Name != "" {
		c.logger.Debug().Str("name", stored.Name).Str("subfolder", stored.Subfolder).Msg("comfy: image uploaded")
	}
	return nil
}

// SystemStats fetches server version and device information.
func (c *Client) SystemStats(ctx context.Context) (*SystemStats, error) {
	if c.effectiveMode(ctx) == "mock" {
		stats := &SystemStats{}
		stats.System.ComfyUIVersion = "mock"
		return stats, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: fetch system stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("comfy: system stats: status %d", resp.StatusCode)
	}
	var stats SystemStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("comfy: decode system stats: %w", err)
	}
	return &stats, nil
}

// ObjectInfo fetches the installed node class listing. Failures degrade to an
// empty map so capability probing never hard-fails the pipeline.
func (c *Client) ObjectInfo(ctx context.Context) (map[string]json.RawMessage, error) {
	if c.effectiveMode(ctx) == "mock" {
		return map[string]json.RawMessage{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/object_info", nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: fetch object info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return map[string]json.RawMessage{}, nil
	}
	var info map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("comfy: decode object info: %w", err)
	}
	return info, nil
}

func formatMessages(messages [][]json.RawMessage) string {
	if len(messages) == 0 {
		return "unknown error"
	}
	var parts []string
	for _, msg := range messages {
		if len(msg) == 0 {
			continue
		}
		var event string
		_ = json.Unmarshal(msg[0], &event)
		payload := ""
		if len(msg) > 1 {
			payload = string(msg[1])
		}
		parts = append(parts, fmt.Sprintf("%s: %s", event, payload))
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func mockHistory() *HistoryEntry {
	entry := &HistoryEntry{
		Outputs: map[string]HistoryOutput{
			"9": {Images: []OutputImage{{
				Filename: fmt.Sprintf("mock_output_%06d.png", rand.Intn(1000000)),
				Type:     "output",
			}}},
		},
	}
	entry.Status.StatusStr = "success"
	entry.Status.Completed = true
	return entry
}

// mockPNG returns a 1x1 transparent PNG so downstream decoding keeps working
// without a live server.
func mockPNG() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
		0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
		0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x62, 0x00, 0x00, 0x00, 0x02,
		0x00, 0x01, 0xe5, 0x27, 0xde, 0xfc, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45,
		0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
}
