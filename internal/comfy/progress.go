package comfy

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsMessage is the envelope of ComfyUI /ws events.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wsExecutingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

type wsProgressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
}

type wsExecutionErrorData struct {
	PromptID         string `json:"prompt_id"`
	NodeType         string `json:"node_type"`
	ExceptionMessage string `json:"exception_message"`
}

// StreamProgress attaches to the server's websocket feed and logs execution
// events for jobs submitted with this client's id. It returns when the
// context is cancelled or the connection drops; polling remains the source of
// truth for job completion, so errors here are logged and swallowed.
func (c *Client) StreamProgress(ctx context.Context) {
	if c.effectiveMode(ctx) == "mock" {
		return
	}
	wsURL, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/ws"
	wsURL.RawQuery = url.Values{"clientId": {c.clientID}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("comfy: progress feed unavailable")
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	c.logger.Debug().Str("url", wsURL.String()).Msg("comfy: progress feed connected")
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("comfy: progress feed closed")
			}
			return
		}
		c.logProgressEvent(msg)
	}
}

func (c *Client) logProgressEvent(msg wsMessage) {
	switch msg.Type {
	case "executing":
		var data wsExecutingData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		if data.Node == nil {
			c.logger.Debug().Str("prompt_id", data.PromptID).Msg("comfy: execution finished")
		} else {
			c.logger.Debug().Str("prompt_id", data.PromptID).Str("node", *data.Node).Msg("comfy: executing node")
		}
	case "progress":
		var data wsProgressData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		c.logger.Debug().Str("prompt_id", data.PromptID).Int("value", data.Value).Int("max", data.Max).Msg("comfy: sampler progress")
	case "execution_error":
		var data wsExecutionErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		c.logger.Error().
			Str("prompt_id", data.PromptID).
			Str("node_type", data.NodeType).
			Str("message", data.ExceptionMessage).
			Msg("comfy: execution error")
	}
}
