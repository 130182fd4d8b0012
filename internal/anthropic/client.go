package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/llm"
)

const apiURL = "https://api.anthropic.com/v1/messages"

type Client struct {
	apiKey    string
	model     string
	maxTokens int
	url       string
	client    *http.Client
}

func NewClient(apiKey, model string, maxTokens int) *Client {
	return &Client{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		url:       apiURL,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// setURL points the client at another endpoint, such as a test server.
func (c *Client) setURL(url string) {
	c.url = url
}

type request struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []llm.Message `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// streamEvent covers the fields of the SSE payloads the client reads.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the conversation and returns the text reply.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := c.do(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return text.String(), nil
}

// Stream sends the conversation with streaming enabled and forwards text
// deltas to onChunk. The final chunk is delivered on message_stop.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, onChunk func(llm.Chunk) error) error {
	resp, err := c.do(ctx, messages, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return consumeStream(resp.Body, onChunk)
}

func (c *Client) do(ctx context.Context, messages []llm.Message, stream bool) (*http.Response, error) {
	system, turns := splitSystem(messages)
	reqBody := request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  turns,
		Stream:    stream,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	client := c.client
	if stream {
		// Streams are bounded by ctx; the client timeout would cut long replies.
		client = &http.Client{Transport: c.client.Transport}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Type != "" {
			return nil, fmt.Errorf("api error %d: %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// splitSystem moves system messages into the top-level system field. The
// Messages API also requires the first turn to be the user's, so leading
// assistant turns are dropped.
func splitSystem(messages []llm.Message) (string, []llm.Message) {
	var system []string
	turns := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		if len(turns) == 0 && m.Role != "user" {
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

func consumeStream(body io.Reader, onChunk func(llm.Chunk) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}

		var evt streamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}

		switch evt.Type {
		case "content_block_delta":
			if evt.Delta.Type != "text_delta" || evt.Delta.Text == "" {
				continue
			}
			if err := onChunk(llm.Chunk{Delta: evt.Delta.Text}); err != nil {
				return err
			}
		case "message_stop":
			return onChunk(llm.Chunk{Final: true})
		case "error":
			return fmt.Errorf("stream error: %s: %s", evt.Error.Type, evt.Error.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return errors.New("stream ended before message_stop")
}
