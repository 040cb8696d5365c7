// Package llm wraps the Ollama HTTP API: JSON-mode chat, embeddings, and
// the health probe, plus retry classification and latency accounting.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes sampling for a chat call.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Client talks to a single Ollama instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	stats      *Stats

	// embedMemo caches embeddings for short query texts within a process.
	embedMemo    *gocache.Cache
	embedMemoMax int
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		stats:        NewStats(),
		embedMemo:    gocache.New(30*time.Minute, 10*time.Minute),
		embedMemoMax: 512,
	}
}

// Stats exposes the client's latency accounting.
func (c *Client) Stats() *Stats {
	return c.stats
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`
	Options  *Options  `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Chat sends a non-streaming chat request and returns the assistant text.
// jsonMode asks Ollama to constrain output to a single JSON value.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, jsonMode bool, opts *Options, timeout time.Duration) (string, error) {
	req := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  opts,
	}
	if jsonMode {
		req.Format = "json"
	}

	start := time.Now()
	var resp chatResponse
	err := c.post(ctx, "/api/chat", req, &resp, timeout)
	c.stats.Record("chat", time.Since(start))
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", resp.Error)
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response from model %s", model)
	}
	return content, nil
}

// ChatJSON runs Chat in JSON mode and decodes the response into a generic
// object, tolerating fenced or prefixed output.
func (c *Client) ChatJSON(ctx context.Context, model string, messages []Message, opts *Options, timeout time.Duration) (map[string]any, error) {
	content, err := c.Chat(ctx, model, messages, true, opts, timeout)
	if err != nil {
		return nil, err
	}
	obj, err := DecodeJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model, err)
	}
	return obj, nil
}

// Embed returns the embedding vector for text. Short texts are memoized per
// model so repeated probe queries cost one call.
func (c *Client) Embed(ctx context.Context, model, text string, timeout time.Duration) ([]float64, error) {
	memoKey := ""
	if len(text) <= c.embedMemoMax {
		memoKey = model + "\x00" + text
		if v, ok := c.embedMemo.Get(memoKey); ok {
			return v.([]float64), nil
		}
	}

	start := time.Now()
	var resp embeddingResponse
	err := c.post(ctx, "/api/embeddings", embeddingRequest{Model: model, Prompt: text}, &resp, timeout)
	c.stats.Record("embed", time.Since(start))
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("ollama embeddings: %s", resp.Error)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from model %s", model)
	}
	if memoKey != "" {
		c.embedMemo.Set(memoKey, resp.Embedding, gocache.DefaultExpiration)
	}
	return resp.Embedding, nil
}

// CheckHealth verifies the backend is reachable via the tags endpoint.
func (c *Client) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// DecodeJSONObject parses a JSON object out of model output. Fenced code
// blocks and leading chatter before the first brace are tolerated.
func DecodeJSONObject(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndexByte(s, '}'); j >= 0 {
		s = s[:j+1]
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("parse json response: %w (raw: %s)", err, truncate(text, 200))
	}
	return obj, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
