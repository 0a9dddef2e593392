package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	jsonResponseType      = "json_object"
	defaultBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 4
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	Temperature    float64
	MaxTokens      int
}

// Client wraps an OpenAI-compatible chat completion endpoint (OpenRouter by default).
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default attempt count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
			Temperature:    cfg.Temperature,
			MaxTokens:      cfg.MaxTokens,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// Model reports the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// CompleteJSON issues a JSON-only chat completion request with the supplied
// prompts and returns the raw content produced by the model.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return "", errors.New("llm complete: system prompt required")
	}
	if userPrompt == "" {
		return "", errors.New("llm complete: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("llm complete: api key required")
	}
	return c.completeWithRetry(ctx, c.newRequest(systemPrompt, userPrompt, c.cfg.MaxTokens), "llm complete")
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm health: api key required")
	}
	req := c.newRequest("You must respond with JSON only.", `Respond with {"ok":true}`, 16)
	req.Temperature = 0
	content, err := c.completeWithRetry(ctx, req, "llm health")
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func (c *Client) newRequest(systemPrompt, userPrompt string, maxTokens int) chatCompletionRequest {
	return chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema even when stream=false.
		Delta        chatCompletionMessage `json:"delta"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls"`
	Refusal   string     `json:"refusal"`
}

type toolCall struct {
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.Op, e.FinishReason, e.Refusal, e.Snippet)
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, body, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       summarizePayloadSnippet(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, fmt.Errorf("llm request: decode response: %w", err)
	}
	if completion.Error != nil {
		return completion, body, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return completion, body, nil
}

// extractContent prefers message content, then the streaming delta, then the
// legacy text field, then tool call arguments.
func extractContent(completion chatCompletionResponse) (content, finishReason, refusal string) {
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if text := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); text != "" {
			return text, finishReason, refusal
		}
		for _, call := range append(choice.Message.ToolCalls, choice.Delta.ToolCalls...) {
			if args := strings.TrimSpace(call.Function.Arguments); args != "" {
				return args, finishReason, refusal
			}
		}
	}
	return "", finishReason, refusal
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
