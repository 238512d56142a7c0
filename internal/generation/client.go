package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sceneforge/internal/config"
	"sceneforge/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Generator defines content-generation behaviour.
type Generator interface {
	GenerateScene(ctx context.Context, prompt string) (string, error)
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	cfg        config.LLM
	httpClient *http.Client
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

// NewClient constructs a generation client using the supplied configuration.
func NewClient(cfg config.LLM, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.openai.com/v1/chat/completions"
	}
	return client
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateScene requests scene source for a natural-language prompt, strips
// formatting artifacts, and validates the structure of the result. It makes
// exactly one attempt; callers that want retries wrap it in a workflow step.
func (c *Client) GenerateScene(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", services.Wrap(services.ErrValidation, "generate", "prompt", "prompt is empty", nil)
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "generate", "client", "api key required", nil)
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: scenePrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &services.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrProvider, "generate", "completion", strings.TrimSpace(completion.Error.Message), nil)
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrProvider, "generate", "completion", "empty choices", nil)
	}

	code := StripCodeFence(completion.Choices[0].Message.Content)
	if err := ValidateSceneCode(code); err != nil {
		return "", err
	}
	return code, nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// StripCodeFence removes a surrounding markdown code fence, tolerating a
// language tag on the opening fence.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			body = body[nl+1:]
		}
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func isLanguageTag(line string) bool {
	for _, r := range line {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

var errEmptyCode = errors.New("generated code is empty")

// ValidateSceneCode checks the structural shape of generated scene source:
// non-empty, a scene class declaration, and a construct entry point. It says
// nothing about whether the animation is correct.
func ValidateSceneCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return services.Wrap(services.ErrValidation, "generate", "validate", errEmptyCode.Error(), nil)
	}
	if !strings.Contains(code, "(Scene)") {
		return services.Wrap(services.ErrValidation, "generate", "validate", "missing scene class declaration", nil)
	}
	if !strings.Contains(code, "def construct(self):") {
		return services.Wrap(services.ErrValidation, "generate", "validate", "missing construct entry point", nil)
	}
	return nil
}

var _ Generator = (*Client)(nil)
