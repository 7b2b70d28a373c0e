package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Groq OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "llama-3.1-8b-instant"

	jsonOnlyPrompt = "You are a JSON-only response bot. You MUST respond with ONLY a valid JSON object. " +
		"No explanations, no markdown, no text before or after the JSON. Start your response with { and end with }."
)

// ErrEmptyResponse is returned when the provider answered without choices.
var ErrEmptyResponse = errors.New("no response from llm api")

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a minimal HTTP client for OpenAI-compatible chat completion APIs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	debug      bool
}

// NewClient constructs a new Client with sane defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		debug:      os.Getenv("ENV") == "development",
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// CompleteJSON sends prompt with a JSON-only system instruction and returns
// the JSON object extracted from the first choice.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := c.ChatCompletion(ctx, &ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: jsonOnlyPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		MaxTokens:      2000,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	raw := resp.Choices[0].Message.Content
	content := ExtractJSON(raw)
	if content == "" {
		log.Error().Str("raw_content", truncate(raw, 500)).Msg("Failed to extract JSON from AI response")
		return "", fmt.Errorf("no valid JSON found in AI response. Raw: %s", truncate(raw, 200))
	}
	return content, nil
}

// ChatCompletion posts req to /chat/completions.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	var resp ChatResponse
	if err := c.doRequest(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doRequest performs the HTTP POST with JSON payloads and decodes the JSON
// response into result.
func (c *Client) doRequest(ctx context.Context, endpoint string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if c.debug {
		log.Debug().
			Str("endpoint", c.baseURL+endpoint).
			RawJSON("request", payload).
			Msg("[LLM] Outgoing request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if c.debug {
		log.Debug().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Dur("latency", time.Since(start)).
			Int("bytes", len(respBody)).
			Msg("[LLM] Incoming response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
