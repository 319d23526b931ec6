package ai

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

// DefaultDeepseekBaseURL is used when the openai-compat provider has no base URL.
const DefaultDeepseekBaseURL = "https://api.deepseek.com/v1"

// ErrTruncated is returned when the provider stopped because of the token cap.
// Partial JSON cannot be parsed, so the caller should treat it as a failure.
var ErrTruncated = errors.New("completion truncated by max_tokens")

// CompatOption customizes an OpenAICompatGenerator.
type CompatOption func(*OpenAICompatGenerator)

// WithCompatHTTPClient replaces the default HTTP client.
func WithCompatHTTPClient(client *http.Client) CompatOption {
	return func(g *OpenAICompatGenerator) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithMaxTokens caps completion length. Zero leaves the provider default.
func WithMaxTokens(n int) CompatOption {
	return func(g *OpenAICompatGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(v float64) CompatOption {
	return func(g *OpenAICompatGenerator) {
		g.temperature = &v
	}
}

// OpenAICompatGenerator talks to a /chat/completions endpoint such as
// DeepSeek or a self-hosted model server.
type OpenAICompatGenerator struct {
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature *float64
	httpClient  *http.Client
}

// NewOpenAICompatGenerator builds the generator. baseURL includes the version
// prefix ("http://localhost:8000/v1"); an empty apiKey sends no Authorization.
func NewOpenAICompatGenerator(baseURL, apiKey, model string, opts ...CompatOption) *OpenAICompatGenerator {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultDeepseekBaseURL
	}
	g := &OpenAICompatGenerator{
		endpoint:   baseURL + "/chat/completions",
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.complete(ctx, chatCompletion{Messages: promptMessages(systemPrompt, userPrompt)})
}

// GenerateJSON sets response_format to json_object.
func (g *OpenAICompatGenerator) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.complete(ctx, chatCompletion{
		Messages:       promptMessages(systemPrompt, userPrompt),
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
}

func promptMessages(systemPrompt, userPrompt string) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	return append(msgs, chatMessage{Role: "user", Content: userPrompt})
}

func (g *OpenAICompatGenerator) complete(ctx context.Context, body chatCompletion) (string, error) {
	if g.model == "" {
		return "", errors.New("openai-compat generation model required")
	}
	body.Model = g.model
	body.MaxTokens = g.maxTokens
	body.Temperature = g.temperature
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai-compat request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("openai-compat read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("openai-compat api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("openai-compat api error: %s", resp.Status)
	}
	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("openai-compat decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai-compat returned no choices")
	}
	choice := out.Choices[0]
	if choice.FinishReason == "length" && body.ResponseFormat != nil {
		return "", ErrTruncated
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", errors.New("openai-compat returned empty content")
	}
	return text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletion struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}
