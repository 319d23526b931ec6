package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	maxGeminiResponseSize = 4 << 20
)

// GeminiGenerator calls the Google AI Studio generateContent endpoint with a
// fixed model.
type GeminiGenerator struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
}

// GeminiOption customizes a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithGeminiBaseURL points the generator at another API root, e.g. a test server.
func WithGeminiBaseURL(baseURL string) GeminiOption {
	return func(g *GeminiGenerator) {
		if v := strings.TrimRight(strings.TrimSpace(baseURL), "/"); v != "" {
			g.baseURL = v
		}
	}
}

func WithGeminiHTTPClient(client *http.Client) GeminiOption {
	return func(g *GeminiGenerator) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithGeminiMaxOutputTokens caps the reply length. Zero leaves the provider default.
func WithGeminiMaxOutputTokens(n int) GeminiOption {
	return func(g *GeminiGenerator) {
		if n > 0 {
			g.maxOutputTokens = n
		}
	}
}

// NewGeminiGenerator builds a Gemini-backed TextGenerator. An empty model
// selects DefaultGeminiModel.
func NewGeminiGenerator(apiKey, model string, opts ...GeminiOption) (*GeminiGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = DefaultGeminiModel
	}
	g := &GeminiGenerator{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.generate(ctx, systemPrompt, userPrompt, false)
}

// GenerateJSON asks for an application/json reply. A reply cut off by the
// output cap returns ErrTruncated since the document cannot be parsed.
func (g *GeminiGenerator) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.generate(ctx, systemPrompt, userPrompt, true)
}

func (g *GeminiGenerator) generate(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
	}
	if s := strings.TrimSpace(systemPrompt); s != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: s}}}
	}
	if jsonMode || g.maxOutputTokens > 0 {
		payload.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: g.maxOutputTokens}
		if jsonMode {
			payload.GenerationConfig.ResponseMimeType = "application/json"
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGeminiResponseSize))
	if err != nil {
		return "", fmt.Errorf("gemini read: %w", err)
	}
	var out geminiResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode >= 400 {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("gemini api error (%d): %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("gemini api error: %s", resp.Status)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("gemini decode: %w", decodeErr)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	candidate := out.Candidates[0]
	if jsonMode && candidate.FinishReason == "MAX_TOKENS" {
		return "", ErrTruncated
	}
	// Long replies can arrive split across several parts.
	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return text, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
