package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"sourcetrace/utils"
)

// reasoningTimeout bounds the single outbound call to the reasoning service.
// There are no retries: timeouts, rate limits and auth failures each map
// directly to a degraded result with a distinguishing reason.
const reasoningTimeout = 30 * time.Second

const defaultModel = "gemini-2.5-flash"

// Config carries the reasoning-service configuration. It is injected at
// engine construction so the engines stay pure and testable with fake
// clients; nothing in the decision path reads ambient process state.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ConfigFromEnv builds a Config from GEMINI_API_KEY / GEMINI_MODEL.
func ConfigFromEnv() Config {
	return Config{
		APIKey:  utils.GetEnv("GEMINI_API_KEY", ""),
		Model:   utils.GetEnv("GEMINI_MODEL", defaultModel),
		Timeout: reasoningTimeout,
	}
}

// CheckAPIKey reports whether the configured credential is usable and, when
// it is not, why. Placeholder and truncated keys are rejected up front so
// the engines never waste a network round trip on them.
func CheckAPIKey(key string) (bool, string) {
	if key == "" {
		return false, "GEMINI_API_KEY not found in environment variables"
	}
	if key == "your_gemini_api_key_here" {
		return false, "GEMINI_API_KEY is still set to placeholder value"
	}
	if len(key) < 20 {
		return false, "GEMINI_API_KEY appears invalid (too short)"
	}
	return true, "API key configured"
}

// PromptRequest is one structured request to the reasoning service.
type PromptRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int32
}

// ReasoningClient is the collaborator contract the engines call. The real
// implementation talks to Gemini; tests inject fakes.
type ReasoningClient interface {
	Generate(ctx context.Context, req PromptRequest) (string, error)
}

// GeminiClient is the production ReasoningClient backed by the Gemini API
// in JSON response mode.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if ok, reason := CheckAPIKey(cfg.APIKey); !ok {
		return nil, fmt.Errorf("reasoning service unusable: %s", reason)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, req PromptRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleModel),
		Temperature:       genai.Ptr(req.Temperature),
		MaxOutputTokens:   req.MaxTokens,
		ResponseMIMEType:  "application/json",
	}

	userContent := genai.NewContentFromText(req.User, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{userContent}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned an empty response")
	}
	return text, nil
}

// classifyServiceError turns a reasoning-service failure into the
// degradation reason recorded on the fallback result. Auth failures, rate
// limits and timeouts get distinct reasons so callers can tell transient
// failures from configuration ones without inspecting the degraded path.
func classifyServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "reasoning service request timed out"
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return "reasoning service authentication failed - check API key"
		case 429:
			return "reasoning service rate limit exceeded - try again later"
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "authentication") || strings.Contains(msg, "unauthenticated"):
		return "reasoning service authentication failed - check API key"
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted"):
		return "reasoning service rate limit exceeded - try again later"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
		return "reasoning service request timed out"
	}

	full := err.Error()
	if len(full) > 100 {
		full = full[:100]
	}
	return "reasoning service error: " + full
}
