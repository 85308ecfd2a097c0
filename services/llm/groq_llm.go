package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	defaultGroqModel = "llama-3.3-70b-versatile"

	// defaultCallTimeout bounds a single completion call. The upstream can
	// stall indefinitely on overload; without a deadline one hung call
	// stalls a whole brainstorming phase.
	defaultCallTimeout = 60 * time.Second

	// defaultRequestsPerMinute paces outbound calls to stay under the Groq
	// free-tier quota. This is separate from the per-session rate gate.
	defaultRequestsPerMinute = 28
)

// GroqClient talks to the Groq chat completions API, which is
// OpenAI-compatible, through the go-openai client with a custom base URL.
type GroqClient struct {
	client      *openai.Client
	model       string
	callTimeout time.Duration
	limiter     *rate.Limiter
}

// NewGroqClient builds a client from the environment: GROQ_API_KEY
// (required), GROQ_MODEL and LLM_TIMEOUT_SECONDS (optional).
func NewGroqClient() (*GroqClient, error) {
	timeout := defaultCallTimeout
	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		} else {
			slog.Warn("Invalid LLM_TIMEOUT_SECONDS, using default", "value", v)
		}
	}
	return NewGroqClientWithOptions(os.Getenv("GROQ_API_KEY"), os.Getenv("GROQ_MODEL"), timeout)
}

// NewGroqClientWithOptions builds a client from explicit settings. An
// empty model or non-positive timeout falls back to the defaults.
func NewGroqClientWithOptions(apiKey, model string, timeout time.Duration) (*GroqClient, error) {
	if apiKey == "" {
		slog.Error("GROQ_API_KEY environment variable not set")
		return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
	}
	if model == "" {
		model = defaultGroqModel
		slog.Warn("No Groq model configured, defaulting", "model", model)
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL

	slog.Info("Initializing Groq client", "model", model, "timeout", timeout)
	return &GroqClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		callTimeout: timeout,
		limiter:     rate.NewLimiter(rate.Limit(float64(defaultRequestsPerMinute)/60.0), 2),
	}, nil
}

// Complete implements the LLMClient interface.
func (g *GroqClient) Complete(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &TimeoutError{Provider: "groq", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", g.classify(err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("Groq returned no choices")
		return "", &ProviderError{Provider: "groq", Err: fmt.Errorf("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

// classify converts transport/API failures into the package's typed errors.
func (g *GroqClient) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Error("Groq API call timed out", "timeout", g.callTimeout)
		return &TimeoutError{Provider: "groq", Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			slog.Error("Groq authentication failed", "status", apiErr.HTTPStatusCode)
			return &AuthError{Provider: "groq", Err: err}
		case 429:
			slog.Warn("Groq API rate limited us")
			return &RateLimitError{Provider: "groq", Err: err}
		default:
			slog.Error("Groq API call failed", "status", apiErr.HTTPStatusCode, "error", err)
			return &ProviderError{Provider: "groq", Status: apiErr.HTTPStatusCode, Err: err}
		}
	}

	slog.Error("Groq API call failed", "error", err)
	return &ProviderError{Provider: "groq", Err: err}
}

var _ LLMClient = (*GroqClient)(nil)
