package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is the API root; the client appends /chat/completions.
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = openai.GPT3Dot5Turbo
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7
)

// SystemPrompt frames every advisory conversation.
const SystemPrompt = "You are AgriBot, an expert in agriculture who recommends the best crops based on soil type, climate, and season."

// Advisor answers free-text farming questions.
type Advisor interface {
	Advise(ctx context.Context, query string) (string, error)
}

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout of zero means no client-side limit.
	Timeout time.Duration
}

// ChatAdvisor relays queries to an OpenAI-compatible chat completions endpoint.
// Each call is a single stateless request.
type ChatAdvisor struct {
	client      *openai.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
}

func NewChatAdvisor(opts Options) *ChatAdvisor {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: opts.Timeout}

	a := &ChatAdvisor{
		client:      openai.NewClientWithConfig(config),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = DefaultMaxTokens
	}
	return a
}

// Advise returns the first choice's content verbatim.
func (a *ChatAdvisor) Advise(ctx context.Context, query string) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("chat advisor not configured")
	}
	if a.apiKey == "" {
		return "", errors.New("openai api key is required")
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return "", describeError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai api returned empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func describeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("openai api error: %s", apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai api returned status %d", reqErr.HTTPStatusCode)
	}
	return fmt.Errorf("openai request failed: %w", err)
}
