package oracle

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the chat-completions oracle.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI scores pairs with a chat-completions model in JSON mode. BaseURL
// lets it target any OpenAI-compatible endpoint.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, NewError(CategoryInternal, "OpenAI API key is required", nil)
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
	}, nil
}

func (o *OpenAI) Score(ctx context.Context, evidenceText, promiseText string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(evidenceText, promiseText)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
		MaxTokens:      300,
	})
	if err != nil {
		return Verdict{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, NewError(CategoryBadResponse, "no choices in response", nil)
	}
	return parseVerdict(resp.Choices[0].Message.Content)
}

// classify maps client errors onto the oracle taxonomy.
func classify(err error) *Error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return NewError(CategoryRateLimited, "rate limited by provider", err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(CategoryInternal, "provider rejected credentials", err)
	case status >= 500:
		return NewError(CategoryOutage, "provider error", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(CategoryTimeout, "provider timed out", err)
	case status >= 400:
		return NewError(CategoryBadResponse, "provider rejected request", err)
	}
	return NewError(CategoryOutage, "provider unreachable", err)
}
