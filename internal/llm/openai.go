package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DashScopeBaseURL is DashScope's OpenAI-compatible endpoint.
	DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	// DefaultModel is used when no model is configured.
	DefaultModel = "qwen-plus"
	// DefaultTemperature matches the authoring tone the personas were tuned for.
	DefaultTemperature = 0.7
)

func init() {
	Register("dashscope", func(s Settings) (Client, error) {
		if s.BaseURL == "" {
			s.BaseURL = DashScopeBaseURL
		}
		return NewOpenAI(s)
	})
	Register("openai", func(s Settings) (Client, error) {
		return NewOpenAI(s)
	})
}

// OpenAI implements Client over any OpenAI-compatible chat completions API.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAI builds a client from settings. SDK-level retries are disabled;
// WithRetry owns the retry policy.
func NewOpenAI(s Settings) (*OpenAI, error) {
	if s.APIKey == "" {
		return nil, errors.New("api key missing")
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.Temperature == 0 {
		s.Temperature = DefaultTemperature
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(s.Timeout),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       s.Model,
		temperature: s.Temperature,
	}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string {
	return o.model
}

// Complete sends one system and one user message.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &TransportError{Err: errors.New("empty choices in completion response")}
	}
	return resp.Choices[0].Message.Content, nil
}
