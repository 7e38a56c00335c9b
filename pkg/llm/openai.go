package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// openAIChatClient captures the subset of the go-openai client we use, so
// tests can substitute a scripted implementation.
type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider implements Provider on the OpenAI Chat Completions API
type OpenAIProvider struct {
	client       openAIChatClient
	defaultModel string
}

// NewOpenAIProvider creates a provider from an API key
func NewOpenAIProvider(apiKey, defaultModel string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, NewProviderError("openai", "OPENAI_API_KEY is required", nil)
	}
	if defaultModel == "" {
		defaultModel = openai.GPT4o
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey), defaultModel: defaultModel}, nil
}

// Name identifies the provider
func (p *OpenAIProvider) Name() string { return "openai" }

// SupportsVision reports multimodal input support
func (p *OpenAIProvider) SupportsVision() bool { return true }

// SupportsJSONMode reports native JSON output support
func (p *OpenAIProvider) SupportsJSONMode() bool { return true }

// AvailableModels lists the chat models this deployment targets
func (p *OpenAIProvider) AvailableModels() []string {
	return []string{openai.GPT4o, openai.GPT4oMini, openai.GPT4Turbo}
}

// ValidateConnection verifies the credentials with a models listing
func (p *OpenAIProvider) ValidateConnection(ctx context.Context) error {
	ctx, cancel := withDefaultDeadline(ctx)
	defer cancel()
	if _, err := p.client.ListModels(ctx); err != nil {
		return NewProviderError("openai", "connection validation failed", err)
	}
	return nil
}

// CreateChatCompletion issues one completion. JSON mode is requested
// natively via response_format.
func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withDefaultDeadline(ctx)
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    encodeOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.WantsJSON() {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewProviderError("openai", "empty completion", ErrEmptyCompletion)
	}

	content := resp.Choices[0].Message.Content
	if req.WantsJSON() {
		// fence-stripping is a no-op for native JSON but guards older models
		content = StripCodeFences(content)
	}
	return &Response{
		Content: content,
		Role:    RoleAssistant,
		Model:   resp.Model,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// encodeOpenAIMessages maps uniform messages onto SDK messages, using
// MultiContent only when image parts are present
func encodeOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: m.Role}
		if len(m.Parts) == 0 {
			msg.Content = m.Content
			out = append(out, msg)
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch part.Type {
			case PartTypeText:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case PartTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    part.ImageURL.URL,
						Detail: openai.ImageURLDetail(part.ImageURL.Detail),
					},
				})
			}
		}
		msg.MultiContent = parts
		out = append(out, msg)
	}
	return out
}

// withDefaultDeadline adds the 60 s provider deadline when the caller
// supplied none
func withDefaultDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeoutSeconds*time.Second)
}
