package llm

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// anthropicMessages captures the subset of the Anthropic SDK used here so
// tests can substitute a scripted implementation
type anthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider implements Provider on the Claude Messages API. The
// Messages API has no native JSON mode, so JSON-mode requests are
// post-processed by stripping code fences.
type AnthropicProvider struct {
	messages     anthropicMessages
	defaultModel string
}

// AnthropicOptions configures provider construction. Either APIKey or the
// gateway pair (BaseURL + AuthToken) must be set.
type AnthropicOptions struct {
	APIKey string
	// BaseURL points at a Bedrock or proxy gateway instead of the public API
	BaseURL string
	// AuthToken is the bearer credential used by gateway deployments
	AuthToken    string
	DefaultModel string
}

// NewAnthropicProvider creates a provider for the public API or a gateway
func NewAnthropicProvider(opts AnthropicOptions) (*AnthropicProvider, error) {
	if opts.APIKey == "" && opts.AuthToken == "" {
		return nil, NewProviderError("anthropic", "ANTHROPIC_API_KEY or ANTHROPIC_AUTH_TOKEN is required", nil)
	}
	model := opts.DefaultModel
	if model == "" {
		model = string(sdk.ModelClaudeSonnet4_5_20250929)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.AuthToken != "" {
		clientOpts = append(clientOpts, option.WithAuthToken(opts.AuthToken))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := sdk.NewClient(clientOpts...)
	return &AnthropicProvider{messages: &client.Messages, defaultModel: model}, nil
}

// Name identifies the provider
func (p *AnthropicProvider) Name() string { return "anthropic" }

// SupportsVision reports multimodal input support
func (p *AnthropicProvider) SupportsVision() bool { return true }

// SupportsJSONMode reports native JSON output support; Claude responses
// are fence-stripped instead
func (p *AnthropicProvider) SupportsJSONMode() bool { return false }

// AvailableModels lists the chat models this deployment targets
func (p *AnthropicProvider) AvailableModels() []string {
	return []string{
		string(sdk.ModelClaudeSonnet4_5_20250929),
		"claude-opus-4-5",
		"claude-haiku-4-5",
	}
}

// ValidateConnection verifies the credentials with a one-token completion
func (p *AnthropicProvider) ValidateConnection(ctx context.Context) error {
	ctx, cancel := withDefaultDeadline(ctx)
	defer cancel()
	_, err := p.messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.defaultModel),
		MaxTokens: 1,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock("ping"))},
	})
	if err != nil {
		return NewProviderError("anthropic", "connection validation failed", err)
	}
	return nil
}

// CreateChatCompletion issues one Messages API call
func (p *AnthropicProvider) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withDefaultDeadline(ctx)
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	conversation, system, err := encodeAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := p.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, NewProviderError("anthropic", "empty completion", ErrEmptyCompletion)
	}

	text := content.String()
	if req.WantsJSON() {
		text = StripCodeFences(text)
	}
	return &Response{
		Content: text,
		Role:    RoleAssistant,
		Model:   string(msg.Model),
		Usage: &Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

// encodeAnthropicMessages splits system turns out of the conversation and
// converts multimodal parts to content blocks
func encodeAnthropicMessages(messages []Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(messages))
	var system []sdk.TextBlockParam

	for _, m := range messages {
		if m.Role == RoleSystem {
			text := m.Content
			for _, part := range m.Parts {
				if part.Type == PartTypeText {
					text += part.Text
				}
			}
			if text != "" {
				system = append(system, sdk.TextBlockParam{Text: text})
			}
			continue
		}

		var blocks []sdk.ContentBlockParamUnion
		if len(m.Parts) == 0 {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		} else {
			for _, part := range m.Parts {
				switch part.Type {
				case PartTypeText:
					blocks = append(blocks, sdk.NewTextBlock(part.Text))
				case PartTypeImageURL:
					if part.ImageURL == nil {
						continue
					}
					mediaType, data, err := parseDataURL(part.ImageURL.URL)
					if err != nil {
						return nil, nil, NewProviderError("anthropic", "invalid image part", err)
					}
					blocks = append(blocks, sdk.NewImageBlockBase64(mediaType, data))
				}
			}
		}

		if m.Role == RoleAssistant {
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		} else {
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		}
	}
	return conversation, system, nil
}

// parseDataURL splits a "data:<media>;base64,<data>" URL into its parts
func parseDataURL(url string) (mediaType, data string, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", "", fmt.Errorf("image URL must be a base64 data URL, got %.32q", url)
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("malformed data URL")
	}
	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == meta {
		return "", "", fmt.Errorf("data URL must be base64 encoded")
	}
	return mediaType, data, nil
}
