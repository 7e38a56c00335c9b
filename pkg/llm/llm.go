// Package llm provides a uniform chat-completion interface over the OpenAI
// and Anthropic APIs, with optional vision input and JSON-mode responses.
// Providers are selected by configuration through the factory; callers
// never touch SDK types directly.
package llm

import "context"

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part types for multimodal messages
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ResponseFormatJSON asks the provider for parseable JSON output
const ResponseFormatJSON = "json_object"

// DefaultTimeout bounds every completion call that carries no deadline
const defaultTimeoutSeconds = 60

// ImageURL references an inline base64 data URL
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart is one segment of a multimodal message
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message is one turn of a conversation. Content and Parts are mutually
// exclusive; Parts wins when both are set.
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// ResponseFormat constrains the completion output shape
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request is a provider-independent chat-completion request
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// WantsJSON reports whether the caller expects to JSON-parse the content
func (r Request) WantsJSON() bool {
	return r.ResponseFormat != nil && r.ResponseFormat.Type == ResponseFormatJSON
}

// Usage is the token accounting reported by the provider
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider-independent completion result
type Response struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Provider is the uniform chat-completion capability. Implementations
// enforce the 60 s default deadline when the context carries none, and
// guarantee that JSON-mode responses parse after post-processing.
type Provider interface {
	Name() string
	CreateChatCompletion(ctx context.Context, req Request) (*Response, error)
	SupportsVision() bool
	SupportsJSONMode() bool
	ValidateConnection(ctx context.Context) error
	AvailableModels() []string
}

// UserText builds a single-part user message
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// SystemText builds a system message
func SystemText(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}
