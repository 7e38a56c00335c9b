package llm

import "fmt"

// Config selects and credentials a provider. Loaded from environment by
// pkg/config; runtime code reads only this struct.
type Config struct {
	// Provider is "openai" or "anthropic"
	Provider string

	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIVisionModel  string
	OpenAIPlannerModel string

	AnthropicAPIKey       string
	AnthropicModel        string
	AnthropicVisionModel  string
	AnthropicPlannerModel string
	// AnthropicBedrockBaseURL routes calls through a gateway deployment
	AnthropicBedrockBaseURL string
	// AnthropicAuthToken is the gateway credential used instead of the API key
	AnthropicAuthToken string
}

// ModelSet names the models for each role of the pipeline. Empty fields
// fall back to Default.
type ModelSet struct {
	Default string
	Vision  string
	Planner string
}

// VisionModel returns the vision-capable model name
func (m ModelSet) VisionModel() string {
	if m.Vision != "" {
		return m.Vision
	}
	return m.Default
}

// PlannerModel returns the plan-synthesis model name
func (m ModelSet) PlannerModel() string {
	if m.Planner != "" {
		return m.Planner
	}
	return m.Default
}

// Client bundles a provider with the models each pipeline role should use
type Client struct {
	Provider Provider
	Models   ModelSet
}

// NewFromConfig builds the configured provider, validating that required
// credentials are present. It does not call the remote API; use
// Provider.ValidateConnection for that.
func NewFromConfig(cfg Config) (*Client, error) {
	switch cfg.Provider {
	case "", "openai":
		provider, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return &Client{
			Provider: provider,
			Models: ModelSet{
				Default: cfg.OpenAIModel,
				Vision:  cfg.OpenAIVisionModel,
				Planner: cfg.OpenAIPlannerModel,
			},
		}, nil

	case "anthropic":
		provider, err := NewAnthropicProvider(AnthropicOptions{
			APIKey:       cfg.AnthropicAPIKey,
			BaseURL:      cfg.AnthropicBedrockBaseURL,
			AuthToken:    cfg.AnthropicAuthToken,
			DefaultModel: cfg.AnthropicModel,
		})
		if err != nil {
			return nil, err
		}
		return &Client{
			Provider: provider,
			Models: ModelSet{
				Default: cfg.AnthropicModel,
				Vision:  cfg.AnthropicVisionModel,
				Planner: cfg.AnthropicPlannerModel,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider %q (expected openai or anthropic)", cfg.Provider)
	}
}
