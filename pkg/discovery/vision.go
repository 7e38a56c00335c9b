package discovery

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/dom"
	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/prompt"
	"github.com/voyager-qa/voyager/pkg/resilience"
)

// StrategyVisionAI names the hybrid screenshot+DOM strategy
const StrategyVisionAI = "VISION_AI"

// VisionStrategy sends a screenshot plus a container-level DOM summary to
// a vision-capable model for semantic page regions. Non-semantic
// descriptions, providers without vision, and failed captures all degrade
// to DOM-only analysis with the same post-processing.
type VisionStrategy struct {
	provider  llm.Provider
	models    llm.ModelSet
	extractor *dom.Extractor
	retry     resilience.RetryPolicy
	logger    *slog.Logger
}

// NewVisionStrategy creates the strategy
func NewVisionStrategy(client *llm.Client, extractor *dom.Extractor) *VisionStrategy {
	return &VisionStrategy{
		provider:  client.Provider,
		models:    client.Models,
		extractor: extractor,
		retry:     resilience.DefaultRetryPolicy(),
		logger:    slog.Default().With("component", "discovery", "strategy", StrategyVisionAI),
	}
}

// Name identifies the strategy
func (v *VisionStrategy) Name() string { return StrategyVisionAI }

// Discover locates the described element, hybrid for semantic regions
func (v *VisionStrategy) Discover(ctx context.Context, session browser.Session, description, actionType string) (*Result, error) {
	summary := v.extractor.Extract(ctx, session, dom.ExtractOptions{
		MaxElements:       200,
		IncludeContainers: true,
	})

	var (
		messages []llm.Message
		model    = v.models.Default
	)
	if IsSemanticConcept(description) && v.provider.SupportsVision() {
		if dataURL := v.capture(ctx, session); dataURL != "" {
			messages = prompt.VisionDiscoveryMessages(description, summary, dataURL)
			model = v.models.VisionModel()
		}
	}
	if messages == nil {
		messages = prompt.DiscoveryMessages(description, actionType, summary)
	}

	var resp *llm.Response
	err := resilience.Retry(ctx, v.retry, func() error {
		var callErr error
		resp, callErr = v.provider.CreateChatCompletion(ctx, llm.Request{
			Model:          model,
			Messages:       messages,
			Temperature:    0.1,
			ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSON},
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("vision discovery call failed: %w", err)
	}

	parsed, err := parseDiscoveryResponse(resp.Content)
	if err != nil {
		return nil, llm.NewProviderError(v.provider.Name(), "discovery response is not valid JSON", err)
	}
	return resolveCandidates(ctx, session, v.extractor, parsed, v.logger)
}

// capture takes a jpeg screenshot and encodes it as a data URL; failures
// degrade to the DOM-only path
func (v *VisionStrategy) capture(ctx context.Context, session browser.Session) string {
	data, err := session.Screenshot(ctx, browser.ScreenshotOptions{Format: "jpeg", Quality: 80})
	if err != nil {
		v.logger.Warn("Screenshot capture failed, using DOM-only discovery", "error", err)
		return ""
	}
	if len(data) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}
