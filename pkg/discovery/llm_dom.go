package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/voyager-qa/voyager/pkg/browser"
	"github.com/voyager-qa/voyager/pkg/cache"
	"github.com/voyager-qa/voyager/pkg/dom"
	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/prompt"
	"github.com/voyager-qa/voyager/pkg/resilience"
)

// StrategyLLMDOMAnalysis names the DOM-summary text strategy
const StrategyLLMDOMAnalysis = "LLM_DOM_ANALYSIS"

// breakerKeyDOMDiscovery guards every discovery completion call
const breakerKeyDOMDiscovery = "llm-dom-discovery"

// DOMAnalysisStrategy asks a text model to pick a selector from a compact
// DOM summary. Summaries are cached per URL; the LLM call runs with retry
// inside the shared circuit breaker.
type DOMAnalysisStrategy struct {
	provider  llm.Provider
	models    llm.ModelSet
	extractor *dom.Extractor
	domCache  *cache.DOMCache
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryPolicy
	logger    *slog.Logger
}

// NewDOMAnalysisStrategy creates the strategy sharing the caller's cache
// and breaker
func NewDOMAnalysisStrategy(client *llm.Client, extractor *dom.Extractor, domCache *cache.DOMCache, breaker *resilience.CircuitBreaker) *DOMAnalysisStrategy {
	return &DOMAnalysisStrategy{
		provider:  client.Provider,
		models:    client.Models,
		extractor: extractor,
		domCache:  domCache,
		breaker:   breaker,
		retry:     resilience.DefaultRetryPolicy(),
		logger:    slog.Default().With("component", "discovery", "strategy", StrategyLLMDOMAnalysis),
	}
}

// Name identifies the strategy
func (d *DOMAnalysisStrategy) Name() string { return StrategyLLMDOMAnalysis }

// Discover summarizes the page, asks the model for a selector, and
// validates the answer against the live DOM
func (d *DOMAnalysisStrategy) Discover(ctx context.Context, session browser.Session, description, actionType string) (*Result, error) {
	summary := d.pageSummary(ctx, session)
	messages := prompt.DiscoveryMessages(description, actionType, summary)

	var resp *llm.Response
	err := d.breaker.Execute(breakerKeyDOMDiscovery, func() error {
		return resilience.Retry(ctx, d.retry, func() error {
			var callErr error
			resp, callErr = d.provider.CreateChatCompletion(ctx, llm.Request{
				Model:          d.models.Default,
				Messages:       messages,
				Temperature:    0.1,
				ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSON},
			})
			return callErr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("DOM discovery call failed: %w", err)
	}

	parsed, err := parseDiscoveryResponse(resp.Content)
	if err != nil {
		return nil, llm.NewProviderError(d.provider.Name(), "discovery response is not valid JSON", err)
	}
	return resolveCandidates(ctx, session, d.extractor, parsed, d.logger)
}

// pageSummary reads the extraction through the shared cache
func (d *DOMAnalysisStrategy) pageSummary(ctx context.Context, session browser.Session) string {
	url, err := session.URL(ctx)
	if err == nil && url != "" {
		if cached, ok := d.domCache.Get(url); ok {
			return cached
		}
	}
	summary := d.extractor.Extract(ctx, session, dom.DefaultExtractOptions())
	if err == nil && url != "" && summary != "[]" {
		d.domCache.Set(url, summary)
	}
	return summary
}

// discoveryResponse is the JSON shape both strategies require of the model
type discoveryResponse struct {
	Selector     string         `json:"selector"`
	Confidence   float64        `json:"confidence"`
	Alternatives []string       `json:"alternatives"`
	ElementInfo  map[string]any `json:"elementInfo"`
}

func parseDiscoveryResponse(content string) (discoveryResponse, error) {
	var parsed discoveryResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFences(content)), &parsed); err != nil {
		return discoveryResponse{}, err
	}
	if parsed.Selector == "" {
		return discoveryResponse{}, fmt.Errorf("discovery response has no selector")
	}
	return parsed, nil
}

// resolveCandidates validates the primary selector and walks the
// alternatives on failure, decaying confidence by 0.9 per fallback.
// Uniqueness and visibility each add 0.1, clamped to [0,1].
func resolveCandidates(ctx context.Context, session browser.Session, extractor *dom.Extractor, parsed discoveryResponse, logger *slog.Logger) (*Result, error) {
	candidates := append([]string{parsed.Selector}, parsed.Alternatives...)
	confidence := parsed.Confidence

	for i, candidate := range candidates {
		if candidate == "" {
			confidence *= 0.9
			continue
		}
		validation, err := extractor.ValidateSelector(ctx, session, candidate)
		if err != nil {
			logger.Warn("Selector validation errored", "selector", candidate, "error", err)
			confidence *= 0.9
			continue
		}
		if !validation.Exists {
			confidence *= 0.9
			continue
		}

		scored := confidence
		if validation.IsUnique {
			scored += 0.1
		}
		if validation.IsVisible {
			scored += 0.1
		}
		scored = clamp01(scored)

		// the unused candidates become the alternatives
		rest := remainderOf(candidates, i)
		return &Result{
			Selector:     candidate,
			Confidence:   scored,
			Alternatives: rest,
			ElementInfo:  parsed.ElementInfo,
		}, nil
	}
	return nil, fmt.Errorf("no discovery candidate resolved on the page (tried %d)", len(candidates))
}

// remainderOf returns every candidate except the chosen index, order kept
func remainderOf(candidates []string, chosen int) []string {
	var out []string
	for i, c := range candidates {
		if i != chosen && c != "" && c != candidates[chosen] {
			out = append(out, c)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
