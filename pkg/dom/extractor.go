// Package dom produces compact structural summaries of the current page
// for LLM consumption and validates candidate selectors. All heavy lifting
// happens inside one in-page script per call, so each operation costs a
// single browser round-trip.
package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/voyager-qa/voyager/pkg/browser"
)

// ExtractOptions controls summary size and content
type ExtractOptions struct {
	MaxElements       int
	IncludePosition   bool
	IncludeContainers bool
}

// DefaultExtractOptions matches the planner prompts' expectations
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		MaxElements:       200,
		IncludePosition:   false,
		IncludeContainers: true,
	}
}

// ValidationResult describes how a selector resolves on the live page
type ValidationResult struct {
	Exists    bool `json:"exists"`
	IsUnique  bool `json:"isUnique"`
	IsVisible bool `json:"isVisible"`
	Count     int  `json:"count"`
}

// SelectorChoice is the outcome of picking the best candidate selector
type SelectorChoice struct {
	Selector   string           `json:"selector,omitempty"`
	Confidence float64          `json:"confidence"`
	Validation ValidationResult `json:"validation"`
}

// Extractor evaluates summary and validation scripts against a page
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor
func NewExtractor() *Extractor {
	return &Extractor{logger: slog.Default().With("component", "dom-extractor")}
}

// Extract returns a JSON array string summarizing interactive and semantic
// elements. Extraction failures degrade to "[]" so callers never block on
// a broken page.
func (x *Extractor) Extract(ctx context.Context, session browser.Session, opts ExtractOptions) string {
	if opts.MaxElements <= 0 {
		opts.MaxElements = 200
	}

	script := fmt.Sprintf(extractScript,
		opts.IncludeContainers, opts.MaxElements, opts.IncludePosition, opts.IncludePosition)
	raw, err := session.Evaluate(ctx, script)
	if err != nil {
		x.logger.Warn("DOM extraction failed, returning empty summary", "error", err)
		return "[]"
	}
	// sanity check: the script must have produced a JSON array
	var probe []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		x.logger.Warn("DOM extraction returned malformed summary", "error", err)
		return "[]"
	}
	return raw
}

// ValidateSelector resolves a selector against the page. Visibility is
// checked on the first match only.
func (x *Extractor) ValidateSelector(ctx context.Context, session browser.Session, selector string) (ValidationResult, error) {
	script := fmt.Sprintf(validateScript, jsString(selector))
	raw, err := session.Evaluate(ctx, script)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("selector validation failed: %w", err)
	}
	var result ValidationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ValidationResult{}, fmt.Errorf("selector validation returned malformed result: %w", err)
	}
	return result, nil
}

// BestSelector walks the candidates in order and returns the first that
// exists and is visible, scored 0.7 + 0.2 for uniqueness + 0.1 for
// visibility, clamped to 1.
func (x *Extractor) BestSelector(ctx context.Context, session browser.Session, candidates []string) SelectorChoice {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		validation, err := x.ValidateSelector(ctx, session, candidate)
		if err != nil {
			x.logger.Warn("Candidate selector validation errored", "selector", candidate, "error", err)
			continue
		}
		if !validation.Exists || !validation.IsVisible {
			continue
		}
		confidence := 0.7
		if validation.IsUnique {
			confidence += 0.2
		}
		if validation.IsVisible {
			confidence += 0.1
		}
		if confidence > 1 {
			confidence = 1
		}
		return SelectorChoice{Selector: candidate, Confidence: confidence, Validation: validation}
	}
	return SelectorChoice{}
}

func jsString(s string) string {
	return strconv.Quote(s)
}
