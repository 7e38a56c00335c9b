// Package verifier judges whether executed steps achieved their intent.
// Deterministic outcomes (navigation, typed values, DOM-level checks) are
// decided locally; everything else is judged by the LLM against the
// post-step snapshot.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/voyager-qa/voyager/pkg/llm"
	"github.com/voyager-qa/voyager/pkg/models"
	"github.com/voyager-qa/voyager/pkg/prompt"
)

// Verifier checks step outcomes and final assertions
type Verifier struct {
	provider llm.Provider
	models   llm.ModelSet
	logger   *slog.Logger
}

// NewVerifier creates a verifier
func NewVerifier(client *llm.Client) *Verifier {
	return &Verifier{
		provider: client.Provider,
		models:   client.Models,
		logger:   slog.Default().With("component", "verifier"),
	}
}

// verifyResponse is the JSON shape of LLM verification
type verifyResponse struct {
	IsVerified bool   `json:"isVerified"`
	Evidence   string `json:"evidence"`
}

// VerifyStep judges one executed step. Navigation, typed values, and
// passed DOM-level verifications short-circuit without an LLM call.
func (v *Verifier) VerifyStep(ctx context.Context, step models.Step, result models.ExecutionResult) (models.Verification, error) {
	switch {
	case step.Action.Name == "navigate":
		if result.Status == models.ResultStatusSuccess {
			url := ""
			if result.Snapshot != nil {
				url = result.Snapshot.Metadata.URL
			}
			return models.Verification{
				IsVerified: true,
				Evidence:   fmt.Sprintf("Navigation successful: Page loaded at %s", url),
			}, nil
		}
		return models.Verification{
			IsVerified: false,
			Evidence:   fmt.Sprintf("Navigation failed: %s", result.Error),
		}, nil

	case step.Action.Name == "type":
		expected := step.Action.StringArg("value")
		typed := ""
		if result.Snapshot != nil {
			typed = result.Snapshot.Metadata.TypedValue
		}
		if result.Status == models.ResultStatusSuccess && typed == expected {
			return models.Verification{
				IsVerified: true,
				Evidence:   fmt.Sprintf("Typed value matches: %q", typed),
			}, nil
		}
		return models.Verification{
			IsVerified: false,
			Evidence:   fmt.Sprintf("Typed value mismatch: expected %q, found %q", expected, typed),
		}, nil

	case step.Action.IsVerify() && result.Status == models.ResultStatusSuccess:
		// the DOM-level check already passed
		return models.Verification{
			IsVerified: true,
			Evidence:   fmt.Sprintf("DOM verification %s passed", step.Action.Name),
		}, nil
	}

	return v.verifyViaLLM(ctx, step, result)
}

// VerifyAssertions judges each natural-language assertion against the
// final snapshot. The returned slice is index-aligned with the input.
func (v *Verifier) VerifyAssertions(ctx context.Context, assertions []string, lastResult models.ExecutionResult) ([]models.Verification, error) {
	snapshotJSON, screenshot := snapshotEvidence(lastResult)
	if !v.provider.SupportsVision() {
		screenshot = ""
	}
	out := make([]models.Verification, 0, len(assertions))
	for _, assertion := range assertions {
		verification, err := v.judge(ctx, prompt.AssertionMessages(assertion, snapshotJSON, screenshot))
		if err != nil {
			return nil, fmt.Errorf("verifying assertion %q: %w", assertion, err)
		}
		out = append(out, verification)
	}
	return out, nil
}

func (v *Verifier) verifyViaLLM(ctx context.Context, step models.Step, result models.ExecutionResult) (models.Verification, error) {
	stepJSON, err := json.Marshal(step)
	if err != nil {
		return models.Verification{}, fmt.Errorf("encoding step: %w", err)
	}
	snapshotJSON, screenshot := snapshotEvidence(result)
	if !v.provider.SupportsVision() {
		screenshot = ""
	}
	verification, err := v.judge(ctx, prompt.VerifyMessages(string(stepJSON), snapshotJSON, screenshot))
	if err != nil {
		return models.Verification{}, fmt.Errorf("verifying step %s: %w", step.ID, err)
	}
	return verification, nil
}

func (v *Verifier) judge(ctx context.Context, messages []llm.Message) (models.Verification, error) {
	model := v.models.Default
	if hasImagePart(messages) {
		model = v.models.VisionModel()
	}
	resp, err := v.provider.CreateChatCompletion(ctx, llm.Request{
		Model:          model,
		Messages:       messages,
		Temperature:    0.1,
		ResponseFormat: &llm.ResponseFormat{Type: llm.ResponseFormatJSON},
	})
	if err != nil {
		return models.Verification{}, err
	}
	var parsed verifyResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Content)), &parsed); err != nil {
		return models.Verification{}, llm.NewProviderError(v.provider.Name(), "verification response is not valid JSON", err)
	}
	return models.Verification{IsVerified: parsed.IsVerified, Evidence: parsed.Evidence}, nil
}

// snapshotEvidence splits a result's snapshot into the textual part and
// the screenshot data URL. Screenshots are only attached when the
// provider can see them.
func snapshotEvidence(result models.ExecutionResult) (snapshotJSON, screenshotDataURL string) {
	if result.Snapshot == nil {
		return "{}", ""
	}
	snap := *result.Snapshot
	if snap.Metadata.ScreenshotBase64 != "" {
		screenshotDataURL = "data:image/jpeg;base64," + snap.Metadata.ScreenshotBase64
		snap.Metadata.ScreenshotBase64 = ""
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "{}", screenshotDataURL
	}
	return string(data), screenshotDataURL
}

func hasImagePart(messages []llm.Message) bool {
	for _, m := range messages {
		for _, p := range m.Parts {
			if p.Type == llm.PartTypeImageURL {
				return true
			}
		}
	}
	return false
}
