package prompt

import (
	"fmt"

	"github.com/voyager-qa/voyager/pkg/llm"
)

// PlannerMessages builds the initial plan-synthesis conversation
func PlannerMessages(scenario string) []llm.Message {
	return []llm.Message{
		llm.SystemText(plannerSystem),
		llm.UserText(fmt.Sprintf(plannerUserTemplate, scenario)),
	}
}

// PlanNameMessages builds the short plan-name request
func PlanNameMessages(scenario string) []llm.Message {
	return []llm.Message{
		llm.SystemText(planNameSystem),
		llm.UserText(scenario),
	}
}

// DiscoveryMessages builds the DOM-analysis discovery conversation
func DiscoveryMessages(description, actionType, domSummary string) []llm.Message {
	return []llm.Message{
		llm.SystemText(discoverySystem),
		llm.UserText(fmt.Sprintf(discoveryUserTemplate, actionType, description, domSummary)),
	}
}

// VisionDiscoveryMessages builds the hybrid screenshot+DOM conversation.
// screenshotDataURL is a base64 data URL.
func VisionDiscoveryMessages(description, domSummary, screenshotDataURL string) []llm.Message {
	return []llm.Message{
		llm.SystemText(visionDiscoverySystem),
		{
			Role: llm.RoleUser,
			Parts: []llm.ContentPart{
				{Type: llm.PartTypeText, Text: fmt.Sprintf(visionDiscoveryUserTemplate, description, domSummary)},
				{Type: llm.PartTypeImageURL, ImageURL: &llm.ImageURL{URL: screenshotDataURL, Detail: "high"}},
			},
		},
	}
}

// RefinePlanMessages builds the whole-plan refinement conversation
func RefinePlanMessages(planJSON, resultsJSON, domSummary string) []llm.Message {
	return []llm.Message{
		llm.SystemText(refinePlanSystem),
		llm.UserText(fmt.Sprintf(refinePlanUserTemplate, planJSON, resultsJSON, domSummary)),
	}
}

// RefineStepMessages builds the single-step refinement conversation
func RefineStepMessages(stepJSON, resultsJSON, domSummary string) []llm.Message {
	return []llm.Message{
		llm.SystemText(refineStepSystem),
		llm.UserText(fmt.Sprintf(refineStepUserTemplate, stepJSON, resultsJSON, domSummary)),
	}
}

// AdaptPlanMessages builds the failure-recovery conversation
func AdaptPlanMessages(stepJSON, failure, discoveredSelector, domSummary string) []llm.Message {
	return []llm.Message{
		llm.SystemText(adaptPlanSystem),
		llm.UserText(fmt.Sprintf(adaptPlanUserTemplate, stepJSON, failure, discoveredSelector, domSummary)),
	}
}

// VerifyMessages builds the step-verification conversation, attaching the
// screenshot when one was captured
func VerifyMessages(stepJSON, snapshotJSON, screenshotDataURL string) []llm.Message {
	return verificationMessages(fmt.Sprintf(verifyUserTemplate, stepJSON, snapshotJSON), screenshotDataURL)
}

// AssertionMessages builds the final-assertion conversation
func AssertionMessages(assertion, snapshotJSON, screenshotDataURL string) []llm.Message {
	return verificationMessages(fmt.Sprintf(assertionUserTemplate, assertion, snapshotJSON), screenshotDataURL)
}

func verificationMessages(userText, screenshotDataURL string) []llm.Message {
	if screenshotDataURL == "" {
		return []llm.Message{
			llm.SystemText(verifySystem),
			llm.UserText(userText),
		}
	}
	return []llm.Message{
		llm.SystemText(verifySystem),
		{
			Role: llm.RoleUser,
			Parts: []llm.ContentPart{
				{Type: llm.PartTypeText, Text: userText},
				{Type: llm.PartTypeImageURL, ImageURL: &llm.ImageURL{URL: screenshotDataURL, Detail: "high"}},
			},
		},
	}
}
