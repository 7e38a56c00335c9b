package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/voyager-qa/voyager/pkg/models"
)

// verifyOutcome is the JSON shape returned by the in-page verification script
type verifyOutcome struct {
	Passed bool   `json:"passed"`
	Actual string `json:"actual"`
}

// runVerify evaluates a verify_<target>_<operation> action against the live
// DOM. The boolean result carries a human-readable detail for failures.
func (e *Executor) runVerify(ctx context.Context, step models.Step) (bool, string, error) {
	spec, err := models.ParseVerifyAction(step.Action.Name)
	if err != nil {
		return false, "", err
	}

	expected := step.Action.StringArg("value")
	if expected == "" {
		expected = step.Action.StringArg("text")
	}
	selector := step.Action.StringArg("selector")
	if spec.Target == models.VerifyTargetElement && selector == "" {
		return false, "", fmt.Errorf("verify step %s: element target requires a selector argument", step.ID)
	}

	script, err := buildVerifyScript(spec, expected, selector)
	if err != nil {
		return false, "", err
	}

	raw, err := e.session.Evaluate(ctx, script)
	if err != nil {
		return false, "", fmt.Errorf("verification script failed: %w", err)
	}
	var outcome verifyOutcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return false, "", fmt.Errorf("verification script returned malformed result: %w", err)
	}

	passed := outcome.Passed != spec.Negated
	if passed {
		return true, "", nil
	}
	return false, fmt.Sprintf("%s check failed: expected %s %q, got %q",
		step.Action.Name, spec.Operation, expected, outcome.Actual), nil
}

// targetExpr returns a JS expression yielding the candidate strings for a
// verification target, plus the selector the visibility/existence checks use
func targetExpr(spec models.VerifySpec, selector string) (string, string) {
	switch spec.Target {
	case models.VerifyTargetTitle:
		return `[document.title]`, ""
	case models.VerifyTargetURL:
		return `[location.href]`, ""
	case models.VerifyTargetText, models.VerifyTargetBody:
		return `[document.body ? document.body.innerText : '']`, "body"
	case models.VerifyTargetElement:
		return fmt.Sprintf(
			`Array.from(document.querySelectorAll(%s)).map(el => el.value !== undefined && el.value !== '' ? String(el.value) : (el.innerText || el.textContent || '').trim())`,
			jsString(selector)), selector
	case models.VerifyTargetHeading:
		sel := "h1,h2,h3,h4,h5,h6"
		return headingExpr(sel), sel
	case models.VerifyTargetLink:
		return textsOf("a"), "a"
	case models.VerifyTargetButton:
		sel := `button,[role=button],input[type=submit],input[type=button]`
		return fmt.Sprintf(
			`Array.from(document.querySelectorAll(%s)).map(el => ((el.innerText || el.textContent || el.value || '')+'').trim())`,
			jsString(sel)), sel
	case models.VerifyTargetInput:
		sel := "input,textarea,select"
		return fmt.Sprintf(
			`Array.from(document.querySelectorAll(%s)).map(el => String(el.value !== undefined ? el.value : ''))`,
			jsString(sel)), sel
	case models.VerifyTargetLabel:
		return textsOf("label"), "label"
	default:
		if level := spec.HeadingLevel(); level > 0 {
			sel := fmt.Sprintf("h%d", level)
			return headingExpr(sel), sel
		}
		return `[]`, ""
	}
}

func headingExpr(sel string) string {
	return textsOf(sel)
}

func textsOf(sel string) string {
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(el => (el.innerText || el.textContent || '').trim())`,
		jsString(sel))
}

// buildVerifyScript assembles an IIFE that evaluates the verification in a
// single round-trip and returns {passed, actual}
func buildVerifyScript(spec models.VerifySpec, expected, selector string) (string, error) {
	texts, visSelector := targetExpr(spec, selector)

	var predicate string
	switch spec.Operation {
	case models.VerifyOpContains:
		predicate = fmt.Sprintf(`t.includes(%s)`, jsString(expected))
	case models.VerifyOpEquals:
		predicate = fmt.Sprintf(`t === %s`, jsString(expected))
	case models.VerifyOpStartsWith:
		predicate = fmt.Sprintf(`t.startsWith(%s)`, jsString(expected))
	case models.VerifyOpEndsWith:
		predicate = fmt.Sprintf(`t.endsWith(%s)`, jsString(expected))
	case models.VerifyOpMatches:
		predicate = fmt.Sprintf(`new RegExp(%s).test(t)`, jsString(expected))
	case models.VerifyOpExists:
		if visSelector == "" {
			return "", fmt.Errorf("operation exists is not applicable to target %s", spec.Target)
		}
		return fmt.Sprintf(`(() => {
  const count = document.querySelectorAll(%s).length;
  return JSON.stringify({passed: count > 0, actual: count + " matches"});
})()`, jsString(visSelector)), nil
	case models.VerifyOpVisible:
		if visSelector == "" {
			return "", fmt.Errorf("operation visible is not applicable to target %s", spec.Target)
		}
		return fmt.Sprintf(`(() => {
  const els = Array.from(document.querySelectorAll(%s));
  const visible = els.some(el => {
    const style = window.getComputedStyle(el);
    const rect = el.getBoundingClientRect();
    return style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
  });
  return JSON.stringify({passed: visible, actual: els.length + " matches, visible=" + visible});
})()`, jsString(visSelector)), nil
	default:
		return "", fmt.Errorf("unknown verification operation %q", spec.Operation)
	}

	return fmt.Sprintf(`(() => {
  const texts = %s;
  const passed = texts.some(t => %s);
  return JSON.stringify({passed: passed, actual: texts.slice(0, 5).join(' | ').slice(0, 300)});
})()`, texts, predicate), nil
}

// jsString renders a Go string as a JS string literal. Go's quoted form is
// valid JS for the escapes strconv emits.
func jsString(s string) string {
	return strconv.Quote(s)
}

// VisibleFormPresent reports whether the page already exposes visible email
// and password inputs, or a form containing them. The orchestrator uses it
// to skip click-to-reveal steps whose target is already on screen.
func VisibleFormPresent(ctx context.Context, session Session) bool {
	const script = `(() => {
  const visible = el => {
    if (!el) return false;
    const style = window.getComputedStyle(el);
    const rect = el.getBoundingClientRect();
    return style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
  };
  const email = Array.from(document.querySelectorAll('input[type=email], input[name*=email i]')).some(visible);
  const password = Array.from(document.querySelectorAll('input[type=password]')).some(visible);
  if (email && password) return JSON.stringify({present: true});
  const form = Array.from(document.querySelectorAll('form')).some(f =>
    visible(f) && f.querySelector('input[type=email], input[type=password], input[name*=email i]'));
  return JSON.stringify({present: form});
})()`

	raw, err := session.Evaluate(ctx, script)
	if err != nil {
		return false
	}
	var out struct {
		Present bool `json:"present"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return false
	}
	return out.Present
}
