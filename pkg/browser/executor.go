package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyager-qa/voyager/pkg/models"
)

const defaultWaitDuration = time.Second

// Executor drives one Session through plan steps, recording a snapshot of
// the observable page state after every action.
type Executor struct {
	session Session
	logger  *slog.Logger

	// CaptureScreenshots embeds a JPEG screenshot in every snapshot so the
	// verifier can use vision models. Disabled for lightweight runs.
	CaptureScreenshots bool
}

// NewExecutor creates an executor owning the given session
func NewExecutor(session Session) *Executor {
	return &Executor{
		session:            session,
		logger:             slog.Default().With("component", "browser-executor"),
		CaptureScreenshots: true,
	}
}

// Session exposes the underlying page handle for discovery and refinement.
// Callers must not close it; the executor owns the session lifetime.
func (e *Executor) Session() Session {
	return e.session
}

// Cleanup releases the browser session. Safe to call once per run.
func (e *Executor) Cleanup(ctx context.Context) error {
	return e.session.Close(ctx)
}

// Execute performs one step's action and returns its result. Action
// failures are reported in the result status, never as a panic or a lost
// step; the orchestrator decides whether to recover.
func (e *Executor) Execute(ctx context.Context, step models.Step) models.ExecutionResult {
	result := models.ExecutionResult{
		StepID:      step.ID,
		Description: step.Description,
		Status:      models.ResultStatusSuccess,
	}

	var typedValue, inputSelector string
	err := func() error {
		switch step.Action.Name {
		case "navigate":
			url := step.Action.StringArg("url")
			if url == "" {
				url = step.Action.StringArg("value")
			}
			if url == "" {
				return fmt.Errorf("navigate step %s: url argument is required", step.ID)
			}
			return e.session.Navigate(ctx, url)

		case "click":
			selector := step.Action.StringArg("selector")
			if selector == "" {
				return fmt.Errorf("click step %s: selector argument is required", step.ID)
			}
			return e.session.Click(ctx, selector)

		case "type":
			selector := step.Action.StringArg("selector")
			value := step.Action.StringArg("value")
			if selector == "" {
				return fmt.Errorf("type step %s: selector argument is required", step.ID)
			}
			if err := e.session.Type(ctx, selector, value); err != nil {
				return err
			}
			inputSelector = selector
			typedValue = e.readBack(ctx, selector, value)
			return nil

		case "hover":
			selector := step.Action.StringArg("selector")
			if selector == "" {
				return fmt.Errorf("hover step %s: selector argument is required", step.ID)
			}
			return e.session.Hover(ctx, selector)

		case "scroll":
			dx, _ := step.Action.FloatArg("deltaX")
			dy, ok := step.Action.FloatArg("deltaY")
			if !ok {
				dy = 600
				if step.Action.StringArg("direction") == "up" {
					dy = -600
				}
				if amount, ok := step.Action.FloatArg("amount"); ok {
					if dy < 0 {
						dy = -amount
					} else {
						dy = amount
					}
				}
			}
			return e.session.Scroll(ctx, int(dx), int(dy))

		case "wait":
			return e.wait(ctx, step)

		default:
			if step.Action.IsVerify() {
				passed, detail, err := e.runVerify(ctx, step)
				if err != nil {
					return err
				}
				if !passed {
					result.Status = models.ResultStatusFailure
					result.Error = detail
				}
				return nil
			}
			return fmt.Errorf("unknown action %q in step %s", step.Action.Name, step.ID)
		}
	}()

	if err != nil {
		result.Status = models.ResultStatusFailure
		result.Error = err.Error()
		e.logger.Warn("Step action failed",
			"step_id", step.ID, "action", step.Action.Name, "error", err)
	}

	result.Snapshot = e.snapshot(ctx, typedValue, inputSelector)
	return result
}

// wait pauses for the requested duration, or for network idle when the
// step asks for it
func (e *Executor) wait(ctx context.Context, step models.Step) error {
	if step.Action.StringArg("for") == "networkidle" {
		return e.session.WaitForNetworkIdle(ctx, 5*time.Second)
	}
	d := defaultWaitDuration
	if seconds, ok := step.Action.FloatArg("seconds"); ok {
		d = time.Duration(seconds * float64(time.Second))
	} else if millis, ok := step.Action.FloatArg("milliseconds"); ok {
		d = time.Duration(millis) * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readBack reads the typed element's live value so the snapshot reflects
// what the page actually holds, not just what was sent
func (e *Executor) readBack(ctx context.Context, selector, fallback string) string {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  return JSON.stringify(el ? (el.value !== undefined ? String(el.value) : el.textContent) : null);
})()`, jsString(selector))

	raw, err := e.session.Evaluate(ctx, script)
	if err != nil {
		return fallback
	}
	var value *string
	if err := json.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		return fallback
	}
	return *value
}

// snapshot records the page state after a step. Every field degrades
// independently; a broken page still yields a timestamped snapshot.
func (e *Executor) snapshot(ctx context.Context, typedValue, inputSelector string) *models.Snapshot {
	snap := &models.Snapshot{Timestamp: time.Now().UTC()}
	snap.Metadata.TypedValue = typedValue
	snap.Metadata.InputSelector = inputSelector

	if url, err := e.session.URL(ctx); err == nil {
		snap.Metadata.URL = url
	}
	if html, err := e.session.HTML(ctx); err == nil {
		snap.Metadata.HTMLLength = len(html)
	}
	if e.CaptureScreenshots {
		data, err := e.session.Screenshot(ctx, ScreenshotOptions{Format: "jpeg", Quality: 60})
		if err != nil {
			e.logger.Warn("Screenshot capture failed", "error", err)
		} else if len(data) > 0 {
			snap.Metadata.ScreenshotBase64 = base64.StdEncoding.EncodeToString(data)
		}
	}
	return snap
}
