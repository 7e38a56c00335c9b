// Package browser defines the browser-session capability consumed by the
// orchestrator, the step executor that drives it, and a scripted stub for
// tests and dry runs. A Session is exclusively owned by one orchestrator
// run and must be closed on every exit path.
package browser

import (
	"context"
	"time"
)

// ScreenshotOptions controls capture format. Quality applies to jpeg only.
type ScreenshotOptions struct {
	Format  string // "jpeg" or "png"
	Quality int    // 1..100, jpeg only
}

// Session is the capability handle for one live browser page. All calls may
// suspend; implementations are driven by a headless browser out of process.
type Session interface {
	// Navigate loads the URL and waits for the load event
	Navigate(ctx context.Context, url string) error
	// Click clicks the first element matching the selector
	Click(ctx context.Context, selector string) error
	// Type focuses the element and replaces its value
	Type(ctx context.Context, selector, value string) error
	// Hover moves the pointer over the element
	Hover(ctx context.Context, selector string) error
	// Scroll scrolls the page by the given pixel deltas
	Scroll(ctx context.Context, deltaX, deltaY int) error
	// WaitForNetworkIdle blocks until the page has no in-flight requests
	// or the timeout elapses
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error
	// URL returns the current page URL
	URL(ctx context.Context) (string, error)
	// Title returns the current document title
	Title(ctx context.Context) (string, error)
	// HTML returns the full page markup
	HTML(ctx context.Context) (string, error)
	// Evaluate runs a script in the page and returns its string result.
	// Scripts are expected to JSON.stringify structured payloads themselves.
	Evaluate(ctx context.Context, script string) (string, error)
	// Screenshot captures the viewport
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	// Close releases the page and its browser resources
	Close(ctx context.Context) error
}

// Factory creates a fresh session for one orchestrator run
type Factory func(ctx context.Context) (Session, error)
