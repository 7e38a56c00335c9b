package browser

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubSession is a scripted Session for tests and dry runs. Zero value is
// usable: every action succeeds against an empty page. Failures are
// injected per selector; Evaluate is scripted via EvaluateFunc.
type StubSession struct {
	mu sync.Mutex

	CurrentURL string
	PageTitle  string
	PageHTML   string

	// NavigateErr fails every Navigate call when set
	NavigateErr error
	// FailSelectors maps a selector to the error its click/type/hover returns
	FailSelectors map[string]error
	// EvaluateFunc scripts Evaluate responses. Nil returns "null".
	EvaluateFunc func(script string) (string, error)
	// ScreenshotData is returned by Screenshot; nil yields an empty capture
	ScreenshotData []byte

	typed  map[string]string
	calls  []string
	closed bool
}

// NewStubSession creates a stub positioned at the given URL
func NewStubSession(url string) *StubSession {
	return &StubSession{CurrentURL: url}
}

func (s *StubSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

// Calls returns every action performed, in order
func (s *StubSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// TypedValue returns what was last typed into the selector
func (s *StubSession) TypedValue(selector string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed[selector]
}

// Closed reports whether Close was called
func (s *StubSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *StubSession) selectorErr(selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSelectors == nil {
		return nil
	}
	return s.FailSelectors[selector]
}

func (s *StubSession) Navigate(ctx context.Context, url string) error {
	s.record("navigate " + url)
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.mu.Lock()
	s.CurrentURL = url
	s.mu.Unlock()
	return nil
}

func (s *StubSession) Click(ctx context.Context, selector string) error {
	s.record("click " + selector)
	if err := s.selectorErr(selector); err != nil {
		return err
	}
	return nil
}

func (s *StubSession) Type(ctx context.Context, selector, value string) error {
	s.record(fmt.Sprintf("type %s=%s", selector, value))
	if err := s.selectorErr(selector); err != nil {
		return err
	}
	s.mu.Lock()
	if s.typed == nil {
		s.typed = make(map[string]string)
	}
	s.typed[selector] = value
	s.mu.Unlock()
	return nil
}

func (s *StubSession) Hover(ctx context.Context, selector string) error {
	s.record("hover " + selector)
	return s.selectorErr(selector)
}

func (s *StubSession) Scroll(ctx context.Context, deltaX, deltaY int) error {
	s.record(fmt.Sprintf("scroll %d,%d", deltaX, deltaY))
	return nil
}

func (s *StubSession) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	s.record("networkidle")
	return nil
}

func (s *StubSession) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CurrentURL, nil
}

func (s *StubSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageTitle, nil
}

func (s *StubSession) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageHTML, nil
}

func (s *StubSession) Evaluate(ctx context.Context, script string) (string, error) {
	s.record("evaluate")
	if s.EvaluateFunc != nil {
		return s.EvaluateFunc(script)
	}
	return "null", nil
}

func (s *StubSession) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	s.record("screenshot")
	return s.ScreenshotData, nil
}

func (s *StubSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
