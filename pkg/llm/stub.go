package llm

import (
	"context"
	"sync"
)

// StubProvider is a scripted Provider for tests and local dry runs.
// Responses are served from the queue in order; when the queue is empty,
// RespondFunc is consulted; when both are unset, calls fail with
// ErrEmptyCompletion.
type StubProvider struct {
	mu sync.Mutex

	// Queue holds canned response contents, served FIFO
	Queue []string
	// Errs holds errors interleaved with the queue: a non-nil entry at the
	// head is returned instead of a response
	Errs []error
	// RespondFunc scripts responses once the queue is exhausted
	RespondFunc func(req Request) (*Response, error)
	// Vision toggles SupportsVision for strategy-routing tests
	Vision bool

	requests []Request
}

// Name identifies the provider
func (s *StubProvider) Name() string { return "stub" }

// SupportsVision reports the scripted vision capability
func (s *StubProvider) SupportsVision() bool { return s.Vision }

// SupportsJSONMode is always true; the stub echoes scripted content
func (s *StubProvider) SupportsJSONMode() bool { return true }

// ValidateConnection always succeeds
func (s *StubProvider) ValidateConnection(ctx context.Context) error { return nil }

// AvailableModels returns a single stub model
func (s *StubProvider) AvailableModels() []string { return []string{"stub-model"} }

// CreateChatCompletion serves the next scripted response
func (s *StubProvider) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)

	if len(s.Errs) > 0 {
		err := s.Errs[0]
		s.Errs = s.Errs[1:]
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	if len(s.Queue) > 0 {
		content := s.Queue[0]
		s.Queue = s.Queue[1:]
		s.mu.Unlock()
		if req.WantsJSON() {
			content = StripCodeFences(content)
		}
		return &Response{Content: content, Role: RoleAssistant, Model: "stub-model"}, nil
	}
	respond := s.RespondFunc
	s.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return nil, NewProviderError("stub", "no scripted response", ErrEmptyCompletion)
}

// Requests returns every request seen, in order
func (s *StubProvider) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent request, or a zero Request
func (s *StubProvider) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}
	}
	return s.requests[len(s.requests)-1]
}

// CallCount returns how many completions were requested
func (s *StubProvider) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
