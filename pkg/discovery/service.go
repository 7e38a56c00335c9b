// Package discovery maps natural-language element descriptions to concrete
// CSS selectors. Strategies run in parallel and report confidence-scored
// results; the service aggregates them, preferring vision output for
// semantic page regions.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/voyager-qa/voyager/pkg/browser"
)

// Result is one strategy's answer for a description
type Result struct {
	Selector     string         `json:"selector"`
	Confidence   float64        `json:"confidence"`
	Alternatives []string       `json:"alternatives,omitempty"`
	ElementInfo  map[string]any `json:"elementInfo,omitempty"`
	Strategy     string         `json:"strategy"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Strategy locates an element on the live page. A nil result with a nil
// error means the strategy has nothing to offer for this description.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, session browser.Session, description, actionType string) (*Result, error)
}

// NoStrategyError is returned when every strategy failed or abstained
type NoStrategyError struct {
	Description string
	Attempted   []string
}

func (e *NoStrategyError) Error() string {
	return fmt.Sprintf("no strategy could locate %q (attempted: %s)",
		e.Description, strings.Join(e.Attempted, ", "))
}

// IsNoStrategyError checks if the error is a NoStrategyError
func IsNoStrategyError(err error) bool {
	var target *NoStrategyError
	return errors.As(err, &target)
}

// Service aggregates results from its registered strategies
type Service struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewService creates a discovery service over the given strategies, tried
// in registration order when priorities tie
func NewService(strategies ...Strategy) *Service {
	return &Service{
		strategies: strategies,
		logger:     slog.Default().With("component", "element-discovery"),
	}
}

// Discover locates the element for a description. Semantic-concept
// descriptions go to the vision strategy first; otherwise every strategy
// runs in parallel and the highest-confidence result wins. Alternatives
// are the union of every strategy's selectors minus the chosen primary.
func (s *Service) Discover(ctx context.Context, session browser.Session, description, actionType string) (*Result, error) {
	if len(s.strategies) == 0 {
		return nil, &NoStrategyError{Description: description}
	}

	semantic := IsSemanticConcept(description)
	if semantic {
		if vision := s.strategyByName(StrategyVisionAI); vision != nil {
			result, err := vision.Discover(ctx, session, description, actionType)
			if err != nil {
				s.logger.Warn("Vision strategy failed for semantic concept, falling back",
					"description", description, "error", err)
			} else if result != nil {
				result.Strategy = vision.Name()
				return result, nil
			}
		}
	}

	results := s.fanOut(ctx, session, description, actionType)
	if len(results) == 0 {
		return nil, &NoStrategyError{Description: description, Attempted: s.strategyNames()}
	}

	// vision answers win for semantic regions; confidence decides the rest
	sort.SliceStable(results, func(i, j int) bool {
		if semantic && (results[i].Strategy == StrategyVisionAI) != (results[j].Strategy == StrategyVisionAI) {
			return results[i].Strategy == StrategyVisionAI
		}
		return results[i].Confidence > results[j].Confidence
	})

	best := results[0]
	best.Alternatives = unionAlternatives(results, best.Selector)
	return best, nil
}

// FindAlternatives rediscovers the element a failed selector pointed at and
// returns replacement candidates, the primary first
func (s *Service) FindAlternatives(ctx context.Context, session browser.Session, failedSelector, description string) ([]string, error) {
	result, err := s.Discover(ctx, session, description, "click")
	if err != nil {
		return nil, err
	}
	candidates := append([]string{result.Selector}, result.Alternatives...)
	out := candidates[:0:0]
	for _, c := range candidates {
		if c != failedSelector {
			out = append(out, c)
		}
	}
	return out, nil
}

// fanOut runs every strategy concurrently and collects the successes. One
// strategy's failure never poisons the others.
func (s *Service) fanOut(ctx context.Context, session browser.Session, description, actionType string) []*Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*Result
	)
	for _, strategy := range s.strategies {
		wg.Add(1)
		go func(strategy Strategy) {
			defer wg.Done()
			result, err := strategy.Discover(ctx, session, description, actionType)
			if err != nil {
				s.logger.Warn("Discovery strategy failed",
					"strategy", strategy.Name(), "description", description, "error", err)
				return
			}
			if result == nil {
				return
			}
			result.Strategy = strategy.Name()
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(strategy)
	}
	wg.Wait()
	return results
}

func (s *Service) strategyByName(name string) Strategy {
	for _, strategy := range s.strategies {
		if strategy.Name() == name {
			return strategy
		}
	}
	return nil
}

func (s *Service) strategyNames() []string {
	names := make([]string, len(s.strategies))
	for i, strategy := range s.strategies {
		names[i] = strategy.Name()
	}
	return names
}

// unionAlternatives merges every result's selector and alternatives,
// deduplicated in first-seen order, excluding the primary
func unionAlternatives(results []*Result, primary string) []string {
	seen := map[string]bool{primary: true, "": true}
	var out []string
	for _, r := range results {
		for _, candidate := range append([]string{r.Selector}, r.Alternatives...) {
			if !seen[candidate] {
				seen[candidate] = true
				out = append(out, candidate)
			}
		}
	}
	return out
}
