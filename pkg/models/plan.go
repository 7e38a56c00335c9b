package models

import (
	"strings"
	"time"
)

// PlanPhase tracks how far a plan has drifted from its initial synthesis
type PlanPhase string

const (
	// PlanPhaseInitial is a freshly synthesized plan, untouched by refinement
	PlanPhaseInitial PlanPhase = "initial"
	// PlanPhaseRefined is set once any step has been re-planned against the live DOM
	PlanPhaseRefined PlanPhase = "refined"
	// PlanPhaseAdaptive is set when a plan was rewritten to recover from a failed step
	PlanPhaseAdaptive PlanPhase = "adaptive"
)

// IsValid checks if the plan phase is valid
func (p PlanPhase) IsValid() bool {
	return p == PlanPhaseInitial || p == PlanPhaseRefined || p == PlanPhaseAdaptive
}

// Action is the atomic browser intent carried by a step.
// Name is one of navigate, click, type, hover, scroll, wait, or a
// verify_<target>_<operation> form (see ParseVerifyAction).
type Action struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// StringArg returns the named argument if present and a string
func (a Action) StringArg(key string) string {
	if a.Arguments == nil {
		return ""
	}
	if v, ok := a.Arguments[key].(string); ok {
		return v
	}
	return ""
}

// FloatArg returns the named argument as a float64. JSON decoding yields
// float64 for all numbers; int is accepted for values built in code.
func (a Action) FloatArg(key string) (float64, bool) {
	if a.Arguments == nil {
		return 0, false
	}
	switch v := a.Arguments[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// IsVerify reports whether the action is a verify_<target>_<operation> form
func (a Action) IsVerify() bool {
	return strings.HasPrefix(a.Name, "verify_")
}

// Interactive reports whether the action manipulates a concrete element.
// Interaction steps are click, type, hover, and verify_element.
func (a Action) Interactive() bool {
	switch a.Name {
	case "click", "type", "hover":
		return true
	}
	return strings.HasPrefix(a.Name, "verify_element")
}

// ElementDiscoveryInfo records how a step's selector was rediscovered
type ElementDiscoveryInfo struct {
	Strategy     string    `json:"strategy"`
	Confidence   float64   `json:"confidence"`
	Alternatives []string  `json:"alternatives,omitempty"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// Step is one atomic intent within a plan. OriginalSelector, ElementDiscovery
// and RetryCount are only populated once a step has been refined or recovered.
type Step struct {
	ID               string                `json:"id"`
	Description      string                `json:"description"`
	Action           Action                `json:"action"`
	Assertion        string                `json:"assertion,omitempty"`
	OriginalSelector string                `json:"originalSelector,omitempty"`
	ElementDiscovery *ElementDiscoveryInfo `json:"elementDiscovery,omitempty"`
	RetryCount       int                   `json:"retryCount,omitempty"`
}

// Clone returns a deep copy of the step, including its arguments map
func (s Step) Clone() Step {
	out := s
	if s.Action.Arguments != nil {
		out.Action.Arguments = make(map[string]any, len(s.Action.Arguments))
		for k, v := range s.Action.Arguments {
			out.Action.Arguments[k] = v
		}
	}
	if s.ElementDiscovery != nil {
		ed := *s.ElementDiscovery
		ed.Alternatives = append([]string(nil), s.ElementDiscovery.Alternatives...)
		out.ElementDiscovery = &ed
	}
	return out
}

// RefinementRecord is one append-only entry in a plan's refinement history
type RefinementRecord struct {
	StepID    string    `json:"stepId"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Strategy  string    `json:"strategy"`
}

// Plan is an ordered sequence of steps realizing one scenario.
// ID and ScenarioID are immutable after creation; RefinementHistory is append-only.
type Plan struct {
	ID                string             `json:"id"`
	ScenarioID        string             `json:"scenarioId"`
	Scenario          string             `json:"scenario,omitempty"`
	Name              string             `json:"name"`
	Phase             PlanPhase          `json:"phase"`
	Steps             []Step             `json:"steps"`
	RefinementHistory []RefinementRecord `json:"refinementHistory,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// Clone returns a deep copy so refinement never mutates a shared plan
func (p *Plan) Clone() *Plan {
	out := *p
	out.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		out.Steps[i] = s.Clone()
	}
	out.RefinementHistory = append([]RefinementRecord(nil), p.RefinementHistory...)
	return &out
}

// StepByID returns the step with the given id and its index, or -1 if absent
func (p *Plan) StepByID(id string) (*Step, int) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], i
		}
	}
	return nil, -1
}

// StepIDs returns the ordered ids of all steps
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// AppendRefinement records one refinement decision against the plan
func (p *Plan) AppendRefinement(stepID, reason, strategy string) {
	p.RefinementHistory = append(p.RefinementHistory, RefinementRecord{
		StepID:    stepID,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
		Strategy:  strategy,
	})
}
