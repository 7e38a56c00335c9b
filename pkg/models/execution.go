package models

import "time"

// ExecutionStatus is the lifecycle state of one plan run
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ResultStatus is the outcome of a single executed step
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailure ResultStatus = "failure"
	ResultStatusError   ResultStatus = "error"
)

// SnapshotMetadata captures the observable page state after a step
type SnapshotMetadata struct {
	URL              string `json:"url,omitempty"`
	HTMLLength       int    `json:"html_length,omitempty"`
	TypedValue       string `json:"typedValue,omitempty"`
	InputSelector    string `json:"inputSelector,omitempty"`
	ScreenshotBase64 string `json:"screenshot_base64,omitempty"`
}

// Snapshot is the timestamped page state recorded with a step result
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Metadata  SnapshotMetadata `json:"metadata"`
}

// Verification is the judged outcome of a step or assertion check
type Verification struct {
	IsVerified bool   `json:"isVerified"`
	Evidence   string `json:"evidence"`
}

// ExecutionResult is the recorded outcome of one executed step
type ExecutionResult struct {
	StepID       string        `json:"stepId"`
	Description  string        `json:"description,omitempty"`
	Status       ResultStatus  `json:"status"`
	Snapshot     *Snapshot     `json:"snapshot,omitempty"`
	Error        string        `json:"error,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
}

// ReportSummary is the final verdict of a run
type ReportSummary struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
}

// Report is the full outcome of one orchestrated run
type Report struct {
	TestID     string            `json:"testId,omitempty"`
	ScenarioID string            `json:"scenarioId"`
	PlanID     string            `json:"planId,omitempty"`
	Results    []ExecutionResult `json:"results"`
	Summary    ReportSummary     `json:"summary"`
}

// Execution is the runtime state of one plan run. Once Status is terminal
// the record is immutable.
type Execution struct {
	TestID      string            `json:"testId"`
	ScenarioID  string            `json:"scenarioId"`
	Scenario    string            `json:"scenario"`
	Status      ExecutionStatus   `json:"status"`
	PlanID      string            `json:"planId,omitempty"`
	CurrentStep int               `json:"currentStep"`
	TotalSteps  int               `json:"totalSteps"`
	Results     []ExecutionResult `json:"results,omitempty"`
	ReportData  *Report           `json:"reportData,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// Terminal reports whether the execution reached a final state
func (e *Execution) Terminal() bool {
	return e.Status.Terminal()
}

// Clone returns a deep copy of the execution record
func (e *Execution) Clone() *Execution {
	out := *e
	out.Results = append([]ExecutionResult(nil), e.Results...)
	if e.ReportData != nil {
		report := *e.ReportData
		report.Results = append([]ExecutionResult(nil), e.ReportData.Results...)
		out.ReportData = &report
	}
	if e.CompletedAt != nil {
		completed := *e.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

// Progress computes completion in percent for status polling
func (e *Execution) Progress() int {
	if e.Status == ExecutionStatusCompleted {
		return 100
	}
	if e.TotalSteps <= 0 {
		return 0
	}
	p := e.CurrentStep * 100 / e.TotalSteps
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
