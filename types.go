package sage

import (
	"sort"
	"time"
)

// ParamType enumerates the value types a tool parameter may declare.
type ParamType string

const (
	ParamTypeString  ParamType = "string"
	ParamTypeNumber  ParamType = "number"
	ParamTypeBoolean ParamType = "boolean"
)

// ParamSpec describes a single declared parameter of a tool.
type ParamSpec struct {
	Type        ParamType   `json:"type"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDescriptor is the serializable description of a registered tool,
// used both for the planner catalog and for validation.
type ToolDescriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters,omitempty"`
}

// ToolCall is a single planned invocation: a tool name plus the raw
// parameter map exactly as the planner produced it.
type ToolCall struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// ExecutionPlan is the planner's structured answer for one utterance.
// When ToolCalls is empty and NeedsAutomation is false the plan is a
// direct conversational response with nothing to execute.
type ExecutionPlan struct {
	Thinking        string     `json:"thinking,omitempty"`
	ToolCalls       []ToolCall `json:"tool_calls"`
	Response        string     `json:"response,omitempty"`
	NeedsAutomation bool       `json:"needs_automation,omitempty"`
}

// PlannerInput carries everything the planning client needs to produce
// a plan for a single utterance.
type PlannerInput struct {
	Utterance string           `json:"utterance"`
	Catalog   []ToolDescriptor `json:"catalog"`
}

// PlanningOutcomeKind tags the three possible results of a planning attempt.
type PlanningOutcomeKind string

const (
	// OutcomePlan means a structurally parseable plan was produced.
	OutcomePlan PlanningOutcomeKind = "plan"
	// OutcomeUnavailable means the planner could not be reached at all
	// (missing credentials, network failure, rate limiting, timeout).
	OutcomeUnavailable PlanningOutcomeKind = "unavailable"
	// OutcomeMalformed means the planner responded but the response
	// could not be parsed into a plan, even after retrying.
	OutcomeMalformed PlanningOutcomeKind = "malformed"
)

// PlanningOutcome is the tagged result of a planning attempt. Exactly
// one of Plan, Reason or RawText is meaningful depending on Kind.
type PlanningOutcome struct {
	Kind    PlanningOutcomeKind `json:"kind"`
	Plan    *ExecutionPlan      `json:"plan,omitempty"`
	Reason  string              `json:"reason,omitempty"`   // unavailable: why
	RawText string              `json:"raw_text,omitempty"` // malformed: what came back
}

// StepStatus is the terminal status of one executed plan step.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
)

// StepResult records the outcome of one plan step. Index matches the
// step's position in the original plan, including steps that never ran
// because validation marked them invalid.
type StepResult struct {
	Index    int                    `json:"index"`
	ToolName string                 `json:"tool"`
	Params   map[string]interface{} `json:"params,omitempty"`
	Status   StepStatus             `json:"status"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	Error    error                  `json:"-"`
	ErrorMsg string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration_ns,omitempty"`
}

// Succeeded reports whether the step completed without error.
func (r *StepResult) Succeeded() bool {
	return r.Status == StepStatusSucceeded
}

// PlanExecutionReport is the caller-facing summary of one request.
// OverallSuccess is the conjunction of every step's success; a report
// with zero steps (direct response) is successful by definition.
type PlanExecutionReport struct {
	Utterance      string       `json:"utterance,omitempty"`
	OverallSuccess bool         `json:"overall_success"`
	Steps          []StepResult `json:"steps,omitempty"`
	Response       string       `json:"response"`
	Thinking       string       `json:"thinking,omitempty"`
	UsedFallback   bool         `json:"used_fallback,omitempty"`
	GeneratedTool  string       `json:"generated_tool,omitempty"`
}

// Reserved step-memory keys populated by the capture rules.
const (
	MemoryKeyContent     = "CONTENT_FROM_PREVIOUS_STEP"
	MemoryKeyLastContent = "LAST_CONTENT"
	MemoryKeyLastResult  = "LAST_RESULT"
	MemoryKeyLastMessage = "LAST_MESSAGE"
)

// StepMemory is the per-request scratch store that carries captured
// step outputs forward to later steps. Keys are write-once-per-step
// and never deleted during a run; each request gets a fresh instance,
// so no locking is needed.
type StepMemory struct {
	values map[string]interface{}
}

// NewStepMemory returns an empty memory for a single plan run.
func NewStepMemory() *StepMemory {
	return &StepMemory{values: make(map[string]interface{})}
}

// Set stores a value under a key, overwriting any previous capture.
func (m *StepMemory) Set(key string, value interface{}) {
	m.values[key] = value
}

// Get retrieves a captured value verbatim.
func (m *StepMemory) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len reports how many keys have been captured so far.
func (m *StepMemory) Len() int {
	return len(m.values)
}

// Keys returns the captured key names in sorted order.
func (m *StepMemory) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidatedStep pairs a planned call with its validation outcome. An
// invalid step is retained in place so that step indices line up, and
// carries the validation error instead of resolved parameters.
type ValidatedStep struct {
	Call     ToolCall               `json:"call"`
	Tool     Tool                   `json:"-"`                  // bound at validation time, nil when invalid
	Resolved map[string]interface{} `json:"resolved,omitempty"` // coerced literals, references untouched
	Err      error                  `json:"-"`
}

// Valid reports whether the step passed validation.
func (s *ValidatedStep) Valid() bool {
	return s.Err == nil
}

// ValidatedPlan is an ExecutionPlan after per-step validation against
// a registry snapshot. Steps has the same length and order as the
// plan's ToolCalls.
type ValidatedPlan struct {
	Plan  *ExecutionPlan
	Steps []ValidatedStep
}

// GeneratedToolCandidate describes one code-generation attempt, safe
// or not. Matched lists every deny-list marker found in the source.
type GeneratedToolCandidate struct {
	Name        string    `json:"name"`
	Task        string    `json:"task"`
	Source      string    `json:"-"`
	SourcePath  string    `json:"source_path,omitempty"`
	Safe        bool      `json:"safe"`
	Matched     []string  `json:"matched,omitempty"`
	Reused      bool      `json:"reused,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
