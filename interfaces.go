package sage

import "context"

// Planner produces a tagged planning outcome for one utterance. A
// non-nil error means the planning attempt itself broke in a way the
// adapter could not classify; classified failures (unreachable model,
// unparseable response) come back as outcome kinds instead.
type Planner interface {
	Plan(ctx context.Context, input PlannerInput) (PlanningOutcome, error)
}

// Tool represents an executable capability that plan steps invoke.
type Tool interface {
	// Execute performs the tool's action. input contains the resolved
	// parameters for this step. The returned payload map may carry the
	// reserved keys "content", "result" and "message", which the
	// executor captures into step memory for later steps.
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

	// Name returns the tool's registry name.
	Name() string

	// Descriptor returns the tool's description and parameter schema.
	Descriptor() ToolDescriptor
}

// Validator checks a plan step-by-step against a registry snapshot.
// Invalid steps are retained in place, marked with their error.
type Validator interface {
	Validate(plan *ExecutionPlan, registry *Registry) *ValidatedPlan
}

// Executor runs a validated plan sequentially and assembles the report.
type Executor interface {
	Execute(ctx context.Context, plan *ValidatedPlan) (*PlanExecutionReport, error)
}

// Interpreter is the deterministic fallback used when no planner is
// reachable. Match is a pure function of the utterance; Interpret
// additionally executes the matched tool. ok is false when no rule
// applies.
type Interpreter interface {
	Match(utterance string) (call ToolCall, rule string, ok bool)
	Interpret(ctx context.Context, utterance string) (*StepResult, bool)
}

// Generator produces automation source text for a task description.
// Implementations talk to the model; safety screening happens in the
// gateway, never here.
type Generator interface {
	Generate(ctx context.Context, task string) (string, error)
}

// Gateway turns an automation request into a registered tool, or
// rejects it. The returned candidate always describes the attempt,
// including the matched deny-list markers on rejection.
type Gateway interface {
	Provision(ctx context.Context, task string) (*GeneratedToolCandidate, error)
}

// Cache provides storage for frequently reused data, like planning
// outcomes keyed by utterance and catalog.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}
