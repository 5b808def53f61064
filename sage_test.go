package sage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/sagedesk/sage"
	"github.com/sagedesk/sage/internal/codegen"
	"github.com/sagedesk/sage/internal/executor"
	"github.com/sagedesk/sage/internal/fallback"
	"github.com/sagedesk/sage/internal/tools"
)

// scriptedPlanner returns a fixed outcome, standing in for the LLM.
type scriptedPlanner struct {
	outcome sage.PlanningOutcome
	err     error
}

func (p *scriptedPlanner) Plan(ctx context.Context, input sage.PlannerInput) (sage.PlanningOutcome, error) {
	return p.outcome, p.err
}

type scriptedGenerator struct {
	source string
}

func (g *scriptedGenerator) Generate(ctx context.Context, task string) (string, error) {
	return g.source, nil
}

// noExecRunner pretends to run generated scripts.
type noExecRunner struct{}

func (noExecRunner) Run(ctx context.Context, name, sourcePath string, params map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"message": "automation ran: " + name}, nil
}

func newTestEngine(t *testing.T, planner sage.Planner, opts ...sage.Option) *sage.Engine {
	t.Helper()

	registry := sage.NewRegistry()
	if err := tools.Setup(registry); err != nil {
		t.Fatal(err)
	}

	base := []sage.Option{
		sage.WithPlanner(planner),
		sage.WithValidator(executor.NewValidator()),
		sage.WithExecutor(executor.NewExecutor()),
		sage.WithInterpreter(fallback.NewInterpreter(registry)),
		sage.WithRegistry(registry),
	}
	engine, err := sage.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestRun_PlannedSteps(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{
			Thinking: "open chrome then set the volume",
			ToolCalls: []sage.ToolCall{
				{Tool: "open_app", Params: map[string]interface{}{"app_name": "chrome"}},
				{Tool: "set_volume", Params: map[string]interface{}{"level": float64(50)}},
			},
		},
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "open chrome and set volume to 50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OverallSuccess {
		t.Fatalf("expected success: %+v", report)
	}
	if len(report.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(report.Steps))
	}
	if report.Steps[0].ToolName != "open_app" || report.Steps[1].ToolName != "set_volume" {
		t.Errorf("steps out of order: %+v", report.Steps)
	}
	if report.UsedFallback {
		t.Error("planned run must not be marked as fallback")
	}
}

func TestRun_StepMemoryAcrossPlannedSteps(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{
			ToolCalls: []sage.ToolCall{
				{Tool: "generate_content", Params: map[string]interface{}{"description": "a haiku"}},
				{Tool: "type_text", Params: map[string]interface{}{"text": "$CONTENT_FROM_PREVIOUS_STEP"}},
			},
		},
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "write a haiku and type it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OverallSuccess {
		t.Fatalf("expected success: %+v", report)
	}
	typed := report.Steps[1].Params["text"].(string)
	if strings.HasPrefix(typed, "$") {
		t.Errorf("reference was not resolved: %q", typed)
	}
	if !strings.Contains(typed, "a haiku") {
		t.Errorf("resolved text should carry generated content, got %q", typed)
	}
}

func TestRun_PartialFailureIsolated(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{
			ToolCalls: []sage.ToolCall{
				{Tool: "calculate", Params: map[string]interface{}{"expression": "12 +* 3"}},
				{Tool: "get_time", Params: map[string]interface{}{}},
			},
		},
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "broken math then the time")
	if err != nil {
		t.Fatalf("domain failures must not surface as errors: %v", err)
	}
	if report.OverallSuccess {
		t.Error("a failed step must fail the overall report")
	}
	if len(report.Steps) != 2 {
		t.Fatalf("expected both steps recorded, got %d", len(report.Steps))
	}
	if report.Steps[0].Succeeded() {
		t.Error("first step should have failed")
	}
	if !report.Steps[1].Succeeded() {
		t.Error("second step should still run and succeed")
	}
}

func TestRun_DirectResponse(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{
			Thinking: "general knowledge",
			Response: "Quantum computing uses qubits.",
		},
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "what is quantum computing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OverallSuccess || len(report.Steps) != 0 {
		t.Errorf("direct response should succeed with no steps: %+v", report)
	}
	if report.Response != "Quantum computing uses qubits." {
		t.Errorf("unexpected response: %q", report.Response)
	}
}

func TestRun_MalformedPlan(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind:    sage.OutcomeMalformed,
		Reason:  "plan is not valid JSON",
		RawText: "Sure! Here's what I'd do...",
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "do something")
	if err != nil {
		t.Fatalf("malformed plan is a domain outcome, not an error: %v", err)
	}
	if report.OverallSuccess {
		t.Error("malformed plan must not succeed")
	}
	if !strings.Contains(report.Response, "rephrasing") {
		t.Errorf("unexpected response: %q", report.Response)
	}
}

func TestRun_UnavailableFallsBackToRules(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind:   sage.OutcomeUnavailable,
		Reason: "connection refused",
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "set volume to 70")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.UsedFallback {
		t.Error("report should be marked as fallback")
	}
	if !report.OverallSuccess {
		t.Fatalf("fallback volume command should succeed: %+v", report)
	}
	if len(report.Steps) != 1 || report.Steps[0].ToolName != "set_volume" {
		t.Errorf("unexpected steps: %+v", report.Steps)
	}
	if !strings.Contains(report.Response, "70") {
		t.Errorf("unexpected response: %q", report.Response)
	}
}

func TestRun_UnavailableUnhandledUtterance(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind:   sage.OutcomeUnavailable,
		Reason: "timeout",
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "compose a symphony in d minor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallSuccess {
		t.Error("unhandled fallback must not succeed")
	}
	if !report.UsedFallback {
		t.Error("report should be marked as fallback")
	}
	if !strings.Contains(report.Response, "didn't understand") {
		t.Errorf("unexpected response: %q", report.Response)
	}
}

func TestRun_GenerationPath(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{NeedsAutomation: true},
	}}

	registry := sage.NewRegistry()
	if err := tools.Setup(registry); err != nil {
		t.Fatal(err)
	}
	gateway := codegen.NewGateway(
		&scriptedGenerator{source: "import pyautogui\npyautogui.click(10, 20)"},
		registry,
		noExecRunner{},
		codegen.WithToolsDir(t.TempDir()),
	)

	engine, err := sage.New(
		sage.WithPlanner(planner),
		sage.WithValidator(executor.NewValidator()),
		sage.WithExecutor(executor.NewExecutor()),
		sage.WithGateway(gateway),
		sage.WithRegistry(registry),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	report, err := engine.Run(context.Background(), "click the save button")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OverallSuccess {
		t.Fatalf("generated automation should run: %+v", report)
	}
	if report.GeneratedTool != "click_the_save_button" {
		t.Errorf("report should name the generated tool, got %q", report.GeneratedTool)
	}
	if len(report.Steps) != 1 || report.Steps[0].ToolName != "click_the_save_button" {
		t.Errorf("unexpected steps: %+v", report.Steps)
	}
	if !registry.Has("click_the_save_button") {
		t.Error("generated tool should stay registered for reuse")
	}
}

func TestRun_GenerationRejectedUnsafe(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{NeedsAutomation: true},
	}}

	registry := sage.NewRegistry()
	if err := tools.Setup(registry); err != nil {
		t.Fatal(err)
	}
	gateway := codegen.NewGateway(
		&scriptedGenerator{source: "import os\nos.system('shutdown /s')"},
		registry,
		noExecRunner{},
		codegen.WithToolsDir(t.TempDir()),
	)

	engine, err := sage.New(
		sage.WithPlanner(planner),
		sage.WithValidator(executor.NewValidator()),
		sage.WithExecutor(executor.NewExecutor()),
		sage.WithGateway(gateway),
		sage.WithRegistry(registry),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	report, err := engine.Run(context.Background(), "click the shutdown button")
	if err != nil {
		t.Fatalf("unsafe rejection is a domain outcome: %v", err)
	}
	if report.OverallSuccess {
		t.Error("rejected automation must not succeed")
	}
	if !strings.Contains(report.Response, "blocked operations") {
		t.Errorf("unexpected response: %q", report.Response)
	}
}

func TestRun_GenerationWithoutGateway(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{NeedsAutomation: true},
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "drag the icon somewhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallSuccess {
		t.Error("generation without a gateway must not succeed")
	}
	if !strings.Contains(report.Response, "not enabled") {
		t.Errorf("unexpected response: %q", report.Response)
	}
}

func TestRun_UnknownToolRetainedInReport(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{
		Kind: sage.OutcomePlan,
		Plan: &sage.ExecutionPlan{
			ToolCalls: []sage.ToolCall{
				{Tool: "teleport", Params: map[string]interface{}{}},
				{Tool: "get_date", Params: map[string]interface{}{}},
			},
		},
	}}
	engine := newTestEngine(t, planner)

	report, err := engine.Run(context.Background(), "teleport then tell me the date")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallSuccess {
		t.Error("plan with an unknown tool must not fully succeed")
	}
	if len(report.Steps) != 2 {
		t.Fatalf("invalid steps must stay in the report, got %d", len(report.Steps))
	}
	if report.Steps[0].Succeeded() {
		t.Error("unknown tool step should fail")
	}
	if sage.CodeOf(report.Steps[0].Error) != sage.ErrCodeToolNotFound {
		t.Errorf("expected TOOL_NOT_FOUND, got %v", report.Steps[0].Error)
	}
	if !report.Steps[1].Succeeded() {
		t.Error("later valid step should still run")
	}
}

func TestRunPlan_BypassesPlanner(t *testing.T) {
	planner := &scriptedPlanner{outcome: sage.PlanningOutcome{Kind: sage.OutcomeUnavailable}}
	engine := newTestEngine(t, planner)

	plan := &sage.ExecutionPlan{
		Response: "Morning routine complete.",
		ToolCalls: []sage.ToolCall{
			{Tool: "unmute", Params: map[string]interface{}{}},
			{Tool: "set_volume", Params: map[string]interface{}{"level": float64(40)}},
		},
	}
	report, err := engine.RunPlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OverallSuccess || len(report.Steps) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Response != "Morning routine complete." {
		t.Errorf("plan response should win: %q", report.Response)
	}
}

func TestNew_RequiresComponents(t *testing.T) {
	if _, err := sage.New(); err == nil {
		t.Error("construction without a planner must fail")
	}

	registry := sage.NewRegistry()
	_, err := sage.New(
		sage.WithPlanner(&scriptedPlanner{}),
		sage.WithValidator(executor.NewValidator()),
		sage.WithExecutor(executor.NewExecutor()),
		sage.WithRegistry(registry),
	)
	if err == nil {
		t.Error("construction with an empty registry must fail")
	}
}
