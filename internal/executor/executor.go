// Package executor implements plan validation and sequential step
// execution with per-request step memory.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sagedesk/sage"
)

// StepExecutor runs validated plans strictly in order. Steps are
// isolated: one failure is recorded and execution continues with the
// next step, so the report always covers the whole plan.
type StepExecutor struct {
	stepTimeout time.Duration // per-step execution timeout

	metrics ExecutorMetrics
}

// ExecutorOption represents an option for configuring the StepExecutor.
type ExecutorOption func(*StepExecutor)

// WithStepTimeout sets the per-step execution timeout.
func WithStepTimeout(timeout time.Duration) ExecutorOption {
	return func(e *StepExecutor) {
		e.stepTimeout = timeout
	}
}

// NewExecutor creates a new sequential executor with default settings.
func NewExecutor(options ...ExecutorOption) *StepExecutor {
	e := &StepExecutor{
		stepTimeout: time.Second * 30,
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Execute runs the validated plan. Every step produces exactly one
// StepResult at its original index; invalid steps fail without
// running. The error return is reserved for context cancellation.
func (e *StepExecutor) Execute(ctx context.Context, plan *sage.ValidatedPlan) (*sage.PlanExecutionReport, error) {
	if plan == nil || plan.Plan == nil {
		return nil, sage.NewInternalError("execution", "nil plan passed to executor", nil)
	}

	startTime := time.Now()
	log.Printf("Starting plan execution (total_steps: %d)", len(plan.Steps))

	e.resetMetrics()

	memory := sage.NewStepMemory()
	results := make([]sage.StepResult, 0, len(plan.Steps))

	for i := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, sage.NewCancelledError("execution", err)
		}

		step := &plan.Steps[i]
		result := e.executeStep(ctx, i, step, memory)
		e.updateStepMetrics(&result)
		results = append(results, result)
	}

	report := e.assembleReport(plan.Plan, results)

	log.Printf("Plan execution finished (steps: %d, successful: %d, failed: %d, overall_success: %t, duration: %v)",
		len(results),
		e.metrics.StepsSuccessful,
		e.metrics.StepsFailed,
		report.OverallSuccess,
		time.Since(startTime))

	return report, nil
}

// executeStep runs one step: reference resolution, tool invocation
// with a per-step deadline, then output capture. Panics inside a tool
// are contained and recorded as a failed step.
func (e *StepExecutor) executeStep(ctx context.Context, index int, step *sage.ValidatedStep, memory *sage.StepMemory) (result sage.StepResult) {
	result = sage.StepResult{
		Index:    index,
		ToolName: step.Call.Tool,
		Status:   sage.StepStatusFailed,
	}
	stepStart := time.Now()
	defer func() {
		result.Duration = time.Since(stepStart)
		if result.Error != nil {
			result.ErrorMsg = result.Error.Error()
		}
	}()

	if !step.Valid() {
		result.Params = step.Call.Params
		result.Error = step.Err
		log.Printf("Skipping invalid step (index: %d, tool: %s, error: %v)", index, step.Call.Tool, step.Err)
		return result
	}

	params := resolveReferences(step.Resolved, memory)
	result.Params = params

	log.Printf("Starting step execution (index: %d, tool: %s)", index, step.Call.Tool)

	payload, err := e.invoke(ctx, step.Tool, params)
	if err != nil {
		result.Error = sage.NewToolExecutionError(step.Call.Tool, err)
		log.Printf("Step execution failed (index: %d, tool: %s, error: %v)", index, step.Call.Tool, err)
		return result
	}
	if payload == nil {
		result.Error = sage.NewInternalError("execution", "tool execution returned a nil payload", nil)
		return result
	}

	result.Status = sage.StepStatusSucceeded
	result.Payload = payload
	result.Error = nil

	capture(payload, memory)

	log.Printf("Step execution completed (index: %d, tool: %s, duration: %v)", index, step.Call.Tool, time.Since(stepStart))
	return result
}

// invoke calls the tool with a per-step deadline and panic containment.
func (e *StepExecutor) invoke(ctx context.Context, tool sage.Tool, params map[string]interface{}) (payload map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	return tool.Execute(ctx, params)
}

// resolveReferences substitutes $NAME values from step memory. Only a
// whole-value reference is resolved; an unresolved name passes through
// as the literal text so downstream tools can surface it.
func resolveReferences(params map[string]interface{}, memory *sage.StepMemory) map[string]interface{} {
	resolved := make(map[string]interface{}, len(params))
	for name, value := range params {
		str, ok := value.(string)
		if !ok || !strings.HasPrefix(str, "$") || len(str) < 2 {
			resolved[name] = value
			continue
		}
		if stored, found := memory.Get(str[1:]); found {
			resolved[name] = stored
		} else {
			resolved[name] = str
		}
	}
	return resolved
}

// capture promotes well-known payload fields into step memory.
func capture(payload map[string]interface{}, memory *sage.StepMemory) {
	if content, ok := payload["content"]; ok {
		memory.Set(sage.MemoryKeyContent, content)
		memory.Set(sage.MemoryKeyLastContent, content)
	}
	if result, ok := payload["result"]; ok {
		memory.Set(sage.MemoryKeyLastResult, result)
	}
	if message, ok := payload["message"]; ok {
		memory.Set(sage.MemoryKeyLastMessage, message)
	}
}

// assembleReport folds the step results into the caller-facing report.
// The plan's own response wins when present; otherwise the response is
// synthesized from step messages plus a completion summary.
func (e *StepExecutor) assembleReport(plan *sage.ExecutionPlan, results []sage.StepResult) *sage.PlanExecutionReport {
	overall := true
	succeeded := 0
	var messages []string
	for i := range results {
		if results[i].Succeeded() {
			succeeded++
			if msg, ok := results[i].Payload["message"].(string); ok && msg != "" {
				messages = append(messages, msg)
			}
		} else {
			overall = false
		}
	}

	response := plan.Response
	if response == "" {
		failed := len(results) - succeeded
		var summary string
		if failed == 0 {
			summary = fmt.Sprintf("All %d steps completed successfully.", len(results))
		} else {
			summary = fmt.Sprintf("Completed with %d successful and %d failed steps.", succeeded, failed)
		}
		if len(messages) > 0 {
			response = strings.Join(messages, " ") + " " + summary
		} else {
			response = summary
		}
	}

	return &sage.PlanExecutionReport{
		OverallSuccess: overall,
		Steps:          results,
		Response:       response,
		Thinking:       plan.Thinking,
	}
}

// GetMetrics returns a copy of the current execution metrics.
func (e *StepExecutor) GetMetrics() ExecutorMetrics {
	return e.metrics.Copy()
}

func (e *StepExecutor) resetMetrics() {
	e.metrics.reset()
}

func (e *StepExecutor) updateStepMetrics(result *sage.StepResult) {
	e.metrics.record(result)
}
