package sage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sagedesk/sage/internal/eventbus"
)

// Components holds references to the pipeline components needed by the
// state transitions.
type Components struct {
	Planner     Planner
	Validator   Validator
	Executor    Executor
	Interpreter Interpreter
	Gateway     Gateway
	Registry    *Registry
	Config      Config
}

// CreateProcessStateMachine builds the state machine for one request:
// init -> planning -> {validation -> execution | fallback | generation}
// -> complete/error.
func CreateProcessStateMachine(components Components, eventBus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(eventBus)

	sm.RegisterTransition(StateInit, createInitTransition(components))
	sm.RegisterTransition(StatePlanning, createPlanningTransition(components))
	sm.RegisterTransition(StateValidation, createValidationTransition(components))
	sm.RegisterTransition(StateExecution, createExecutionTransition(components))
	sm.RegisterTransition(StateFallback, createFallbackTransition(components))
	sm.RegisterTransition(StateGeneration, createGenerationTransition(components))

	return sm
}

func publish(ctx context.Context, eb eventbus.EventBus, eventType eventbus.EventType, payload interface{}, source string, metadata map[string]interface{}) {
	if eb == nil {
		return
	}
	eb.Publish(ctx, eventbus.NewEvent(eventType, payload, source, metadata))
}

// createInitTransition prepares the planner input from the current
// registry catalog.
func createInitTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventQueryProcessingStarted, pCtx.Utterance, "StateMachine.Init", map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		})

		pCtx.PlannerInput = &PlannerInput{
			Utterance: pCtx.Utterance,
			Catalog:   components.Registry.Catalog(),
		}

		return StatePlanning, nil
	}
}

// createPlanningTransition asks the planner for a plan and routes on
// the tagged outcome. The planner gets a hard deadline; hitting it is
// treated as unavailability, not as a request failure.
func createPlanningTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventPlanningStarted, pCtx.Utterance, "StateMachine.Planning", nil)

		planCtx := ctx
		if components.Config.PlannerTimeout > 0 {
			var cancel context.CancelFunc
			planCtx, cancel = context.WithTimeout(ctx, components.Config.PlannerTimeout)
			defer cancel()
		}

		outcome, err := components.Planner.Plan(planCtx, *pCtx.PlannerInput)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				outcome = PlanningOutcome{Kind: OutcomeUnavailable, Reason: "planner timed out"}
			} else if ctx.Err() != nil {
				return StateCancelled, ctx.Err()
			} else {
				publish(ctx, eb, eventbus.EventQueryProcessingFailure, pCtx.Utterance, "StateMachine.Planning", map[string]interface{}{
					"error": err.Error(),
					"stage": "planning",
				})
				return StateError, NewInternalError("planning", "planner failed", err)
			}
		}
		pCtx.Outcome = &outcome

		switch outcome.Kind {
		case OutcomeUnavailable:
			publish(ctx, eb, eventbus.EventPlannerUnavailable, pCtx.Utterance, "StateMachine.Planning", map[string]interface{}{
				"reason": outcome.Reason,
			})
			return StateFallback, nil

		case OutcomeMalformed:
			publish(ctx, eb, eventbus.EventPlanningMalformed, pCtx.Utterance, "StateMachine.Planning", map[string]interface{}{
				"raw_length": len(outcome.RawText),
			})
			pCtx.Report = &PlanExecutionReport{
				Utterance:      pCtx.Utterance,
				OverallSuccess: false,
				Response:       "I could not work out a valid plan for that request. Please try rephrasing it.",
			}
			pCtx.Complete()
			return StateComplete, nil

		case OutcomePlan:
			plan := outcome.Plan
			publish(ctx, eb, eventbus.EventPlanningSuccess, plan, "StateMachine.Planning", map[string]interface{}{
				"step_count":       len(plan.ToolCalls),
				"needs_automation": plan.NeedsAutomation,
			})

			if len(plan.ToolCalls) == 0 {
				if plan.NeedsAutomation {
					return StateGeneration, nil
				}
				// Direct conversational answer, nothing to execute.
				pCtx.Report = &PlanExecutionReport{
					Utterance:      pCtx.Utterance,
					OverallSuccess: true,
					Response:       plan.Response,
					Thinking:       plan.Thinking,
				}
				pCtx.Complete()
				return StateComplete, nil
			}
			return StateValidation, nil

		default:
			return StateError, NewInternalError("planning", fmt.Sprintf("unknown planning outcome kind: %s", outcome.Kind), nil)
		}
	}
}

// createValidationTransition validates the plan step by step. Invalid
// steps stay in the plan marked with their error, so this transition
// never fails the request on its own.
func createValidationTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventPlanValidationStarted, pCtx.Outcome.Plan, "StateMachine.Validation", nil)

		validated := components.Validator.Validate(pCtx.Outcome.Plan, components.Registry)
		pCtx.ValidatedPlan = validated

		invalid := 0
		for i := range validated.Steps {
			if !validated.Steps[i].Valid() {
				invalid++
			}
		}
		publish(ctx, eb, eventbus.EventPlanValidationDone, validated, "StateMachine.Validation", map[string]interface{}{
			"step_count":    len(validated.Steps),
			"invalid_count": invalid,
		})

		return StateExecution, nil
	}
}

// createExecutionTransition runs the validated plan sequentially and
// stores the resulting report.
func createExecutionTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventPlanExecutionStarted, pCtx.ValidatedPlan, "StateMachine.Execution", map[string]interface{}{
			"step_count": len(pCtx.ValidatedPlan.Steps),
		})

		report, err := components.Executor.Execute(ctx, pCtx.ValidatedPlan)
		if err != nil {
			publish(ctx, eb, eventbus.EventQueryProcessingFailure, pCtx.Utterance, "StateMachine.Execution", map[string]interface{}{
				"error": err.Error(),
				"stage": "execution",
			})
			return StateError, err
		}

		report.Utterance = pCtx.Utterance
		if pCtx.StateData["generated_tool"] != nil {
			report.GeneratedTool, _ = pCtx.StateData["generated_tool"].(string)
		}
		pCtx.Report = report

		publish(ctx, eb, eventbus.EventPlanExecutionDone, report, "StateMachine.Execution", map[string]interface{}{
			"overall_success": report.OverallSuccess,
			"step_count":      len(report.Steps),
		})
		publish(ctx, eb, eventbus.EventQueryProcessingSuccess, pCtx.Utterance, "StateMachine.Execution", map[string]interface{}{
			"overall_success": report.OverallSuccess,
		})

		pCtx.Complete()
		return StateComplete, nil
	}
}

// createFallbackTransition interprets the utterance with the ordered
// rule table. An unmatched utterance is a defined outcome, not an
// error: the caller gets a not-understood report.
func createFallbackTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventFallbackStarted, pCtx.Utterance, "StateMachine.Fallback", nil)

		if components.Interpreter == nil {
			pCtx.Report = notUnderstoodReport(pCtx.Utterance)
			pCtx.Complete()
			return StateComplete, nil
		}

		result, ok := components.Interpreter.Interpret(ctx, pCtx.Utterance)
		if !ok {
			publish(ctx, eb, eventbus.EventFallbackUnhandled, pCtx.Utterance, "StateMachine.Fallback", nil)
			pCtx.Report = notUnderstoodReport(pCtx.Utterance)
			pCtx.Complete()
			return StateComplete, nil
		}

		publish(ctx, eb, eventbus.EventFallbackMatched, result, "StateMachine.Fallback", map[string]interface{}{
			"tool": result.ToolName,
		})

		response := ""
		if msg, ok := result.Payload["message"].(string); ok {
			response = msg
		}
		if response == "" && result.Error != nil {
			response = "I tried a direct command but it failed: " + result.Error.Error()
		}

		pCtx.Report = &PlanExecutionReport{
			Utterance:      pCtx.Utterance,
			OverallSuccess: result.Succeeded(),
			Steps:          []StepResult{*result},
			Response:       response,
			UsedFallback:   true,
		}
		pCtx.Complete()
		return StateComplete, nil
	}
}

// createGenerationTransition provisions a generated tool and, on
// success, re-enters the normal validate/execute path with a
// single-step plan invoking it. Rejections are defined outcomes with
// their own report.
func createGenerationTransition(components Components) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, eb, eventbus.EventCodegenStarted, pCtx.Utterance, "StateMachine.Generation", nil)

		if components.Gateway == nil {
			pCtx.Report = &PlanExecutionReport{
				Utterance:      pCtx.Utterance,
				OverallSuccess: false,
				Response:       "This request needs a new automation, but code generation is not enabled.",
			}
			pCtx.Complete()
			return StateComplete, nil
		}

		genCtx := ctx
		if components.Config.CodegenTimeout > 0 {
			var cancel context.CancelFunc
			genCtx, cancel = context.WithTimeout(ctx, components.Config.CodegenTimeout)
			defer cancel()
		}

		candidate, err := components.Gateway.Provision(genCtx, pCtx.Utterance)
		if err != nil {
			switch CodeOf(err) {
			case ErrCodeUnsafeCode:
				var matched []string
				if candidate != nil {
					matched = candidate.Matched
				}
				publish(ctx, eb, eventbus.EventCodegenRejected, candidate, "StateMachine.Generation", map[string]interface{}{
					"matched": matched,
				})
				pCtx.Report = &PlanExecutionReport{
					Utterance:      pCtx.Utterance,
					OverallSuccess: false,
					Response:       fmt.Sprintf("I can't run that: the generated automation contained blocked operations (%s).", strings.Join(matched, ", ")),
				}
				pCtx.Complete()
				return StateComplete, nil

			case ErrCodeNotAutomatable:
				pCtx.Report = &PlanExecutionReport{
					Utterance:      pCtx.Utterance,
					OverallSuccess: false,
					Response:       "I don't know how to automate that kind of task.",
				}
				pCtx.Complete()
				return StateComplete, nil

			default:
				if ctx.Err() != nil {
					return StateCancelled, ctx.Err()
				}
				publish(ctx, eb, eventbus.EventQueryProcessingFailure, pCtx.Utterance, "StateMachine.Generation", map[string]interface{}{
					"error": err.Error(),
					"stage": "generation",
				})
				return StateError, err
			}
		}

		eventType := eventbus.EventCodegenAccepted
		if candidate.Reused {
			eventType = eventbus.EventCodegenReused
		}
		publish(ctx, eb, eventType, candidate, "StateMachine.Generation", map[string]interface{}{
			"tool": candidate.Name,
		})

		// Re-run the request as a one-step plan through the normal path.
		pCtx.StateData["generated_tool"] = candidate.Name
		pCtx.Outcome = &PlanningOutcome{
			Kind: OutcomePlan,
			Plan: &ExecutionPlan{
				ToolCalls: []ToolCall{{Tool: candidate.Name, Params: map[string]interface{}{"task": candidate.Task}}},
			},
		}
		return StateValidation, nil
	}
}

func notUnderstoodReport(utterance string) *PlanExecutionReport {
	return &PlanExecutionReport{
		Utterance:      utterance,
		OverallSuccess: false,
		Response:       "Sorry, I didn't understand that request.",
		UsedFallback:   true,
	}
}
