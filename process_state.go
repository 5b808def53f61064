package sage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sagedesk/sage/internal/eventbus"
)

// ProcessState represents the current state of a request's execution.
type ProcessState string

const (
	// StateInit is the initial state of the request
	StateInit ProcessState = "init"
	// StatePlanning represents the planning phase
	StatePlanning ProcessState = "planning"
	// StateValidation represents the plan validation phase
	StateValidation ProcessState = "validation"
	// StateExecution represents the step execution phase
	StateExecution ProcessState = "execution"
	// StateFallback represents the deterministic fallback phase
	StateFallback ProcessState = "fallback"
	// StateGeneration represents the code-generation phase
	StateGeneration ProcessState = "generation"
	// StateError represents an error state
	StateError ProcessState = "error"
	// StateComplete represents the completed state
	StateComplete ProcessState = "complete"
	// StateCancelled represents the cancelled state
	StateCancelled ProcessState = "cancelled"
	// StateUnknown is used when the status of an async execution cannot be determined.
	StateUnknown ProcessState = "unknown"
)

// ProcessContext carries one request through the state machine. It
// acts as the "tape" of the pushdown automaton: each transition reads
// and writes the fields the next state needs.
type ProcessContext struct {
	// Input
	Utterance string

	// Intermediate results
	PlannerInput  *PlannerInput
	Outcome       *PlanningOutcome
	ValidatedPlan *ValidatedPlan
	Report        *PlanExecutionReport

	// Error handling
	LastError  error
	ErrorStage string

	// State management
	CurrentState ProcessState
	StateStack   []ProcessState
	StateData    map[string]interface{}

	// Timestamp tracking
	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[ProcessState]time.Time
}

// NewProcessContext creates a new process context for an utterance.
func NewProcessContext(utterance string) *ProcessContext {
	return &ProcessContext{
		Utterance:       utterance,
		CurrentState:    StateInit,
		StateStack:      []ProcessState{},
		StateData:       make(map[string]interface{}),
		StartTime:       time.Now(),
		StateStartTimes: make(map[ProcessState]time.Time),
	}
}

// PushState pushes the current state onto the stack and sets a new current state.
func (pc *ProcessContext) PushState(state ProcessState) {
	pc.StateStack = append(pc.StateStack, pc.CurrentState)
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// PopState pops the top state from the stack and sets it as the current state.
// Returns false if the stack is empty.
func (pc *ProcessContext) PopState() bool {
	if len(pc.StateStack) == 0 {
		return false
	}
	lastIdx := len(pc.StateStack) - 1
	pc.CurrentState = pc.StateStack[lastIdx]
	pc.StateStack = pc.StateStack[:lastIdx]
	pc.StateStartTimes[pc.CurrentState] = time.Now()
	return true
}

// IsTerminal checks if the current state is Complete, Error or Cancelled.
func (pc *ProcessContext) IsTerminal() bool {
	return pc.CurrentState == StateComplete || pc.CurrentState == StateError || pc.CurrentState == StateCancelled
}

// SetError sets the last error and error stage, transitioning to StateError.
func (pc *ProcessContext) SetError(err error, stage string) {
	pc.LastError = err
	pc.ErrorStage = stage
	pc.CurrentState = StateError
	pc.StateStartTimes[StateError] = time.Now()
}

// SetCancelled sets the state to Cancelled and records the cancellation error.
func (pc *ProcessContext) SetCancelled(err error, stage string) {
	pc.LastError = err
	pc.ErrorStage = stage
	pc.CurrentState = StateCancelled
	pc.StateStartTimes[StateCancelled] = time.Now()
}

// Complete marks the request as complete and sets the end time.
func (pc *ProcessContext) Complete() {
	pc.CurrentState = StateComplete
	pc.EndTime = time.Now()
	pc.StateStartTimes[StateComplete] = pc.EndTime
}

// GetStateDuration returns the duration spent in the given state so
// far. Only the current state is tracked precisely.
func (pc *ProcessContext) GetStateDuration(state ProcessState) time.Duration {
	startTime, ok := pc.StateStartTimes[state]
	if !ok {
		return 0
	}
	if state == pc.CurrentState {
		return time.Since(startTime)
	}
	return 0
}

// GetTotalDuration returns the total duration of the request so far.
func (pc *ProcessContext) GetTotalDuration() time.Duration {
	if pc.CurrentState == StateComplete {
		return pc.EndTime.Sub(pc.StartTime)
	}
	return time.Since(pc.StartTime)
}

// StateTransition defines a transition function for the state machine.
type StateTransition func(ctx context.Context, eventBus eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error)

// StateMachine drives one request through its states.
type StateMachine struct {
	transitions map[ProcessState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a new state machine.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[ProcessState]StateTransition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers a state transition function.
func (sm *StateMachine) RegisterTransition(state ProcessState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until a terminal state. It returns
// the report assembled by the transitions together with the last
// error, which is non-nil for cancellation and internal failures.
func (sm *StateMachine) Execute(ctx context.Context, pCtx *ProcessContext) (*PlanExecutionReport, error) {
	for !pCtx.IsTerminal() {
		select {
		case <-ctx.Done():
			err := ctx.Err()
			pCtx.SetCancelled(err, string(pCtx.CurrentState))
			return pCtx.Report, NewCancelledError(string(pCtx.CurrentState), err)
		default:
		}

		transition, exists := sm.transitions[pCtx.CurrentState]
		if !exists {
			err := fmt.Errorf("no transition defined for state: %s", pCtx.CurrentState)
			pCtx.SetError(err, string(pCtx.CurrentState))
			return pCtx.Report, err
		}

		nextState, err := transition(ctx, sm.eventBus, pCtx)
		if err != nil {
			currentStage := string(pCtx.CurrentState)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || CodeOf(err) == ErrCodeCancelled {
				pCtx.SetCancelled(err, currentStage)
			} else if !pCtx.IsTerminal() {
				pCtx.SetError(err, currentStage)
			}
			continue
		}

		if !pCtx.IsTerminal() {
			pCtx.CurrentState = nextState
			pCtx.StateStartTimes[nextState] = time.Now()
		}
	}

	if pCtx.CurrentState == StateCancelled {
		return pCtx.Report, NewCancelledError(pCtx.ErrorStage, pCtx.LastError)
	}
	if pCtx.CurrentState == StateError && pCtx.Report == nil {
		// The caller always gets a report, even when the pipeline broke
		// before one was assembled.
		response := "Something went wrong while handling that request."
		if pCtx.LastError != nil {
			response = fmt.Sprintf("Something went wrong while handling that request (%s).", CodeOf(pCtx.LastError))
		}
		pCtx.Report = &PlanExecutionReport{
			Utterance:      pCtx.Utterance,
			OverallSuccess: false,
			Response:       response,
		}
	}
	return pCtx.Report, pCtx.LastError
}
