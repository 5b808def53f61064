package sage

import (
	"context"
	"fmt"
	"time"

	"github.com/sagedesk/sage/internal/eventbus"
)

// AsyncExecutionStatus represents the status information for an async run.
type AsyncExecutionStatus struct {
	ExecutionID  string        `json:"execution_id"`
	Utterance    string        `json:"utterance"`
	CurrentState ProcessState  `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

// GetAsyncStatus retrieves the current status of an async run.
func (e *Engine) GetAsyncStatus(executionID string) (*AsyncExecutionStatus, error) {
	e.asyncExecutionsMutex.RLock()
	defer e.asyncExecutionsMutex.RUnlock()

	pCtx, exists := e.asyncExecutions[executionID]
	if !exists {
		return nil, fmt.Errorf("execution with ID '%s' not found", executionID)
	}

	status := &AsyncExecutionStatus{
		ExecutionID:  executionID,
		Utterance:    pCtx.Utterance,
		CurrentState: pCtx.CurrentState,
		StartTime:    pCtx.StartTime,
		Duration:     pCtx.GetTotalDuration(),
		IsComplete:   pCtx.CurrentState == StateComplete,
		HasError:     pCtx.CurrentState == StateError || pCtx.CurrentState == StateCancelled,
	}

	if pCtx.LastError != nil {
		status.ErrorMessage = pCtx.LastError.Error()
		status.ErrorStage = pCtx.ErrorStage
	}

	return status, nil
}

// GetAsyncResult retrieves the report of a completed async run.
// Returns an error if the run is still in progress or failed without
// producing a report.
func (e *Engine) GetAsyncResult(executionID string) (*PlanExecutionReport, error) {
	e.asyncExecutionsMutex.RLock()
	defer e.asyncExecutionsMutex.RUnlock()

	pCtx, exists := e.asyncExecutions[executionID]
	if !exists {
		return nil, fmt.Errorf("execution with ID '%s' not found", executionID)
	}

	switch pCtx.CurrentState {
	case StateComplete:
		return pCtx.Report, nil
	case StateError, StateCancelled:
		if pCtx.Report != nil {
			return pCtx.Report, pCtx.LastError
		}
		return nil, fmt.Errorf("execution failed during stage '%s': %w", pCtx.ErrorStage, pCtx.LastError)
	default:
		return nil, fmt.Errorf("execution is still in progress (current state: %s)", pCtx.CurrentState)
	}
}

// CancelAsyncRun cancels an ongoing async run.
// Returns true if the run was cancelled, false if it was already
// complete or not found.
func (e *Engine) CancelAsyncRun(executionID string) (bool, error) {
	e.asyncExecutionsMutex.Lock()
	defer e.asyncExecutionsMutex.Unlock()

	pCtx, exists := e.asyncExecutions[executionID]
	if !exists {
		return false, fmt.Errorf("execution with ID '%s' not found", executionID)
	}

	if pCtx.IsTerminal() {
		return false, nil
	}

	cancelFn, ok := pCtx.StateData["cancel"].(context.CancelFunc)
	if !ok {
		return false, fmt.Errorf("cannot cancel execution: cancel function not found")
	}
	cancelFn()

	pCtx.SetCancelled(fmt.Errorf("execution cancelled by caller"), string(pCtx.CurrentState))

	if e.config.EnableEventBus && e.eventBus != nil {
		cancelEvent := eventbus.NewEvent(
			eventbus.EventQueryAsyncProcessingCancelled,
			pCtx.Utterance,
			"Engine.CancelAsyncRun",
			map[string]interface{}{
				"execution_id": executionID,
				"duration_ms":  pCtx.GetTotalDuration().Milliseconds(),
			},
		)
		e.eventBus.Publish(context.Background(), cancelEvent)
	}

	return true, nil
}

// ListAsyncRuns returns all async execution IDs and their current states.
func (e *Engine) ListAsyncRuns() map[string]string {
	e.asyncExecutionsMutex.RLock()
	defer e.asyncExecutionsMutex.RUnlock()

	result := make(map[string]string, len(e.asyncExecutions))
	for id, pCtx := range e.asyncExecutions {
		result[id] = string(pCtx.CurrentState)
	}

	return result
}

// CleanupCompletedRuns removes terminal runs older than the given age,
// preventing the async map from growing without bound.
func (e *Engine) CleanupCompletedRuns(olderThan time.Duration) int {
	e.asyncExecutionsMutex.Lock()
	defer e.asyncExecutionsMutex.Unlock()

	now := time.Now()
	count := 0

	for id, pCtx := range e.asyncExecutions {
		if pCtx.IsTerminal() && now.Sub(pCtx.StateStartTimes[pCtx.CurrentState]) > olderThan {
			delete(e.asyncExecutions, id)
			count++
		}
	}

	return count
}
