package executor

import (
	"sync"
	"time"

	"github.com/sagedesk/sage"
)

// ExecutorMetrics tracks statistics about plan execution.
type ExecutorMetrics struct {
	StepsExecuted    int
	StepsSuccessful  int
	StepsFailed      int
	TotalDuration    time.Duration
	LongestStepTime  time.Duration
	ShortestStepTime time.Duration

	mu sync.Mutex // Protects metrics updates
}

// Copy returns a snapshot without the mutex.
func (m *ExecutorMetrics) Copy() ExecutorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ExecutorMetrics{
		StepsExecuted:    m.StepsExecuted,
		StepsSuccessful:  m.StepsSuccessful,
		StepsFailed:      m.StepsFailed,
		TotalDuration:    m.TotalDuration,
		LongestStepTime:  m.LongestStepTime,
		ShortestStepTime: m.ShortestStepTime,
	}
}

func (m *ExecutorMetrics) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StepsExecuted = 0
	m.StepsSuccessful = 0
	m.StepsFailed = 0
	m.TotalDuration = 0
	m.LongestStepTime = 0
	m.ShortestStepTime = time.Hour * 24
}

func (m *ExecutorMetrics) record(result *sage.StepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StepsExecuted++
	m.TotalDuration += result.Duration

	if result.Duration > m.LongestStepTime {
		m.LongestStepTime = result.Duration
	}
	if result.Duration < m.ShortestStepTime && result.Duration > 0 {
		m.ShortestStepTime = result.Duration
	}

	if result.Succeeded() {
		m.StepsSuccessful++
	} else {
		m.StepsFailed++
	}
}
