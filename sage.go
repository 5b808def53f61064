// Package sage provides the core runtime for turning natural-language
// requests into validated, sequentially executed tool plans.
package sage

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sagedesk/sage/internal/eventbus"
	"github.com/google/uuid"
)

// Engine is the main entry point into the sage runtime. It wires the
// planner, validator, executor, fallback interpreter and
// code-generation gateway around a shared capability registry.
type Engine struct {
	// Core components
	planner     Planner
	validator   Validator
	executor    Executor
	interpreter Interpreter
	gateway     Gateway
	eventBus    eventbus.EventBus

	// Capability registry shared by all requests
	registry *Registry

	// Configuration
	config Config

	// Async processing
	asyncExecutions      map[string]*ProcessContext
	asyncExecutionsMutex sync.RWMutex
}

// Config holds the configuration options for the sage runtime.
type Config struct {
	// Hard deadline for a single planner call
	PlannerTimeout time.Duration

	// Hard deadline for a single code-generation call
	CodegenTimeout time.Duration

	// Per-step execution timeout; zero means no per-step deadline
	StepTimeout time.Duration

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PlannerTimeout:      time.Second * 30,
		CodegenTimeout:      time.Second * 60,
		StepTimeout:         time.Second * 30,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Option is a function that configures an Engine instance.
type Option func(*Engine)

// WithConfig sets the configuration.
func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// WithPlanner sets the planning client.
func WithPlanner(planner Planner) Option {
	return func(e *Engine) {
		e.planner = planner
	}
}

// WithValidator sets the plan validator.
func WithValidator(validator Validator) Option {
	return func(e *Engine) {
		e.validator = validator
	}
}

// WithExecutor sets the step executor.
func WithExecutor(executor Executor) Option {
	return func(e *Engine) {
		e.executor = executor
	}
}

// WithInterpreter sets the deterministic fallback interpreter.
func WithInterpreter(interpreter Interpreter) Option {
	return func(e *Engine) {
		e.interpreter = interpreter
	}
}

// WithGateway sets the code-generation gateway.
func WithGateway(gateway Gateway) Option {
	return func(e *Engine) {
		e.gateway = gateway
	}
}

// WithRegistry sets the capability registry.
func WithRegistry(registry *Registry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// WithEventBus sets a custom event bus implementation.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Engine) {
		e.eventBus = bus
	}
}

// New creates a new Engine with the provided options.
func New(options ...Option) (*Engine, error) {
	e := &Engine{
		config:          DefaultConfig(),
		asyncExecutions: make(map[string]*ProcessContext),
	}

	for _, option := range options {
		option(e)
	}

	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.planner == nil {
		return nil, NewConfigurationError("planner is required", nil)
	}
	if e.validator == nil {
		return nil, NewConfigurationError("validator is required", nil)
	}
	if e.executor == nil {
		return nil, NewConfigurationError("executor is required", nil)
	}
	if e.registry.Len() == 0 {
		return nil, NewConfigurationError("at least one tool is required", nil)
	}

	if e.config.EnableEventBus && e.eventBus == nil {
		e.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(e.config.EventBusBufferSize),
			eventbus.WithWorkerCount(e.config.EventBusWorkerCount),
		)
		log.Printf("Initialized default channel-based event bus")
	}

	return e, nil
}

// RegisterTool adds a tool to the capability registry. Registering an
// existing name replaces the previous tool; requests already in flight
// keep the snapshot they resolved.
func (e *Engine) RegisterTool(tool Tool) error {
	return e.registry.Register(tool)
}

// Registry returns the engine's capability registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Catalog returns descriptors for every registered tool.
func (e *Engine) Catalog() []ToolDescriptor {
	return e.registry.Catalog()
}

// ListTools returns the names of all registered tools.
func (e *Engine) ListTools() []string {
	return e.registry.Names()
}

// Run handles an utterance end to end through the state machine and
// returns the execution report. A non-nil error means cancellation or
// an internal failure; defined domain outcomes (fallback answers,
// rejected automations, plans with failed steps) come back as reports
// with a nil error.
func (e *Engine) Run(ctx context.Context, utterance string) (*PlanExecutionReport, error) {
	stateMachine := e.createStateMachine()
	processContext := NewProcessContext(utterance)
	return stateMachine.Execute(ctx, processContext)
}

// RunPlan validates and executes a caller-supplied plan, bypassing the
// planner. Routines loaded from plan files go through here.
func (e *Engine) RunPlan(ctx context.Context, plan *ExecutionPlan) (*PlanExecutionReport, error) {
	if plan == nil {
		return nil, NewConfigurationError("plan is required", nil)
	}
	validated := e.validator.Validate(plan, e.registry)
	return e.executor.Execute(ctx, validated)
}

// createStateMachine builds a state machine wired to the engine's
// components.
func (e *Engine) createStateMachine() *StateMachine {
	var bus eventbus.EventBus
	if e.config.EnableEventBus {
		bus = e.eventBus
	}

	components := Components{
		Planner:     e.planner,
		Validator:   e.validator,
		Executor:    e.executor,
		Interpreter: e.interpreter,
		Gateway:     e.gateway,
		Registry:    e.registry,
		Config:      e.config,
	}

	return CreateProcessStateMachine(components, bus)
}

// RunAsync starts an asynchronous run and returns a unique execution
// ID for status polling, result retrieval and cancellation.
func (e *Engine) RunAsync(ctx context.Context, utterance string) (string, error) {
	executionID := uuid.New().String()

	stateMachine := e.createStateMachine()
	processContext := NewProcessContext(utterance)

	e.asyncExecutionsMutex.Lock()
	e.asyncExecutions[executionID] = processContext
	e.asyncExecutionsMutex.Unlock()

	// The async run outlives the caller's context.
	asyncCtx, cancel := context.WithCancel(context.Background())
	processContext.StateData["cancel"] = cancel

	if e.config.EnableEventBus && e.eventBus != nil {
		startEvent := eventbus.NewEvent(
			eventbus.EventQueryAsyncProcessingStarted,
			utterance,
			"Engine.RunAsync",
			map[string]interface{}{
				"timestamp":    time.Now().Format(time.RFC3339),
				"execution_id": executionID,
			},
		)
		e.eventBus.Publish(ctx, startEvent)
	}

	go func() {
		defer cancel()

		report, err := stateMachine.Execute(asyncCtx, processContext)

		e.asyncExecutionsMutex.Lock()
		if pCtx, exists := e.asyncExecutions[executionID]; exists {
			pCtx.Report = report
			if err != nil && !pCtx.IsTerminal() {
				pCtx.SetError(err, string(pCtx.CurrentState))
			}
		}
		e.asyncExecutionsMutex.Unlock()

		if e.config.EnableEventBus && e.eventBus != nil {
			eventType := eventbus.EventQueryAsyncProcessingSuccess
			metadata := map[string]interface{}{
				"execution_id": executionID,
				"duration_ms":  processContext.GetTotalDuration().Milliseconds(),
			}
			if err != nil {
				eventType = eventbus.EventQueryAsyncProcessingFailure
				metadata["error"] = err.Error()
				metadata["error_stage"] = processContext.ErrorStage
			}
			completionEvent := eventbus.NewEvent(eventType, utterance, "Engine.RunAsync", metadata)
			// The original context may be done by now.
			e.eventBus.Publish(context.Background(), completionEvent)
		}
	}()

	return executionID, nil
}

// Close releases engine resources, including the event bus.
func (e *Engine) Close() error {
	if e.eventBus != nil {
		return e.eventBus.Close()
	}
	return nil
}
