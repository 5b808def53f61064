package fallback

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/sagedesk/sage"
)

// RuleInterpreter matches utterances against an ordered rule table and
// executes the matched tool directly, bypassing planning entirely.
type RuleInterpreter struct {
	registry *sage.Registry
	rules    []Rule
}

// InterpreterOption configures the rule interpreter.
type InterpreterOption func(*RuleInterpreter)

// WithRules replaces the default rule table.
func WithRules(rules []Rule) InterpreterOption {
	return func(ri *RuleInterpreter) {
		ri.rules = rules
	}
}

// NewInterpreter creates an interpreter bound to a registry, using the
// default rule table unless overridden.
func NewInterpreter(registry *sage.Registry, options ...InterpreterOption) *RuleInterpreter {
	ri := &RuleInterpreter{
		registry: registry,
		rules:    DefaultRules(),
	}
	for _, option := range options {
		option(ri)
	}
	return ri
}

// Match finds the first rule that applies to the utterance. It is a
// pure function: no tool runs, and the same input always yields the
// same call.
func (ri *RuleInterpreter) Match(utterance string) (sage.ToolCall, string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	for _, rule := range ri.rules {
		if call, ok := rule.Extract(normalized); ok {
			return call, rule.Name, ok
		}
	}
	return sage.ToolCall{}, "", false
}

// Interpret matches and then executes the tool named by the rule. ok
// is false when no rule matched or the matched tool is not registered.
func (ri *RuleInterpreter) Interpret(ctx context.Context, utterance string) (*sage.StepResult, bool) {
	call, ruleName, ok := ri.Match(utterance)
	if !ok {
		return nil, false
	}

	tool, exists := ri.registry.Lookup(call.Tool)
	if !exists {
		log.Printf("Fallback rule matched an unregistered tool (rule: %s, tool: %s)", ruleName, call.Tool)
		return nil, false
	}

	log.Printf("Fallback rule matched (rule: %s, tool: %s)", ruleName, call.Tool)

	start := time.Now()
	result := &sage.StepResult{
		Index:    0,
		ToolName: call.Tool,
		Params:   call.Params,
	}

	payload, err := tool.Execute(ctx, call.Params)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = sage.StepStatusFailed
		result.Error = sage.NewToolExecutionError(call.Tool, err)
		result.ErrorMsg = result.Error.Error()
		return result, true
	}

	result.Status = sage.StepStatusSucceeded
	result.Payload = payload
	return result, true
}
