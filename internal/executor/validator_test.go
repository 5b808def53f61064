package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/sagedesk/sage"
)

func echoTool(name string, params map[string]sage.ParamSpec) sage.Tool {
	return &mockTool{
		name:   name,
		params: params,
		execFunc: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"message": "ok"}, nil
		},
	}
}

func TestValidator_UnknownToolRetainedAndMarked(t *testing.T) {
	reg := registryWith(echoTool("known", nil))

	plan := &sage.ExecutionPlan{ToolCalls: []sage.ToolCall{
		{Tool: "known", Params: map[string]interface{}{}},
		{Tool: "ghost", Params: map[string]interface{}{}},
	}}
	validated := NewValidator().Validate(plan, reg)

	if len(validated.Steps) != 2 {
		t.Fatalf("invalid steps must be retained, got %d steps", len(validated.Steps))
	}
	if !validated.Steps[0].Valid() {
		t.Errorf("known tool should validate: %v", validated.Steps[0].Err)
	}
	if validated.Steps[1].Valid() {
		t.Error("unknown tool should be marked invalid")
	}
	if sage.CodeOf(validated.Steps[1].Err) != sage.ErrCodeToolNotFound {
		t.Errorf("expected TOOL_NOT_FOUND, got %v", validated.Steps[1].Err)
	}
}

func TestValidator_MissingRequiredParamsListed(t *testing.T) {
	reg := registryWith(echoTool("send", map[string]sage.ParamSpec{
		"recipient": {Type: sage.ParamTypeString, Required: true},
		"body":      {Type: sage.ParamTypeString, Required: true},
	}))

	plan := &sage.ExecutionPlan{ToolCalls: []sage.ToolCall{
		{Tool: "send", Params: map[string]interface{}{}},
	}}
	validated := NewValidator().Validate(plan, reg)

	step := validated.Steps[0]
	if step.Valid() {
		t.Fatal("step with missing required params should be invalid")
	}
	if sage.CodeOf(step.Err) != sage.ErrCodeParamValidation {
		t.Errorf("expected PARAMETER_VALIDATION_ERROR, got %v", step.Err)
	}
	msg := step.Err.Error()
	if !strings.Contains(msg, "recipient") || !strings.Contains(msg, "body") {
		t.Errorf("error should name every missing parameter: %s", msg)
	}
}

func TestValidator_DefaultsApplied(t *testing.T) {
	reg := registryWith(echoTool("volume", map[string]sage.ParamSpec{
		"level": {Type: sage.ParamTypeNumber, Default: float64(50)},
	}))

	plan := &sage.ExecutionPlan{ToolCalls: []sage.ToolCall{
		{Tool: "volume", Params: map[string]interface{}{}},
	}}
	validated := NewValidator().Validate(plan, reg)

	step := validated.Steps[0]
	if !step.Valid() {
		t.Fatalf("unexpected validation error: %v", step.Err)
	}
	if step.Resolved["level"] != float64(50) {
		t.Errorf("default not applied: %v", step.Resolved["level"])
	}
}

func TestValidator_Coercion(t *testing.T) {
	reg := registryWith(echoTool("mixed", map[string]sage.ParamSpec{
		"count":  {Type: sage.ParamTypeNumber},
		"loud":   {Type: sage.ParamTypeBoolean},
		"label":  {Type: sage.ParamTypeString},
	}))

	plan := &sage.ExecutionPlan{ToolCalls: []sage.ToolCall{
		{Tool: "mixed", Params: map[string]interface{}{
			"count": "42",
			"loud":  "true",
			"label": float64(7),
		}},
	}}
	validated := NewValidator().Validate(plan, reg)

	step := validated.Steps[0]
	if !step.Valid() {
		t.Fatalf("unexpected validation error: %v", step.Err)
	}
	if step.Resolved["count"] != float64(42) {
		t.Errorf("number coercion failed: %v", step.Resolved["count"])
	}
	if step.Resolved["loud"] != true {
		t.Errorf("boolean coercion failed: %v", step.Resolved["loud"])
	}
	if step.Resolved["label"] != "7" {
		t.Errorf("string coercion failed: %v", step.Resolved["label"])
	}
}

func TestValidator_UncoercibleValueFails(t *testing.T) {
	reg := registryWith(echoTool("volume", map[string]sage.ParamSpec{
		"level": {Type: sage.ParamTypeNumber, Required: true},
	}))

	plan := &sage.ExecutionPlan{ToolCalls: []sage.ToolCall{
		{Tool: "volume", Params: map[string]interface{}{"level": "loudest"}},
	}}
	validated := NewValidator().Validate(plan, reg)

	if validated.Steps[0].Valid() {
		t.Error("uncoercible value should invalidate the step")
	}
}

func TestValidator_ReferencesSkipCoercion(t *testing.T) {
	reg := registryWith(echoTool("typewriter", map[string]sage.ParamSpec{
		"text": {Type: sage.ParamTypeString, Required: true},
	}))

	plan := &sage.ExecutionPlan{ToolCalls: []sage.ToolCall{
		{Tool: "typewriter", Params: map[string]interface{}{"text": "$LAST_RESULT"}},
	}}
	validated := NewValidator().Validate(plan, reg)

	step := validated.Steps[0]
	if !step.Valid() {
		t.Fatalf("reference param should pass validation: %v", step.Err)
	}
	if step.Resolved["text"] != "$LAST_RESULT" {
		t.Errorf("reference should be left for the executor: %v", step.Resolved["text"])
	}
}

func TestValidator_UndeclaredParamsPassThrough(t *testing.T) {
	reg := registryWith(echoTool("open", map[string]sage.ParamSpec{
		"app_name": {Type: sage.ParamTypeString, Required: true},
	}))

	plan := &sage.ExecutionPlan{ToolCalls: []sage.ToolCall{
		{Tool: "open", Params: map[string]interface{}{"app_name": "chrome", "extra": 1}},
	}}
	validated := NewValidator().Validate(plan, reg)

	step := validated.Steps[0]
	if !step.Valid() {
		t.Fatalf("unexpected validation error: %v", step.Err)
	}
	if step.Resolved["extra"] != 1 {
		t.Errorf("undeclared params should pass through: %v", step.Resolved)
	}
}
