package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sagedesk/sage"
)

// PlanValidator checks each plan step against a single registry
// snapshot. Invalid steps are marked and retained in place so that the
// executor reports them as failed at their original index.
type PlanValidator struct{}

// NewValidator creates a plan validator.
func NewValidator() *PlanValidator {
	return &PlanValidator{}
}

// Validate binds every step to its tool and coerces literal parameters
// to the declared types. The whole plan is validated against one
// snapshot, so tools registered mid-request cannot produce a torn view.
func (v *PlanValidator) Validate(plan *sage.ExecutionPlan, registry *sage.Registry) *sage.ValidatedPlan {
	snapshot := registry.Snapshot()

	validated := &sage.ValidatedPlan{
		Plan:  plan,
		Steps: make([]sage.ValidatedStep, len(plan.ToolCalls)),
	}

	for i, call := range plan.ToolCalls {
		step := sage.ValidatedStep{Call: call}

		tool, exists := snapshot[call.Tool]
		if !exists {
			step.Err = sage.NewToolNotFoundError("validation", call.Tool)
			validated.Steps[i] = step
			continue
		}
		step.Tool = tool

		resolved, problems := coerceParams(call.Params, tool.Descriptor().Parameters)
		if len(problems) > 0 {
			step.Err = sage.NewParamValidationError(call.Tool, problems)
			validated.Steps[i] = step
			continue
		}
		step.Resolved = resolved

		validated.Steps[i] = step
	}

	return validated
}

// coerceParams applies defaults for missing optional parameters,
// reports missing required ones, and coerces literal values to their
// declared types. Step-memory references ($NAME) are left untouched
// for the executor to resolve, and parameters the schema does not
// declare pass through unchanged.
func coerceParams(params map[string]interface{}, schema map[string]sage.ParamSpec) (map[string]interface{}, []string) {
	resolved := make(map[string]interface{}, len(params))
	var problems []string

	for name, value := range params {
		spec, declared := schema[name]
		if !declared {
			resolved[name] = value
			continue
		}
		if isReference(value) {
			resolved[name] = value
			continue
		}
		coerced, err := coerceValue(value, spec.Type)
		if err != nil {
			problems = append(problems, fmt.Sprintf("parameter '%s': %v", name, err))
			continue
		}
		resolved[name] = coerced
	}

	for name, spec := range schema {
		if _, present := params[name]; present {
			continue
		}
		if spec.Default != nil {
			resolved[name] = spec.Default
			continue
		}
		if spec.Required {
			problems = append(problems, fmt.Sprintf("missing required parameter '%s'", name))
		}
	}

	return resolved, problems
}

// isReference reports whether a value is a whole-value step-memory
// reference of the form $NAME.
func isReference(value interface{}) bool {
	str, ok := value.(string)
	return ok && strings.HasPrefix(str, "$") && len(str) > 1
}

// coerceValue converts a literal to the declared parameter type.
func coerceValue(value interface{}, paramType sage.ParamType) (interface{}, error) {
	switch paramType {
	case sage.ParamTypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case float64, int, int64, bool:
			return fmt.Sprintf("%v", v), nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to string", value)
		}

	case sage.ParamTypeNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to number", v)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to number", value)
		}

	case sage.ParamTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to boolean", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to boolean", value)
		}

	default:
		// Unknown declared type: pass the literal through.
		return value, nil
	}
}
