package adapters

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sagedesk/sage"
)

var fenceLineRe = regexp.MustCompile("(?m)^```[a-zA-Z0-9]*\\s*$")

// ParsePlanText decodes the model's plan text into an ExecutionPlan.
// Markdown fences are tolerated; anything else that is not the
// expected JSON object is an error.
func ParsePlanText(text string) (*sage.ExecutionPlan, error) {
	cleaned := strings.TrimSpace(fenceLineRe.ReplaceAllString(text, ""))
	if cleaned == "" {
		return nil, fmt.Errorf("empty plan text")
	}

	var plan sage.ExecutionPlan
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("plan is not valid JSON: %w", err)
	}

	for i, call := range plan.ToolCalls {
		if strings.TrimSpace(call.Tool) == "" {
			return nil, fmt.Errorf("tool call %d has no tool name", i)
		}
		if call.Params == nil {
			plan.ToolCalls[i].Params = make(map[string]interface{})
		}
	}

	return &plan, nil
}
