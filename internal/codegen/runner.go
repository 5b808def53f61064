package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner runs persisted scripts through an external interpreter.
type ExecRunner struct {
	interpreter string
}

// NewExecRunner creates a runner. interpreter defaults to python3 when
// empty.
func NewExecRunner(interpreter string) *ExecRunner {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &ExecRunner{interpreter: interpreter}
}

// Run executes the script at sourcePath with params passed as a JSON
// argument. The script's invocation harness prints the function's
// result dict as JSON on the last stdout line; a result with success
// false, or output with no result dict at all, is an execution error.
func (r *ExecRunner) Run(ctx context.Context, name, sourcePath string, params map[string]interface{}) (map[string]interface{}, error) {
	args, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params for '%s': %w", name, err)
	}

	cmd := exec.CommandContext(ctx, r.interpreter, sourcePath, string(args))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("generated tool '%s' failed: %v: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	// The function may print progress lines; the result dict is last.
	output := strings.TrimSpace(stdout.String())
	lines := strings.Split(output, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(last), &result); err != nil {
		return nil, fmt.Errorf("generated tool '%s' produced no result dict (output: %q)", name, output)
	}
	if success, ok := result["success"].(bool); ok && !success {
		message, _ := result["message"].(string)
		return nil, fmt.Errorf("generated tool '%s' reported failure: %s", name, message)
	}

	delete(result, "success")
	return result, nil
}
