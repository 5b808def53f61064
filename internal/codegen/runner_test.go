package codegen

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sagedesk/sage"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func persistScript(t *testing.T, name, task, source string) string {
	t.Helper()
	gw := NewGateway(nil, sage.NewRegistry(), NewExecRunner(""), WithToolsDir(t.TempDir()))
	path, err := gw.persist(&sage.GeneratedToolCandidate{
		Name:        name,
		Task:        task,
		Source:      source,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	return path
}

func TestExecRunner_InvokesGeneratedFunction(t *testing.T) {
	requirePython(t)

	// Shaped like the code model's output: a bare function definition,
	// with a progress print before the return.
	source := strings.Join([]string{
		"def click_blue_button(**kwargs):",
		"    print('clicking')",
		"    return {'success': True, 'message': 'clicked ' + str(kwargs.get('task', ''))}",
	}, "\n")
	path := persistScript(t, "click_blue_button", "click the blue button", source)

	payload, err := NewExecRunner("").Run(context.Background(), "click_blue_button", path,
		map[string]interface{}{"task": "click the blue button"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["message"] != "clicked click the blue button" {
		t.Errorf("function result did not reach the payload: %v", payload)
	}
	if _, ok := payload["success"]; ok {
		t.Error("success flag should be consumed, not forwarded")
	}
}

func TestExecRunner_FunctionFailureIsStepFailure(t *testing.T) {
	requirePython(t)

	source := strings.Join([]string{
		"def press_missing_key(**kwargs):",
		"    return {'success': False, 'message': 'key not found'}",
	}, "\n")
	path := persistScript(t, "press_missing_key", "press the missing key", source)

	_, err := NewExecRunner("").Run(context.Background(), "press_missing_key", path, map[string]interface{}{})
	if err == nil {
		t.Fatal("a result with success false must be an error")
	}
	if !strings.Contains(err.Error(), "key not found") {
		t.Errorf("error should carry the function's message: %v", err)
	}
}

func TestExecRunner_DefinitionOnlyScriptRejected(t *testing.T) {
	requirePython(t)

	// A raw definition with no harness exits 0 with empty stdout; that
	// must not count as a successful step.
	path := filepath.Join(t.TempDir(), "bare.py")
	source := "def noop(**kwargs):\n    return {'success': True, 'message': 'never printed'}\n"
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewExecRunner("").Run(context.Background(), "noop", path, map[string]interface{}{})
	if err == nil {
		t.Fatal("empty output must not be a success")
	}
	if !strings.Contains(err.Error(), "no result dict") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecRunner_ScriptErrorCarriesStderr(t *testing.T) {
	requirePython(t)

	path := persistScript(t, "broken_clicker", "click something broken",
		"def broken_clicker(**kwargs):\n    raise RuntimeError('no display')\n")

	_, err := NewExecRunner("").Run(context.Background(), "broken_clicker", path, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected an execution error")
	}
	if !strings.Contains(err.Error(), "no display") {
		t.Errorf("stderr should surface in the error: %v", err)
	}
}
