package codegen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sagedesk/sage"
)

type mockGenerator struct {
	source string
	err    error
	calls  int
}

func (m *mockGenerator) Generate(ctx context.Context, task string) (string, error) {
	m.calls++
	return m.source, m.err
}

type mockRunner struct {
	payload map[string]interface{}
}

func (m *mockRunner) Run(ctx context.Context, name, sourcePath string, params map[string]interface{}) (map[string]interface{}, error) {
	return m.payload, nil
}

func newTestGateway(t *testing.T, gen sage.Generator) (*ToolGateway, *sage.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := sage.NewRegistry()
	runner := &mockRunner{payload: map[string]interface{}{"message": "done"}}
	return NewGateway(gen, reg, runner, WithToolsDir(dir)), reg, dir
}

func TestProvision_NotAutomatable(t *testing.T) {
	gen := &mockGenerator{source: "print('hi')"}
	gw, reg, _ := newTestGateway(t, gen)

	_, err := gw.Provision(context.Background(), "summarize my quarterly report")
	if sage.CodeOf(err) != sage.ErrCodeNotAutomatable {
		t.Fatalf("expected NOT_AUTOMATABLE, got %v", err)
	}
	if gen.calls != 0 {
		t.Error("generator must not run for non-automation tasks")
	}
	if reg.Len() != 0 {
		t.Error("nothing should be registered")
	}
}

func TestProvision_UnsafeCodeRejected(t *testing.T) {
	gen := &mockGenerator{source: `import os
os.system("shutdown /s /t 0")`}
	gw, reg, dir := newTestGateway(t, gen)

	candidate, err := gw.Provision(context.Background(), "click the shutdown button")
	if sage.CodeOf(err) != sage.ErrCodeUnsafeCode {
		t.Fatalf("expected UNSAFE_GENERATED_CODE, got %v", err)
	}
	if candidate == nil || candidate.Safe {
		t.Fatalf("candidate should be marked unsafe: %+v", candidate)
	}
	if len(candidate.Matched) == 0 {
		t.Error("matched markers should be reported")
	}
	if reg.Len() != 0 {
		t.Error("unsafe tool must not be registered")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Error("unsafe source must not be persisted")
	}
}

func TestProvision_SafeCodeRegisteredAndPersisted(t *testing.T) {
	gen := &mockGenerator{source: "```python\nimport pyautogui\npyautogui.click(10, 20)\n```"}
	gw, reg, dir := newTestGateway(t, gen)

	candidate, err := gw.Provision(context.Background(), "click the save button")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !candidate.Safe || candidate.Reused {
		t.Errorf("unexpected candidate: %+v", candidate)
	}
	if candidate.Name != "click_the_save_button" {
		t.Errorf("unexpected name: %s", candidate.Name)
	}
	if !reg.Has("click_the_save_button") {
		t.Fatal("accepted tool should be registered")
	}

	data, err := os.ReadFile(filepath.Join(dir, "click_the_save_button.py"))
	if err != nil {
		t.Fatalf("persisted file missing: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "# TOOL_NAME: click_the_save_button") {
		t.Error("missing TOOL_NAME header")
	}
	if !strings.Contains(content, "# DESCRIPTION: click the save button") {
		t.Error("missing DESCRIPTION header")
	}
	if !strings.Contains(content, "# GENERATED:") {
		t.Error("missing GENERATED header")
	}
	if strings.Contains(content, "```") {
		t.Error("fences should be stripped before persisting")
	}
	if !strings.Contains(content, `if __name__ == "__main__":`) ||
		!strings.Contains(content, "click_the_save_button(**_kwargs)") {
		t.Error("persisted script should carry an invocation harness for its function")
	}
}

func TestProvision_ReuseSkipsGeneration(t *testing.T) {
	gen := &mockGenerator{source: "import pyautogui\npyautogui.click(1, 1)"}
	gw, _, _ := newTestGateway(t, gen)

	if _, err := gw.Provision(context.Background(), "click the save button"); err != nil {
		t.Fatalf("first provision failed: %v", err)
	}
	candidate, err := gw.Provision(context.Background(), "click the save button")
	if err != nil {
		t.Fatalf("second provision failed: %v", err)
	}
	if !candidate.Reused {
		t.Error("second provision should reuse the registered tool")
	}
	if gen.calls != 1 {
		t.Errorf("generator should run once, ran %d times", gen.calls)
	}
}

func TestLoadPersisted(t *testing.T) {
	gen := &mockGenerator{source: "import pyautogui\npyautogui.press('enter')"}
	gw, _, dir := newTestGateway(t, gen)

	if _, err := gw.Provision(context.Background(), "press the enter key"); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	// Fresh registry simulates a restart.
	reg2 := sage.NewRegistry()
	gw2 := NewGateway(gen, reg2, &mockRunner{}, WithToolsDir(dir))
	loaded, err := gw2.LoadPersisted()
	if err != nil {
		t.Fatalf("LoadPersisted failed: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("expected 1 loaded tool, got %d", loaded)
	}
	tool, ok := reg2.Lookup("press_the_enter_key")
	if !ok {
		t.Fatal("persisted tool not re-registered")
	}
	if tool.Descriptor().Description != "press the enter key" {
		t.Errorf("description not recovered from header: %q", tool.Descriptor().Description)
	}
}

func TestLoadPersisted_SkipsUnsafeFiles(t *testing.T) {
	dir := t.TempDir()
	bad := "# TOOL_NAME: wipe_disk\n# DESCRIPTION: bad\n\nimport os\nos.system('dd if=/dev/zero of=/dev/sda')\n"
	if err := os.WriteFile(filepath.Join(dir, "wipe_disk.py"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := sage.NewRegistry()
	gw := NewGateway(&mockGenerator{}, reg, &mockRunner{}, WithToolsDir(dir))
	loaded, err := gw.LoadPersisted()
	if err != nil {
		t.Fatalf("LoadPersisted failed: %v", err)
	}
	if loaded != 0 || reg.Len() != 0 {
		t.Error("unsafe persisted file must not be loaded")
	}
}

func TestLoadPersisted_MissingDirIsEmpty(t *testing.T) {
	reg := sage.NewRegistry()
	gw := NewGateway(&mockGenerator{}, reg, &mockRunner{}, WithToolsDir(filepath.Join(t.TempDir(), "nope")))
	loaded, err := gw.LoadPersisted()
	if err != nil || loaded != 0 {
		t.Errorf("missing dir should load nothing: %d, %v", loaded, err)
	}
}

func TestGeneratedTool_ExecuteUsesRunner(t *testing.T) {
	runner := &mockRunner{payload: map[string]interface{}{"message": "pressed"}}
	tool := newGeneratedTool("press_key", "press a key", "/tmp/press_key.py", runner)

	payload, err := tool.Execute(context.Background(), map[string]interface{}{"task": "press enter"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["message"] != "pressed" {
		t.Errorf("unexpected payload: %v", payload)
	}
}
