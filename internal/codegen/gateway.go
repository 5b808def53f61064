package codegen

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sagedesk/sage"
)

// automationKeywords gates generation: only tasks that sound like
// desktop automation are worth sending to the code model.
var automationKeywords = []string{
	"click", "type", "press", "key", "mouse", "screen", "window",
	"button", "menu", "dialog", "form", "input", "select", "drag",
	"scroll", "screenshot", "find", "locate", "image", "text",
	"open", "close", "minimize", "maximize", "move", "resize",
}

// CanAutomate reports whether the task mentions automation vocabulary.
func CanAutomate(task string) bool {
	lowered := strings.ToLower(task)
	for _, keyword := range automationKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// Runner executes a persisted automation script and returns its
// payload in the standard tool format.
type Runner interface {
	Run(ctx context.Context, name, sourcePath string, params map[string]interface{}) (map[string]interface{}, error)
}

// ToolGateway provisions generated tools: gate, generate, screen,
// persist, register. Rejected candidates never reach the registry or
// the disk.
type ToolGateway struct {
	generator sage.Generator
	registry  *sage.Registry
	runner    Runner
	toolsDir  string
}

// GatewayOption configures the gateway.
type GatewayOption func(*ToolGateway)

// WithToolsDir sets the directory where accepted sources are persisted.
func WithToolsDir(dir string) GatewayOption {
	return func(g *ToolGateway) {
		g.toolsDir = dir
	}
}

// NewGateway creates a gateway. generator produces source text,
// runner executes persisted scripts, registry receives accepted tools.
func NewGateway(generator sage.Generator, registry *sage.Registry, runner Runner, options ...GatewayOption) *ToolGateway {
	g := &ToolGateway{
		generator: generator,
		registry:  registry,
		runner:    runner,
		toolsDir:  "generated_tools",
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// Provision turns an automation request into a registered tool. The
// returned candidate describes the attempt; on rejection the error
// carries the UNSAFE_GENERATED_CODE or NOT_AUTOMATABLE code and
// nothing is registered or persisted.
func (g *ToolGateway) Provision(ctx context.Context, task string) (*sage.GeneratedToolCandidate, error) {
	if !CanAutomate(task) {
		return nil, sage.NewNotAutomatableError(task)
	}

	name := DeriveToolName(task)

	// An existing tool under the derived name short-circuits generation.
	if g.registry.Has(name) {
		log.Printf("Reusing existing generated tool (name: %s)", name)
		return &sage.GeneratedToolCandidate{
			Name:        name,
			Task:        task,
			Safe:        true,
			Reused:      true,
			GeneratedAt: time.Now(),
		}, nil
	}

	raw, err := g.generator.Generate(ctx, task)
	if err != nil {
		return nil, sage.NewInternalError("generation", "code generation failed", err)
	}
	source := StripFences(raw)

	candidate := &sage.GeneratedToolCandidate{
		Name:        name,
		Task:        task,
		Source:      source,
		GeneratedAt: time.Now(),
	}

	verdict := Screen(source)
	candidate.Safe = verdict.Safe
	candidate.Matched = verdict.Matched
	if !verdict.Safe {
		log.Printf("Generated code rejected (name: %s, markers: %v)", name, verdict.Matched)
		return candidate, sage.NewUnsafeCodeError(name, verdict.Matched)
	}

	path, err := g.persist(candidate)
	if err != nil {
		return candidate, sage.NewInternalError("generation", "failed to persist generated tool", err)
	}
	candidate.SourcePath = path

	tool := newGeneratedTool(name, task, path, g.runner)
	if err := g.registry.Register(tool); err != nil {
		return candidate, err
	}

	log.Printf("Generated tool registered (name: %s, path: %s)", name, path)
	return candidate, nil
}

// persist writes the source with its metadata header to the tools dir.
// The generated source only defines the function, so an invocation
// harness is appended to make the file runnable on its own.
func (g *ToolGateway) persist(candidate *sage.GeneratedToolCandidate) (string, error) {
	if err := os.MkdirAll(g.toolsDir, 0o755); err != nil {
		return "", err
	}

	content := fmt.Sprintf("# TOOL_NAME: %s\n# DESCRIPTION: %s\n# GENERATED: %s\n\n%s\n",
		candidate.Name,
		candidate.Task,
		candidate.GeneratedAt.Format("2006-01-02 15:04:05"),
		candidate.Source,
	)
	if !strings.Contains(candidate.Source, "__main__") {
		content += "\n" + invocationHarness(candidate.Name) + "\n"
	}

	path := filepath.Join(g.toolsDir, candidate.Name+".py")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// invocationHarness calls the generated function with the JSON kwargs
// from argv and prints its result dict as JSON on the last stdout line,
// which is what the runner decodes.
func invocationHarness(name string) string {
	return fmt.Sprintf(`if __name__ == "__main__":
    import json
    import sys

    _kwargs = json.loads(sys.argv[1]) if len(sys.argv) > 1 else {}
    print(json.dumps(%s(**_kwargs)))`, name)
}

// LoadPersisted re-registers every previously accepted tool found in
// the tools dir. Files are re-screened on load in case the deny-list
// grew since they were written.
func (g *ToolGateway) LoadPersisted() (int, error) {
	entries, err := os.ReadDir(g.toolsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".py" {
			continue
		}
		path := filepath.Join(g.toolsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Skipping unreadable generated tool (path: %s, error: %v)", path, err)
			continue
		}
		content := string(data)

		name := headerValue(content, "# TOOL_NAME:")
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ".py")
		}
		description := headerValue(content, "# DESCRIPTION:")
		if description == "" {
			description = "generated automation"
		}

		if verdict := Screen(content); !verdict.Safe {
			log.Printf("Skipping persisted tool that fails screening (name: %s, markers: %v)", name, verdict.Matched)
			continue
		}

		if err := g.registry.Register(newGeneratedTool(name, description, path, g.runner)); err != nil {
			return loaded, err
		}
		loaded++
	}

	if loaded > 0 {
		log.Printf("Loaded persisted generated tools (count: %d, dir: %s)", loaded, g.toolsDir)
	}
	return loaded, nil
}

func headerValue(content, header string) string {
	idx := strings.Index(content, header)
	if idx < 0 {
		return ""
	}
	rest := content[idx+len(header):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

// generatedTool adapts a persisted script into the Tool interface.
type generatedTool struct {
	name        string
	description string
	sourcePath  string
	runner      Runner
}

func newGeneratedTool(name, description, sourcePath string, runner Runner) *generatedTool {
	return &generatedTool{
		name:        name,
		description: description,
		sourcePath:  sourcePath,
		runner:      runner,
	}
}

func (t *generatedTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if t.runner == nil {
		return nil, fmt.Errorf("no runner configured for generated tool '%s'", t.name)
	}
	return t.runner.Run(ctx, t.name, t.sourcePath, input)
}

func (t *generatedTool) Name() string { return t.name }

func (t *generatedTool) Descriptor() sage.ToolDescriptor {
	return sage.ToolDescriptor{
		Name:        t.name,
		Description: t.description,
		Parameters: map[string]sage.ParamSpec{
			"task": {Type: sage.ParamTypeString, Description: "original task description"},
		},
	}
}
