package executor

import (
	"fmt"
	"os"

	"github.com/sagedesk/sage"
	"gopkg.in/yaml.v3"
)

// PlanFile is a reusable routine stored on disk: a named, ordered list
// of tool invocations that runs through the normal validate/execute
// path without involving the planner.
type PlanFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Response    string     `yaml:"response,omitempty"`
	Steps       []PlanStep `yaml:"steps"`
}

// PlanStep is one invocation in a plan file.
type PlanStep struct {
	Tool   string                 `yaml:"tool"`
	Params map[string]interface{} `yaml:"params"`
}

// PlanFileLoader loads a PlanFile from a source path.
type PlanFileLoader interface {
	Load(source string) (*PlanFile, error)
	Format() string // e.g. "yaml"
}

// loaderRegistry holds registered PlanFileLoaders by format name.
var loaderRegistry = make(map[string]PlanFileLoader)

// RegisterPlanFileLoader registers a loader for a given format.
func RegisterPlanFileLoader(loader PlanFileLoader) {
	loaderRegistry[loader.Format()] = loader
}

// GetPlanFileLoader retrieves a loader by format name (e.g. "yaml").
func GetPlanFileLoader(format string) (PlanFileLoader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements PlanFileLoader for YAML files.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) (*PlanFile, error) {
	return LoadPlanFile(path)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterPlanFileLoader(YAMLLoader{})
}

// LoadPlanFile parses a YAML plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()
	var pf PlanFile
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	return &pf, nil
}

// Validate checks the plan file for an empty step list and steps with
// no tool name. Tool existence is checked later against the registry,
// so a routine can reference tools registered after loading.
func (pf *PlanFile) Validate() error {
	if pf.Name == "" {
		return fmt.Errorf("plan file has no name")
	}
	if len(pf.Steps) == 0 {
		return fmt.Errorf("plan file '%s' has no steps", pf.Name)
	}
	for i, step := range pf.Steps {
		if step.Tool == "" {
			return fmt.Errorf("plan file '%s' step %d has no tool", pf.Name, i)
		}
	}
	return nil
}

// ToExecutionPlan converts the plan file to an ExecutionPlan. Step
// params may use $NAME step-memory references just like planner output.
func (pf *PlanFile) ToExecutionPlan() *sage.ExecutionPlan {
	calls := make([]sage.ToolCall, 0, len(pf.Steps))
	for _, step := range pf.Steps {
		params := step.Params
		if params == nil {
			params = map[string]interface{}{}
		}
		calls = append(calls, sage.ToolCall{Tool: step.Tool, Params: params})
	}
	return &sage.ExecutionPlan{
		ToolCalls: calls,
		Response:  pf.Response,
	}
}

// LoadAndValidatePlan loads a plan file with the default YAML loader,
// validates it, and returns an ExecutionPlan.
func LoadAndValidatePlan(path string) (*sage.ExecutionPlan, error) {
	loader, ok := GetPlanFileLoader("yaml")
	if !ok {
		return nil, fmt.Errorf("no YAML plan loader registered")
	}

	planFile, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	if err := planFile.Validate(); err != nil {
		return nil, err
	}
	return planFile.ToExecutionPlan(), nil
}
