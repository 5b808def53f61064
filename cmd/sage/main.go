package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/spf13/cobra"

	"github.com/sagedesk/sage"
	"github.com/sagedesk/sage/internal/adapters"
	"github.com/sagedesk/sage/internal/cache"
	"github.com/sagedesk/sage/internal/codegen"
	"github.com/sagedesk/sage/internal/executor"
	"github.com/sagedesk/sage/internal/fallback"
	"github.com/sagedesk/sage/internal/prompt"
	"github.com/sagedesk/sage/internal/tools"
)

var (
	flagModel       string
	flagToolsDir    string
	flagInterpreter string
	flagPlanCache   string
	flagJSON        bool
)

func main() {
	root := &cobra.Command{
		Use:           "sage",
		Short:         "Voice-assistant execution engine: plans tool calls with an LLM and runs them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagModel, "model", "googleai/gemini-2.0-flash", "model used for planning and code generation")
	root.PersistentFlags().StringVar(&flagToolsDir, "tools-dir", "generated_tools", "directory for persisted generated tools")
	root.PersistentFlags().StringVar(&flagInterpreter, "interpreter", "python3", "interpreter for generated automation scripts")
	root.PersistentFlags().StringVar(&flagPlanCache, "plan-cache", "", "path to a persistent plan cache file (empty for in-memory)")

	root.AddCommand(newRunCmd(), newRoutineCmd(), newToolsCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("sage: %v", err)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <utterance>",
		Short: "Handle a single natural-language request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			utterance := args[0]
			for _, arg := range args[1:] {
				utterance += " " + arg
			}

			report, err := engine.Run(ctx, utterance)
			if err != nil {
				return err
			}
			return printReport(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "print the full execution report as JSON")
	return cmd
}

func newRoutineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routine <file.yaml>",
		Short: "Execute a predefined routine file without planning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			plan, err := executor.LoadAndValidatePlan(args[0])
			if err != nil {
				return err
			}

			report, err := engine.RunPlan(ctx, plan)
			if err != nil {
				return err
			}
			return printReport(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "print the full execution report as JSON")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			for _, desc := range engine.Catalog() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", desc.Name, desc.Description)
			}
			return nil
		},
	}
}

// buildEngine wires the full pipeline: Genkit flows, adapters, plan
// cache, built-in tools, persisted generated tools, fallback rules.
// Without an API key the engine still comes up, with planning reported
// unavailable so every request degrades to the fallback rules.
func buildEngine(ctx context.Context) (*sage.Engine, error) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		log.Printf("GEMINI_API_KEY not set, requests degrade to fallback rules")

		registry := sage.NewRegistry()
		if err := tools.Setup(registry); err != nil {
			return nil, err
		}
		loader := codegen.NewGateway(nil, registry,
			codegen.NewExecRunner(flagInterpreter),
			codegen.WithToolsDir(flagToolsDir),
		)
		if _, err := loader.LoadPersisted(); err != nil {
			return nil, err
		}
		return finishEngine(registry, offlinePlanner{}, nil)
	}

	g, err := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel(flagModel),
	)
	if err != nil {
		return nil, fmt.Errorf("genkit initialization failed: %w", err)
	}

	registry := sage.NewRegistry()
	if err := tools.Setup(registry); err != nil {
		return nil, err
	}

	plannerFlow := genkit.DefineFlow(g, "plannerFlow",
		func(ctx context.Context, input *sage.PlannerInput) (string, error) {
			resp, err := genkit.Generate(ctx, g,
				ai.WithPrompt(prompt.BuildPlannerPrompt(input.Utterance, input.Catalog)),
				ai.WithConfig(map[string]any{"temperature": 0.1}),
			)
			if err != nil {
				return "", fmt.Errorf("planner generation failed: %w", err)
			}
			return resp.Text(), nil
		},
	)

	codegenFlow := genkit.DefineFlow(g, "codegenFlow",
		func(ctx context.Context, input *adapters.CodegenInput) (string, error) {
			name := input.Name
			if name == "" {
				name = codegen.DeriveToolName(input.Task)
			}
			resp, err := genkit.Generate(ctx, g,
				ai.WithPrompt(prompt.BuildCodegenPrompt(input.Task, name)),
				ai.WithConfig(map[string]any{"temperature": 0.1}),
			)
			if err != nil {
				return "", fmt.Errorf("codegen generation failed: %w", err)
			}
			return resp.Text(), nil
		},
	)

	planCache := newPlanCache()
	planner := adapters.NewGenkitPlannerAdapter(plannerFlow, planCache)
	generator := adapters.NewGenkitCodegenAdapter(codegenFlow)

	gateway := codegen.NewGateway(generator, registry,
		codegen.NewExecRunner(flagInterpreter),
		codegen.WithToolsDir(flagToolsDir),
	)
	if _, err := gateway.LoadPersisted(); err != nil {
		return nil, err
	}

	return finishEngine(registry, planner, gateway)
}

// finishEngine assembles the engine around a registry and planner.
// gateway may be nil, which disables the code-generation path.
func finishEngine(registry *sage.Registry, planner sage.Planner, gateway sage.Gateway) (*sage.Engine, error) {
	options := []sage.Option{
		sage.WithPlanner(planner),
		sage.WithValidator(executor.NewValidator()),
		sage.WithExecutor(executor.NewExecutor()),
		sage.WithInterpreter(fallback.NewInterpreter(registry)),
		sage.WithRegistry(registry),
	}
	if gateway != nil {
		options = append(options, sage.WithGateway(gateway))
	}

	engine, err := sage.New(options...)
	if err != nil {
		return nil, err
	}

	if err := engine.RegisterTool(newRoutineTool(engine)); err != nil {
		return nil, err
	}
	return engine, nil
}

// offlinePlanner reports planning as unavailable so requests route to
// the deterministic fallback rules when no API key is configured.
type offlinePlanner struct{}

func (offlinePlanner) Plan(ctx context.Context, input sage.PlannerInput) (sage.PlanningOutcome, error) {
	return sage.PlanningOutcome{
		Kind:   sage.OutcomeUnavailable,
		Reason: "GEMINI_API_KEY environment variable not set",
	}, nil
}

// newRoutineTool exposes routine files as a planner-visible capability,
// so an utterance like "run my morning routine" can resolve to one.
func newRoutineTool(engine *sage.Engine) sage.Tool {
	return adapters.NewGoToolAdapter("execute_routine",
		func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			file, _ := input["file"].(string)
			plan, err := executor.LoadAndValidatePlan(file)
			if err != nil {
				return nil, err
			}
			report, err := engine.RunPlan(ctx, plan)
			if err != nil {
				return nil, err
			}
			if !report.OverallSuccess {
				return nil, fmt.Errorf("routine %s: %s", file, report.Response)
			}
			return map[string]interface{}{"message": report.Response}, nil
		},
		adapters.WithDescription("Execute a predefined routine file (a saved sequence of tool steps)"),
		adapters.WithParameter("file", sage.ParamTypeString, true, nil, "path to the routine YAML file"),
	)
}

func newPlanCache() sage.Cache {
	if flagPlanCache != "" {
		return cache.NewFilePersistentCache(10*time.Minute, flagPlanCache, &cache.StdLogger{})
	}
	return cache.NewInMemoryCache(10 * time.Minute)
}

func printReport(cmd *cobra.Command, report *sage.PlanExecutionReport) error {
	out := cmd.OutOrStdout()

	if flagJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	fmt.Fprintln(out, report.Response)
	for _, step := range report.Steps {
		status := "ok"
		if !step.Succeeded() {
			status = "failed: " + step.ErrorMsg
		}
		fmt.Fprintf(out, "  [%d] %s (%s, %s)\n", step.Index, step.ToolName, status, step.Duration.Round(time.Millisecond))
	}
	if !report.OverallSuccess && len(report.Steps) > 0 {
		return fmt.Errorf("some steps failed")
	}
	return nil
}
