package adapters

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/core"

	"github.com/sagedesk/sage"
)

// CodegenInput is what the code-generation flow receives.
type CodegenInput struct {
	Task string `json:"task"`
	Name string `json:"name"`
}

// GenkitCodegenAdapter uses a Genkit flow to implement the Generator
// interface.
type GenkitCodegenAdapter struct {
	codegenFlow *core.Flow[*CodegenInput, string, struct{}]
}

// NewGenkitCodegenAdapter creates a new adapter for the codegen flow.
func NewGenkitCodegenAdapter(codegenFlow *core.Flow[*CodegenInput, string, struct{}]) *GenkitCodegenAdapter {
	return &GenkitCodegenAdapter{codegenFlow: codegenFlow}
}

// Generate implements the sage.Generator interface.
func (a *GenkitCodegenAdapter) Generate(ctx context.Context, task string) (string, error) {
	source, err := a.codegenFlow.Run(ctx, &CodegenInput{Task: task})
	if err != nil {
		return "", fmt.Errorf("codegen flow execution failed: %w", err)
	}
	if source == "" {
		return "", fmt.Errorf("codegen flow returned empty source")
	}
	return source, nil
}

var _ sage.Generator = (*GenkitCodegenAdapter)(nil)
