// Package adapters bridges external systems into the engine's
// interfaces: Genkit flows become planners and generators, plain Go
// functions become tools.
package adapters

import (
	"context"
	"fmt"

	"github.com/sagedesk/sage"
)

// GoToolAdapter adapts a plain Go function to the sage.Tool interface.
type GoToolAdapter struct {
	toolFunc    func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
	name        string
	description string
	parameters  map[string]sage.ParamSpec
	validator   func(map[string]interface{}) error
}

// ToolOption represents an option for configuring a GoToolAdapter.
type ToolOption func(*GoToolAdapter)

// WithDescription sets the tool's description.
func WithDescription(description string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.description = description
	}
}

// WithParameter declares one parameter of the tool. def may be nil
// when the parameter has no default.
func WithParameter(name string, paramType sage.ParamType, required bool, def interface{}, description string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.parameters[name] = sage.ParamSpec{
			Type:        paramType,
			Description: description,
			Required:    required,
			Default:     def,
		}
	}
}

// WithValidator sets a custom validator run before every execution.
func WithValidator(validator func(map[string]interface{}) error) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.validator = validator
	}
}

// NewGoToolAdapter creates a new adapter for a Go function.
func NewGoToolAdapter(
	name string,
	toolFunc func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error),
	options ...ToolOption) *GoToolAdapter {

	adapter := &GoToolAdapter{
		toolFunc:   toolFunc,
		name:       name,
		parameters: make(map[string]sage.ParamSpec),
		validator: func(input map[string]interface{}) error {
			if input == nil {
				return fmt.Errorf("input cannot be nil")
			}
			return nil
		},
	}

	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// Execute implements the sage.Tool interface.
func (a *GoToolAdapter) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if a.toolFunc == nil {
		return nil, fmt.Errorf("tool function is nil")
	}

	if a.validator != nil {
		if err := a.validator(input); err != nil {
			return nil, fmt.Errorf("input validation failed for %s: %w", a.name, err)
		}
	}

	return a.toolFunc(ctx, input)
}

// Name implements the sage.Tool interface.
func (a *GoToolAdapter) Name() string {
	return a.name
}

// Descriptor implements the sage.Tool interface.
func (a *GoToolAdapter) Descriptor() sage.ToolDescriptor {
	params := make(map[string]sage.ParamSpec, len(a.parameters))
	for name, spec := range a.parameters {
		params[name] = spec
	}
	return sage.ToolDescriptor{
		Name:        a.name,
		Description: a.description,
		Parameters:  params,
	}
}
