package tools

import (
	"context"
	"sort"

	"github.com/tmc/langchaingo/llms"
)

// Tool defines the interface for all agent capabilities. Implementations
// must be safe for concurrent use: one registry serves every parallel
// subtask workflow.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry manages the set of available tools. It is built once at
// startup and never mutated during a run.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Schemas returns the function definitions offered to the model, sorted
// by name so repeated runs send identical requests.
func (r *Registry) Schemas() []llms.Tool {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]llms.Tool, 0, len(names))
	for _, name := range names {
		t := r.Tools[name]
		schemas = append(schemas, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return schemas
}
