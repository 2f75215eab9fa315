package tools

import (
	"context"
	"fmt"
	"math/rand"
)

// RandomTool returns a random number. It exists as a decoy: the subtask
// prompt instructs the model to prefer hybrid_search, and the default
// policy denies this tool, so a model reaching for it gets steered back
// by the recorded denial.
type RandomTool struct{}

func NewRandomTool() *RandomTool {
	return &RandomTool{}
}

func (r *RandomTool) Name() string {
	return "random"
}

func (r *RandomTool) Description() string {
	return "Return a random number between 0 and 100."
}

func (r *RandomTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (r *RandomTool) Execute(ctx context.Context, input string) (string, error) {
	return fmt.Sprintf("%d", rand.Intn(101)), nil
}
