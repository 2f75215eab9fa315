package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyPlan is returned when decomposition yields no subtasks.
var ErrEmptyPlan = errors.New("planner returned an empty plan")

// buildPlan decomposes the query into an ordered list of subtasks via a
// schema-constrained completion. Any failure here aborts the run; there
// is no retry at this layer.
func (o *Orchestrator) buildPlan(ctx context.Context, query string, history []llms.MessageContent) (Plan, error) {
	conversation := formatHistory(history, o.historyMaxTurns)

	messages := []llms.MessageContent{
		systemMessage(render(o.prompts.Get(PromptPlannerSystem), map[string]string{
			"conversation_context": conversation,
		})),
		humanMessage(render(o.prompts.Get(PromptPlannerUser), map[string]string{
			"query": query,
		})),
	}

	var plan Plan
	if err := o.client.Decode(ctx, o.phases.Planner, messages, &plan); err != nil {
		return Plan{}, fmt.Errorf("failed to create plan: %w", err)
	}

	for i, subtask := range plan.Subtasks {
		plan.Subtasks[i] = strings.TrimSpace(subtask)
	}
	if len(plan.Subtasks) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	return plan, nil
}
