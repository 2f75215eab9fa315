package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// aggregate merges the ordered subtask results into the final answer with
// a single free-form completion. Only the (task name, answer) pairs are
// forwarded; tool and reflection detail stays out of the prompt.
func (o *Orchestrator) aggregate(ctx context.Context, query string, history []llms.MessageContent, results []SubtaskResult) (string, error) {
	var pairs strings.Builder
	for _, r := range results {
		fmt.Fprintf(&pairs, "- %s: %s\n", r.TaskName, r.Answer)
	}

	messages := []llms.MessageContent{
		systemMessage(render(o.prompts.Get(PromptFinalSystem), map[string]string{
			"subtask_results":      strings.TrimRight(pairs.String(), "\n"),
			"conversation_context": formatHistory(history, o.historyMaxTurns),
		})),
		humanMessage(render(o.prompts.Get(PromptFinalUser), map[string]string{
			"query": query,
		})),
	}

	choice, err := o.client.Create(ctx, o.phases.FinalAnswer, messages, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create final answer: %w", err)
	}
	return choice.Content, nil
}
