package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kazuhei/tansaku/internal/governance"
	"github.com/kazuhei/tansaku/internal/observability"
	"github.com/kazuhei/tansaku/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// subtaskWorkflow resolves one plan entry through a bounded retry loop:
// select tools, execute tools, synthesize an answer, reflect, and either
// stop or go around again. Each instance owns its state exclusively; the
// orchestrator copies inputs in at spawn and a SubtaskResult out at
// termination, so no locking is needed here.
type subtaskWorkflow struct {
	orch   *Orchestrator
	runID  string
	taskID string

	query   string
	plan    []string
	subtask string

	transcript        []llms.MessageContent
	toolResults       [][]ToolResult
	reflectionResults []ReflectionResult
	challengeCount    int
	isCompleted       bool
	answer            string
}

func (o *Orchestrator) newSubtaskWorkflow(runID string, index int, query string, plan []string, subtask string) *subtaskWorkflow {
	// Value-copy the plan so transcript work in one instance can never
	// alias a sibling's view of it.
	planCopy := make([]string, len(plan))
	copy(planCopy, plan)

	return &subtaskWorkflow{
		orch:    o,
		runID:   runID,
		taskID:  fmt.Sprintf("subtask-%d", index),
		query:   query,
		plan:    planCopy,
		subtask: subtask,
	}
}

// run drives the state machine to termination. The loop is bounded by
// maxChallengeCount; recursion is deliberately avoided.
func (w *subtaskWorkflow) run(ctx context.Context) (SubtaskResult, error) {
	observability.SubtaskStarted()
	defer observability.SubtaskFinished()

	for {
		calls, err := w.selectTools(ctx)
		if err != nil {
			return SubtaskResult{}, err
		}
		if err := w.executeTools(ctx, calls); err != nil {
			return SubtaskResult{}, err
		}
		if err := w.synthesizeAnswer(ctx); err != nil {
			return SubtaskResult{}, err
		}
		if err := w.reflect(ctx); err != nil {
			return SubtaskResult{}, err
		}
		if w.isCompleted || w.challengeCount >= w.orch.maxChallengeCount {
			break
		}
	}

	return SubtaskResult{
		TaskName:          w.subtask,
		ToolResults:       w.toolResults,
		ReflectionResults: w.reflectionResults,
		IsCompleted:       w.isCompleted,
		Answer:            w.answer,
		ChallengeCount:    w.challengeCount,
	}, nil
}

// selectTools asks the model which tools to invoke, offering the full
// schema list. On the first pass it builds a fresh prompt pair; on
// retries it trims prior tool traffic from the transcript (token budget,
// not correctness) and appends an instruction derived from the latest
// reflection advice.
func (w *subtaskWorkflow) selectTools(ctx context.Context) ([]llms.ToolCall, error) {
	schemas := w.orch.registry.Schemas()

	if w.challengeCount == 0 {
		w.transcript = []llms.MessageContent{
			systemMessage(w.orch.prompts.Get(PromptSubtaskSystem)),
			humanMessage(render(w.orch.prompts.Get(PromptSubtaskUser), map[string]string{
				"query":   w.query,
				"plan":    planText(w.plan),
				"subtask": w.subtask,
			})),
		}
	} else {
		w.transcript = pruneToolTraffic(w.transcript)
		advice := w.reflectionResults[len(w.reflectionResults)-1].Advice
		w.transcript = append(w.transcript, humanMessage(render(w.orch.prompts.Get(PromptRetryUser), map[string]string{
			"advice": advice,
		})))
	}

	choice, err := w.orch.client.Create(ctx, w.orch.phases.ToolSelection, w.transcript, schemas)
	if err != nil {
		return nil, err
	}
	w.orch.logger.LogLLM(w.runID, w.taskID, w.orch.phases.ToolSelection.Name, len(w.transcript), choice.Content, choice.ToolCalls)

	var parts []llms.ContentPart
	if choice.Content != "" {
		parts = append(parts, llms.TextContent{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		parts = append(parts, tc)
	}
	w.transcript = append(w.transcript, llms.MessageContent{
		Role:  llms.ChatMessageTypeAI,
		Parts: parts,
	})

	return choice.ToolCalls, nil
}

// executeTools runs every requested invocation in order. No requested
// tools is not an error: the pass still records an empty attempt group so
// the per-pass shape is never omitted. An unknown tool name, unparsable
// arguments or a failing tool aborts the whole run.
func (w *subtaskWorkflow) executeTools(ctx context.Context, calls []llms.ToolCall) error {
	if len(calls) == 0 {
		w.toolResults = append(w.toolResults, []ToolResult{})
		return nil
	}

	group := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		if call.FunctionCall == nil {
			return fmt.Errorf("tool call %s carries no function call", call.ID)
		}
		name := call.FunctionCall.Name
		argsJSON := call.FunctionCall.Arguments
		w.orch.logger.LogToolCall(w.runID, w.taskID, name, argsJSON)

		tool := w.orch.registry.Get(name)
		if tool == nil {
			return fmt.Errorf("unknown tool %q requested by model", name)
		}

		var args map[string]any
		if argsJSON == "" {
			argsJSON = "{}"
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Errorf("malformed arguments for tool %q: %w", name, err)
		}

		output, err := w.invoke(ctx, tool, name, argsJSON)
		if err != nil {
			return err
		}
		w.orch.logger.LogToolResult(w.runID, w.taskID, name, output)

		group = append(group, ToolResult{
			ToolName: name,
			Args:     args,
			Results:  structuredResult(output),
		})
		w.transcript = append(w.transcript, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       name,
					Content:    output,
				},
			},
		})
	}

	w.toolResults = append(w.toolResults, group)
	return nil
}

// invoke runs a single tool call past the policy engine. A denial is not
// an error: the reason becomes the tool's result so reflection can steer
// the next attempt away from it.
func (w *subtaskWorkflow) invoke(ctx context.Context, tool tools.Tool, name, argsJSON string) (string, error) {
	if w.orch.policy != nil {
		verdict, err := w.orch.policy.Evaluate(ctx, governance.Request{
			Tool:      name,
			Arguments: argsJSON,
			RunID:     w.runID,
		})
		if err != nil {
			return "", fmt.Errorf("policy evaluation for tool %q failed: %w", name, err)
		}
		if verdict.Effect == governance.EffectDeny {
			return "tool call denied: " + verdict.Reason, nil
		}
	}

	output, err := tool.Execute(ctx, argsJSON)
	if err != nil {
		return "", fmt.Errorf("tool %q failed: %w", name, err)
	}
	return output, nil
}

// synthesizeAnswer produces the subtask's answer text from the current
// transcript. No tool schemas are offered here.
func (w *subtaskWorkflow) synthesizeAnswer(ctx context.Context) error {
	choice, err := w.orch.client.Create(ctx, w.orch.phases.SubtaskAnswer, w.transcript, nil)
	if err != nil {
		return err
	}
	w.orch.logger.LogLLM(w.runID, w.taskID, w.orch.phases.SubtaskAnswer.Name, len(w.transcript), choice.Content, nil)

	w.answer = choice.Content
	w.transcript = append(w.transcript, assistantMessage(choice.Content))
	return nil
}

// reflect asks the model to judge the answer, records the verdict and
// decides the fate of the loop. Reaching the challenge budget without
// completion downgrades the answer to a deterministic fallback; that is a
// normal termination, not an error.
func (w *subtaskWorkflow) reflect(ctx context.Context) error {
	w.transcript = append(w.transcript, humanMessage(w.orch.prompts.Get(PromptReflectionUser)))

	var reflection ReflectionResult
	if err := w.orch.client.Decode(ctx, w.orch.phases.Reflection, w.transcript, &reflection); err != nil {
		return err
	}

	serialized, err := json.Marshal(reflection)
	if err != nil {
		return fmt.Errorf("failed to serialize reflection result: %w", err)
	}
	w.transcript = append(w.transcript, assistantMessage(string(serialized)))

	w.reflectionResults = append(w.reflectionResults, reflection)
	w.challengeCount++
	w.isCompleted = reflection.IsCompleted
	w.orch.logger.LogReflection(w.runID, w.taskID, reflection.Advice, reflection.IsCompleted, w.challengeCount)

	if w.challengeCount >= w.orch.maxChallengeCount && !reflection.IsCompleted {
		w.answer = fallbackAnswer(w.subtask)
	}
	return nil
}

// fallbackAnswer is the deterministic answer used when the challenge
// budget is exhausted.
func fallbackAnswer(subtask string) string {
	return fmt.Sprintf("No answer could be found for subtask %q.", subtask)
}

// pruneToolTraffic drops tool-role messages and assistant messages that
// carry tool calls. Old search payloads dominate the token count and the
// retry only needs the reasoning around them.
func pruneToolTraffic(msgs []llms.MessageContent) []llms.MessageContent {
	kept := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llms.ChatMessageTypeTool || hasToolCalls(m) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func hasToolCalls(m llms.MessageContent) bool {
	for _, part := range m.Parts {
		if _, ok := part.(llms.ToolCall); ok {
			return true
		}
	}
	return false
}

// structuredResult keeps JSON tool output structured in the run record
// instead of burying it in a string.
func structuredResult(output string) any {
	trimmed := strings.TrimSpace(output)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return output
}

func planText(plan []string) string {
	var b strings.Builder
	for _, subtask := range plan {
		b.WriteString("- ")
		b.WriteString(subtask)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
