package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/kazuhei/tansaku/internal/governance"
	"github.com/kazuhei/tansaku/internal/llm"
	"github.com/kazuhei/tansaku/internal/observability"
	"github.com/kazuhei/tansaku/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// completionPhase classifies a request the way the orchestrator's prompts
// shape it, so fakes can answer per phase without a brittle call script.
type completionPhase string

const (
	phasePlanner    completionPhase = "planner"
	phaseSelection  completionPhase = "selection"
	phaseAnswer     completionPhase = "answer"
	phaseReflection completionPhase = "reflection"
	phaseFinal      completionPhase = "final"
)

func classify(messages []llms.MessageContent, opts *llms.CallOptions) completionPhase {
	var all strings.Builder
	for _, m := range messages {
		all.WriteString(messageText(m))
		all.WriteString("\n")
	}
	text := all.String()

	switch {
	case opts.JSONMode && strings.Contains(text, "Create the subtasks"):
		return phasePlanner
	case opts.JSONMode:
		return phaseReflection
	case len(opts.Tools) > 0:
		return phaseSelection
	case strings.Contains(text, "You write the final answer"):
		return phaseFinal
	default:
		return phaseAnswer
	}
}

// subtaskOf extracts the subtask line from a workflow transcript.
func subtaskOf(messages []llms.MessageContent) string {
	for _, m := range messages {
		for _, line := range strings.Split(messageText(m), "\n") {
			if rest, ok := strings.CutPrefix(line, "Subtask: "); ok {
				return strings.TrimSpace(rest)
			}
		}
	}
	return ""
}

// fakeModel dispatches each completion request to a test-provided
// responder. It is safe for the concurrent calls the fan-out makes.
type fakeModel struct {
	mu      sync.Mutex
	respond func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error)

	phaseLog []completionPhase
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	phase := classify(messages, &opts)

	m.mu.Lock()
	m.phaseLog = append(m.phaseLog, phase)
	m.mu.Unlock()

	return m.respond(phase, messages, &opts)
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func (m *fakeModel) phases() []completionPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]completionPhase(nil), m.phaseLog...)
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls}},
	}
}

func echoCall(id, text string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "echo",
			Arguments: `{"text":"` + text + `"}`,
		},
	}
}

// echoTool mirrors its argument back; the trivial registry entry for
// workflow tests.
type echoTool struct {
	executed bool
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo the given text back." }

func (e *echoTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}
}

func (e *echoTool) Execute(ctx context.Context, input string) (string, error) {
	e.executed = true
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", err
	}
	return "echo: " + args.Text, nil
}

func testRegistry() *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	return registry
}

func testPhases() Phases {
	return Phases{
		Planner:       llm.Phase{Name: "planner"},
		ToolSelection: llm.Phase{Name: "tool_selection"},
		SubtaskAnswer: llm.Phase{Name: "subtask_answer"},
		Reflection:    llm.Phase{Name: "reflection"},
		FinalAnswer:   llm.Phase{Name: "final_answer"},
	}
}

func newTestOrchestrator(model llms.Model, registry *tools.Registry, opts Options) *Orchestrator {
	return newTestOrchestratorWithPolicy(model, registry, nil, opts)
}

func newTestOrchestratorWithPolicy(model llms.Model, registry *tools.Registry, policy governance.PolicyEngine, opts Options) *Orchestrator {
	return NewOrchestrator(
		llm.NewClient(model),
		registry,
		policy,
		NewPromptManager(""),
		observability.NewLogger(),
		testPhases(),
		opts,
	)
}
