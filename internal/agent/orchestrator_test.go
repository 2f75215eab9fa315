package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// planResponse builds the planner's schema-constrained reply.
func planResponse(t *testing.T, subtasks ...string) *llms.ContentResponse {
	t.Helper()
	data, err := json.Marshal(Plan{Subtasks: subtasks})
	if err != nil {
		t.Fatal(err)
	}
	return textResponse(string(data))
}

func TestRunPreservesPlanOrder(t *testing.T) {
	subtasks := []string{"look up alpha", "look up beta", "look up gamma", "look up delta"}

	model := &fakeModel{
		respond: func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
			switch phase {
			case phasePlanner:
				return planResponse(t, subtasks...), nil
			case phaseSelection:
				// Skew completion order: earlier plan entries finish later.
				for i, s := range subtasks {
					if subtaskOf(messages) == s {
						time.Sleep(time.Duration(len(subtasks)-i) * 10 * time.Millisecond)
					}
				}
				return textResponse("no tools"), nil
			case phaseAnswer:
				return textResponse("answer for " + subtaskOf(messages)), nil
			case phaseReflection:
				return textResponse(`{"advice": "", "is_completed": true}`), nil
			case phaseFinal:
				return textResponse("final"), nil
			}
			return nil, fmt.Errorf("unexpected phase %s", phase)
		},
	}

	result, err := newTestOrchestrator(model, testRegistry(), Options{MaxChallengeCount: 3}).
		Run(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Subtasks) != len(subtasks) {
		t.Fatalf("expected %d subtask results, got %d", len(subtasks), len(result.Subtasks))
	}
	for i, s := range subtasks {
		if result.Subtasks[i].TaskName != s {
			t.Errorf("result %d: expected %q, got %q", i, s, result.Subtasks[i].TaskName)
		}
		if result.Subtasks[i].Answer != "answer for "+s {
			t.Errorf("result %d carries another subtask's answer: %q", i, result.Subtasks[i].Answer)
		}
	}
	if !reflect.DeepEqual(result.Plan, subtasks) {
		t.Errorf("plan mismatch: %v", result.Plan)
	}
}

func TestRunEndToEnd(t *testing.T) {
	var finalSystem string

	model := &fakeModel{
		respond: func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
			switch phase {
			case phasePlanner:
				return planResponse(t, "Investigate A", "Investigate B"), nil
			case phaseSelection:
				return toolCallResponse(echoCall("call-1", subtaskOf(messages))), nil
			case phaseAnswer:
				return textResponse("facts about " + subtaskOf(messages)), nil
			case phaseReflection:
				return textResponse(`{"advice": "", "is_completed": true}`), nil
			case phaseFinal:
				finalSystem = messageText(messages[0])
				return textResponse("A and B differ in these ways."), nil
			}
			return nil, fmt.Errorf("unexpected phase %s", phase)
		},
	}

	result, err := newTestOrchestrator(model, testRegistry(), Options{MaxChallengeCount: 3}).
		Run(context.Background(), "Explain the difference between A and B", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Subtasks) != 2 {
		t.Fatalf("expected 2 subtask results, got %d", len(result.Subtasks))
	}
	for _, sub := range result.Subtasks {
		if sub.ChallengeCount != 1 {
			t.Errorf("subtask %q: expected challenge_count 1, got %d", sub.TaskName, sub.ChallengeCount)
		}
	}
	if result.Answer != "A and B differ in these ways." {
		t.Errorf("unexpected final answer %q", result.Answer)
	}

	// The aggregator prompt embeds exactly the (name, answer) pairs.
	for _, want := range []string{
		"- Investigate A: facts about Investigate A",
		"- Investigate B: facts about Investigate B",
	} {
		if !strings.Contains(finalSystem, want) {
			t.Errorf("final prompt missing %q", want)
		}
	}
}

func TestRunPlannerFailureAborts(t *testing.T) {
	model := &fakeModel{
		respond: func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
			if phase == phasePlanner {
				return nil, errors.New("provider unavailable")
			}
			return nil, fmt.Errorf("nothing should run after a planner failure, got %s", phase)
		},
	}

	_, err := newTestOrchestrator(model, testRegistry(), Options{}).
		Run(context.Background(), "query", nil)
	if err == nil || !strings.Contains(err.Error(), "provider unavailable") {
		t.Fatalf("expected planner failure to abort the run, got %v", err)
	}
}

func TestRunEmptyPlanAborts(t *testing.T) {
	model := &fakeModel{
		respond: func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
			if phase == phasePlanner {
				return textResponse(`{"subtasks": []}`), nil
			}
			return nil, fmt.Errorf("unexpected phase %s", phase)
		},
	}

	_, err := newTestOrchestrator(model, testRegistry(), Options{}).
		Run(context.Background(), "query", nil)
	if !errors.Is(err, ErrEmptyPlan) {
		t.Fatalf("expected ErrEmptyPlan, got %v", err)
	}
}

func TestRunSubtaskFailureAbortsWholeRun(t *testing.T) {
	model := &fakeModel{
		respond: func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
			switch phase {
			case phasePlanner:
				return planResponse(t, "good subtask", "bad subtask"), nil
			case phaseSelection:
				if subtaskOf(messages) == "bad subtask" {
					return toolCallResponse(llms.ToolCall{
						ID:           "call-1",
						Type:         "function",
						FunctionCall: &llms.FunctionCall{Name: "missing", Arguments: `{}`},
					}), nil
				}
				return textResponse("no tools"), nil
			case phaseAnswer:
				return textResponse("fine"), nil
			case phaseReflection:
				return textResponse(`{"advice": "", "is_completed": true}`), nil
			case phaseFinal:
				return nil, errors.New("the aggregator must not run after a subtask failure")
			}
			return nil, fmt.Errorf("unexpected phase %s", phase)
		},
	}

	result, err := newTestOrchestrator(model, testRegistry(), Options{MaxChallengeCount: 3}).
		Run(context.Background(), "query", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Fatalf("expected unknown tool error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected no partial result, got %+v", result)
	}
}

func TestRunHistoryReachesPlannerAndAggregator(t *testing.T) {
	history := []llms.MessageContent{
		humanMessage("Tell me about Python"),
		assistantMessage("Python is a general-purpose language."),
	}

	var plannerSystem, finalSystem string
	model := &fakeModel{
		respond: func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
			switch phase {
			case phasePlanner:
				plannerSystem = messageText(messages[0])
				return planResponse(t, "look it up"), nil
			case phaseSelection:
				return textResponse("no tools"), nil
			case phaseAnswer:
				return textResponse("found it"), nil
			case phaseReflection:
				return textResponse(`{"advice": "", "is_completed": true}`), nil
			case phaseFinal:
				finalSystem = messageText(messages[0])
				return textResponse("done"), nil
			}
			return nil, fmt.Errorf("unexpected phase %s", phase)
		},
	}

	_, err := newTestOrchestrator(model, testRegistry(), Options{MaxChallengeCount: 3}).
		Run(context.Background(), "and how do I read a file?", history)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for name, prompt := range map[string]string{"planner": plannerSystem, "final": finalSystem} {
		if !strings.Contains(prompt, "User: Tell me about Python") ||
			!strings.Contains(prompt, "Assistant: Python is a general-purpose language.") {
			t.Errorf("%s prompt missing conversation context:\n%s", name, prompt)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	build := func() *Orchestrator {
		model := &fakeModel{
			respond: func(phase completionPhase, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
				switch phase {
				case phasePlanner:
					return planResponse(t, "first", "second", "third"), nil
				case phaseSelection:
					return toolCallResponse(echoCall("call-1", subtaskOf(messages))), nil
				case phaseAnswer:
					return textResponse("answer for " + subtaskOf(messages)), nil
				case phaseReflection:
					return textResponse(`{"advice": "", "is_completed": true}`), nil
				case phaseFinal:
					return textResponse("merged"), nil
				}
				return nil, fmt.Errorf("unexpected phase %s", phase)
			},
		}
		return newTestOrchestrator(model, testRegistry(), Options{MaxChallengeCount: 3})
	}

	first, err := build().Run(context.Background(), "query", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := build().Run(context.Background(), "query", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Everything except the run ID must be byte-identical across runs.
	first.RunID, second.RunID = "", ""
	a, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("runs differ:\n%s\n%s", a, b)
	}
}

func TestFormatHistoryTruncation(t *testing.T) {
	history := []llms.MessageContent{
		humanMessage("one"),
		assistantMessage("two"),
		systemMessage("hidden"),
		humanMessage("three"),
		assistantMessage("four"),
	}

	full := formatHistory(history, 0)
	if strings.Contains(full, "hidden") {
		t.Error("system messages must not reach the conversation context")
	}
	if want := "User: one\nAssistant: two\nUser: three\nAssistant: four"; full != want {
		t.Errorf("unexpected full history:\n%q", full)
	}

	trimmed := formatHistory(history, 2)
	if want := "User: three\nAssistant: four"; trimmed != want {
		t.Errorf("unexpected trimmed history:\n%q", trimmed)
	}
}
