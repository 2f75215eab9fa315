package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan       EventType = "plan"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypeReflection EventType = "reflection"
	EventTypeLLM        EventType = "llm"
	EventTypeRun        EventType = "run"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(runID string, subtasks []string) {
	l.Log(Event{
		Type:  EventTypePlan,
		RunID: runID,
		Data:  map[string]any{"subtasks": subtasks},
	})
}

func (l *Logger) LogToolCall(runID, taskID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		RunID:  runID,
		TaskID: taskID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(runID, taskID, tool, result string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		RunID:  runID,
		TaskID: taskID,
		Data: map[string]string{
			"tool":   tool,
			"result": result,
		},
	})
}

func (l *Logger) LogReflection(runID, taskID, advice string, isCompleted bool, challengeCount int) {
	l.Log(Event{
		Type:   EventTypeReflection,
		RunID:  runID,
		TaskID: taskID,
		Data: map[string]any{
			"advice":          advice,
			"is_completed":    isCompleted,
			"challenge_count": challengeCount,
		},
	})
}

func (l *Logger) LogLLM(runID, taskID, phase string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		RunID:  runID,
		TaskID: taskID,
		Data: map[string]any{
			"phase":      phase,
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

func (l *Logger) LogRun(runID, query, answer string, subtaskCount int, elapsed time.Duration) {
	l.Log(Event{
		Type:  EventTypeRun,
		RunID: runID,
		Data: map[string]any{
			"query":       query,
			"answer":      answer,
			"subtasks":    subtaskCount,
			"duration_ms": elapsed.Milliseconds(),
		},
	})
}
