package agent

// Plan is the ordered list of subtask descriptions produced once per run
// by the decomposition step. Its length determines the fan-out width.
type Plan struct {
	Subtasks []string `json:"subtasks"`
}

// ToolResult records one tool invocation inside a subtask pass.
type ToolResult struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
	Results  any            `json:"results"`
}

// ReflectionResult is the self-assessment produced once per pass.
type ReflectionResult struct {
	Advice      string `json:"advice"`
	IsCompleted bool   `json:"is_completed"`
}

// SubtaskResult is the immutable snapshot copied out of a subtask
// workflow at termination. ToolResults holds one attempt group per pass;
// a pass that invoked no tools still contributes an empty group, so
// len(ToolResults) == len(ReflectionResults) == ChallengeCount always
// holds.
type SubtaskResult struct {
	TaskName          string             `json:"task_name"`
	ToolResults       [][]ToolResult     `json:"tool_results"`
	ReflectionResults []ReflectionResult `json:"reflection_results"`
	IsCompleted       bool               `json:"is_completed"`
	Answer            string             `json:"subtask_answer"`
	ChallengeCount    int                `json:"challenge_count"`
}

// Result is the outcome of one full agent run. Subtasks preserves plan
// order regardless of the completion order of the parallel workflows.
type Result struct {
	RunID    string          `json:"run_id"`
	Query    string          `json:"query"`
	Plan     []string        `json:"plan"`
	Subtasks []SubtaskResult `json:"subtask_results"`
	Answer   string          `json:"answer"`
}
