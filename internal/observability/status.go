package observability

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of what the service is doing.
type Snapshot struct {
	ActiveRuns     int       `json:"active_runs"`
	ActiveSubtasks int       `json:"active_subtasks"`
	CompletedRuns  int       `json:"completed_runs"`
	LastRunAt      time.Time `json:"last_run_at"`
}

type statusTracker struct {
	mu             sync.RWMutex
	activeRuns     int
	activeSubtasks int
	completedRuns  int
	lastRunAt      time.Time
}

var globalStatus = &statusTracker{}

// RunStarted marks the beginning of an agent run.
func RunStarted() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.activeRuns++
}

// RunFinished marks the end of an agent run, successful or not.
func RunFinished() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.activeRuns--
	globalStatus.completedRuns++
	globalStatus.lastRunAt = time.Now()
}

// SubtaskStarted and SubtaskFinished track in-flight workflow instances.
func SubtaskStarted() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.activeSubtasks++
}

func SubtaskFinished() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.activeSubtasks--
}

// GetSnapshot retrieves a copy of the global service status.
func GetSnapshot() Snapshot {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return Snapshot{
		ActiveRuns:     globalStatus.activeRuns,
		ActiveSubtasks: globalStatus.activeSubtasks,
		CompletedRuns:  globalStatus.completedRuns,
		LastRunAt:      globalStatus.lastRunAt,
	}
}
