// Package agent implements the query-answering core: a planner that
// decomposes the query into subtasks, one bounded-retry workflow per
// subtask running concurrently, and an aggregator that merges the
// subtask answers into the final answer.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kazuhei/tansaku/internal/governance"
	"github.com/kazuhei/tansaku/internal/llm"
	"github.com/kazuhei/tansaku/internal/observability"
	"github.com/kazuhei/tansaku/internal/tools"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"
)

// Phases groups the generation parameters of every completion phase.
type Phases struct {
	Planner       llm.Phase
	ToolSelection llm.Phase
	SubtaskAnswer llm.Phase
	Reflection    llm.Phase
	FinalAnswer   llm.Phase
}

// Options bounds the run behavior.
type Options struct {
	// MaxChallengeCount caps the retry loop of each subtask workflow.
	MaxChallengeCount int
	// HistoryMaxTurns limits how much conversation history reaches the
	// planner and aggregator prompts. 0 means unlimited.
	HistoryMaxTurns int
}

// Orchestrator runs the full decompose / fan-out / aggregate pipeline.
// It is safe for concurrent runs: all per-run state lives in the run.
type Orchestrator struct {
	client            *llm.Client
	registry          *tools.Registry
	policy            governance.PolicyEngine
	prompts           *PromptManager
	logger            *observability.Logger
	phases            Phases
	maxChallengeCount int
	historyMaxTurns   int
}

func NewOrchestrator(client *llm.Client, registry *tools.Registry, policy governance.PolicyEngine, prompts *PromptManager, logger *observability.Logger, phases Phases, opts Options) *Orchestrator {
	if opts.MaxChallengeCount <= 0 {
		opts.MaxChallengeCount = 3
	}
	return &Orchestrator{
		client:            client,
		registry:          registry,
		policy:            policy,
		prompts:           prompts,
		logger:            logger,
		phases:            phases,
		maxChallengeCount: opts.MaxChallengeCount,
		historyMaxTurns:   opts.HistoryMaxTurns,
	}
}

// Run answers a query. It decomposes the query into a plan, resolves
// every plan entry concurrently, and aggregates the ordered results into
// the final answer. A fatal error in any stage aborts the whole run with
// no partial result.
func (o *Orchestrator) Run(ctx context.Context, query string, history []llms.MessageContent) (*Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	observability.RunStarted()
	defer observability.RunFinished()

	plan, err := o.buildPlan(ctx, query, history)
	if err != nil {
		return nil, err
	}
	o.logger.LogPlan(runID, plan.Subtasks)

	// One workflow instance per plan entry. Results land in a fixed-size
	// slice addressed by plan index, never by arrival order; each
	// goroutine writes exactly its own slot. The first error cancels the
	// group context and fails the run.
	results := make([]SubtaskResult, len(plan.Subtasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, subtask := range plan.Subtasks {
		g.Go(func() error {
			w := o.newSubtaskWorkflow(runID, i, query, plan.Subtasks, subtask)
			res, err := w.run(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	answer, err := o.aggregate(ctx, query, history, results)
	if err != nil {
		return nil, err
	}

	o.logger.LogRun(runID, query, answer, len(results), time.Since(start))
	return &Result{
		RunID:    runID,
		Query:    query,
		Plan:     plan.Subtasks,
		Subtasks: results,
		Answer:   answer,
	}, nil
}
