package core

import (
	"context"
	"log"
)

// SearchAgent adapts a SearchRunner into a graph node. The runner already
// absorbs provider failures, so the node itself cannot fail the workflow.
type SearchAgent struct {
	runner SearchRunner
	logger *log.Logger
}

func NewSearchAgent(runner SearchRunner) *SearchAgent {
	return &SearchAgent{
		runner: runner,
		logger: log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

func (a *SearchAgent) Name() string { return "search" }

func (a *SearchAgent) Execute(ctx context.Context, state *WorkflowState) (StateUpdate, error) {
	hits := a.runner.Run(ctx, state.SearchQueries, state.SearchParams)
	a.logger.Printf("gathered %d raw hits for %s", len(hits), state.ConversationID)
	if hits == nil {
		hits = []SourceRecord{}
	}
	return StateUpdate{RawHits: hits}, nil
}
