package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var graphTracer trace.Tracer = otel.Tracer("handywriterz/internal/agent/graph")

// Graph is the workflow state machine. It owns the canonical state for the
// duration of a run: agents receive snapshots and return updates, and only
// the graph loop merges them, so the merge is always single-writer.
type Graph struct {
	planner   Agent
	searcher  Agent
	verifier  Agent
	fallback  Agent
	research  *SwarmCoordinator
	qa        *SwarmCoordinator
	writing   *SwarmCoordinator
	writer    Agent
	audit     Agent
	formatter Agent

	checkpoints CheckpointStore
	progress    ProgressReporter
	tele        *telemetry.Telemetry
	logger      *log.Logger

	maxIterations int
	maxFallback   int
}

// GraphConfig wires the graph's agents and policy bounds.
type GraphConfig struct {
	Planner   Agent
	Searcher  Agent
	Verifier  Agent
	Fallback  Agent
	Research  *SwarmCoordinator
	QA        *SwarmCoordinator
	Writing   *SwarmCoordinator
	Writer    Agent
	Audit     Agent
	Formatter Agent

	Checkpoints CheckpointStore
	Progress    ProgressReporter
	Telemetry   *telemetry.Telemetry

	MaxIterations int
	MaxFallback   int
}

func NewGraph(cfg GraphConfig) *Graph {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.MaxFallback <= 0 {
		cfg.MaxFallback = 2
	}
	progress := cfg.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	return &Graph{
		planner:       cfg.Planner,
		searcher:      cfg.Searcher,
		verifier:      cfg.Verifier,
		fallback:      cfg.Fallback,
		research:      cfg.Research,
		qa:            cfg.QA,
		writing:       cfg.Writing,
		writer:        cfg.Writer,
		audit:         cfg.Audit,
		formatter:     cfg.Formatter,
		checkpoints:   cfg.Checkpoints,
		progress:      progress,
		tele:          cfg.Telemetry,
		logger:        log.New(log.Writer(), "[GRAPH] ", log.LstdFlags),
		maxIterations: cfg.MaxIterations,
		maxFallback:   cfg.MaxFallback,
	}
}

var stageProgress = map[WorkflowStatus]float64{
	StatusInitiated:     0.0,
	StatusPlanning:      0.1,
	StatusSearching:     0.25,
	StatusVerifying:     0.4,
	StatusDrafting:      0.6,
	StatusQA:            0.75,
	StatusCitationAudit: 0.85,
	StatusFormatting:    0.95,
	StatusComplete:      1.0,
}

// Run drives the state machine to a terminal status. The returned error is
// non-nil only for fatal failures; a "failed" terminal state carries its
// reason in the state itself.
func (g *Graph) Run(ctx context.Context, state *WorkflowState) error {
	if state.Status == "" {
		state.Status = StatusInitiated
	}
	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			g.fail(ctx, state, err)
			return err
		}
		prev := state.Status
		start := time.Now()
		err := g.step(ctx, state)
		g.tele.RecordStageDuration(string(prev), time.Since(start))
		g.checkpoint(ctx, state)
		g.progress.Report(state.ConversationID, string(state.Status), stageProgress[state.Status])
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) step(ctx context.Context, state *WorkflowState) error {
	ctx, span := graphTracer.Start(ctx, "graph.step",
		trace.WithAttributes(
			attribute.String("workflow.id", state.ConversationID),
			attribute.String("workflow.status", string(state.Status)),
		))
	defer span.End()

	switch state.Status {
	case StatusInitiated:
		state.Apply(StateUpdate{Status: StatusPlanning})

	case StatusPlanning:
		if err := g.runAgent(ctx, g.planner, state); err != nil {
			return spanError(span, err)
		}
		state.Apply(StateUpdate{Status: StatusSearching})

	case StatusSearching:
		if err := g.runAgent(ctx, g.searcher, state); err != nil {
			return spanError(span, err)
		}
		state.Apply(StateUpdate{Status: StatusVerifying})

	case StatusVerifying:
		if err := g.runAgent(ctx, g.verifier, state); err != nil {
			return spanError(span, err)
		}
		if state.NeedFallback {
			if err := g.runAgent(ctx, g.fallback, state); err != nil {
				return spanError(span, err)
			}
			if state.Status == StatusFailed {
				span.SetStatus(codes.Error, state.ErrorMessage)
				return nil
			}
			// Relaxed policy: loop back to search.
			state.Apply(StateUpdate{Status: StatusSearching})
			return nil
		}
		state.Apply(StateUpdate{Status: StatusDrafting})

	case StatusDrafting:
		// First pass distils the evidence before writing; revisions reuse
		// the existing research notes.
		if state.ResearchResults == nil {
			result := g.research.Execute(ctx, state)
			state.Apply(StateUpdate{ResearchResults: result})
			if result.AllFailed() {
				g.logger.Printf("research swarm fully degraded for %s, drafting from sources alone", state.ConversationID)
			}
		}
		if err := g.runAgent(ctx, g.writer, state); err != nil {
			return spanError(span, err)
		}
		state.Apply(StateUpdate{Status: StatusQA})

	case StatusQA:
		qa := g.qa.Execute(ctx, state)
		writing := g.writing.Execute(ctx, state)
		state.Apply(StateUpdate{QAResults: qa, WritingResults: writing})
		state.Apply(StateUpdate{Status: StatusCitationAudit})

	case StatusCitationAudit:
		if err := g.runAgent(ctx, g.audit, state); err != nil {
			return spanError(span, err)
		}
		if state.CitationError {
			if state.Revisions >= g.maxIterations {
				g.fail(ctx, state, fmt.Errorf("citation audit still failing after %d revisions", state.Revisions))
				span.SetStatus(codes.Error, state.ErrorMessage)
				return nil
			}
			g.tele.RecordCitationRedraft()
			state.Apply(StateUpdate{Status: StatusDrafting})
			return nil
		}
		state.Apply(StateUpdate{Status: StatusFormatting})

	case StatusFormatting:
		if err := g.runAgent(ctx, g.formatter, state); err != nil {
			return spanError(span, err)
		}
		state.Apply(StateUpdate{Status: StatusComplete})

	default:
		err := fmt.Errorf("unknown workflow status %q", state.Status)
		g.fail(ctx, state, err)
		return err
	}

	span.SetStatus(codes.Ok, string(state.Status))
	return nil
}

// runAgent executes a node and merges its update. Recoverable NodeErrors are
// absorbed here with a warning; everything else is fatal and moves the
// workflow to failed.
func (g *Graph) runAgent(ctx context.Context, a Agent, state *WorkflowState) error {
	start := time.Now()
	update, err := a.Execute(ctx, state.Clone())
	g.tele.RecordAgentEvent(telemetry.AgentEvent{
		Agent:    a.Name(),
		Duration: time.Since(start),
		Success:  err == nil,
		Error:    errString(err),
	})
	if err != nil {
		if !IsFatal(err) {
			g.logger.Printf("agent %s degraded: %v", a.Name(), err)
			state.Apply(update)
			return nil
		}
		g.fail(ctx, state, err)
		return err
	}
	state.Apply(update)
	return nil
}

func (g *Graph) fail(ctx context.Context, state *WorkflowState, err error) {
	state.Apply(StateUpdate{
		Status:       StatusFailed,
		ErrorMessage: Str(err.Error()),
	})
	g.checkpoint(ctx, state)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// checkpoint persists the state between steps. The store is expected to be
// idempotent; a failed write degrades durability, not the run.
func (g *Graph) checkpoint(ctx context.Context, state *WorkflowState) {
	if g.checkpoints == nil {
		return
	}
	if err := g.checkpoints.SaveState(ctx, state); err != nil {
		g.logger.Printf("warn: checkpoint for %s failed: %v", state.ConversationID, err)
	}
}
