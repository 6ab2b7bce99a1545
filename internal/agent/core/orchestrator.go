package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/handywriterz/handywriterz/config"
	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var orchTracer trace.Tracer = otel.Tracer("handywriterz/internal/agent/orchestrator")

// Orchestrator is the pipeline entry point. It owns the per-role LLM
// providers and the run bookkeeping; each request gets its own graph so runs
// never share mutable agent state.
type Orchestrator struct {
	cfg    *config.Config
	tele   *telemetry.Telemetry
	logger *log.Logger

	planningLLM LLMProvider
	draftingLLM LLMProvider
	swarmLLM    LLMProvider

	search   SearchRunner
	verifier Agent
	fallback Agent

	checkpoints  CheckpointStore
	fingerprints FingerprintStore
	progress     ProgressReporter

	sem chan struct{}

	mu     sync.RWMutex
	active map[string]WorkflowStatus
}

// Deps carries the externally-constructed collaborators. Search, verifier and
// fallback live in their own packages and are injected to keep this package
// free of their dependencies.
type Deps struct {
	Search       SearchRunner
	Verifier     Agent
	Fallback     Agent
	Checkpoints  CheckpointStore
	Fingerprints FingerprintStore
	Progress     ProgressReporter
	Telemetry    *telemetry.Telemetry
}

func NewOrchestrator(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if deps.Search == nil {
		return nil, fmt.Errorf("orchestrator requires a search runner")
	}
	if deps.Verifier == nil || deps.Fallback == nil {
		return nil, fmt.Errorf("orchestrator requires verifier and fallback agents")
	}

	planningLLM, err := NewLLMProvider(cfg.LLM, "planning")
	if err != nil {
		return nil, fmt.Errorf("planning provider: %w", err)
	}
	draftingLLM, err := NewLLMProvider(cfg.LLM, "drafting")
	if err != nil {
		return nil, fmt.Errorf("drafting provider: %w", err)
	}
	swarmLLM, err := NewLLMProvider(cfg.LLM, "swarm")
	if err != nil {
		return nil, fmt.Errorf("swarm provider: %w", err)
	}

	maxRuns := cfg.Workflow.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 4
	}
	progress := deps.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	return &Orchestrator{
		cfg:          cfg,
		tele:         deps.Telemetry,
		logger:       log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
		planningLLM:  planningLLM,
		draftingLLM:  draftingLLM,
		swarmLLM:     swarmLLM,
		search:       deps.Search,
		verifier:     deps.Verifier,
		fallback:     deps.Fallback,
		checkpoints:  deps.Checkpoints,
		fingerprints: deps.Fingerprints,
		progress:     progress,
		sem:          make(chan struct{}, maxRuns),
		active:       make(map[string]WorkflowStatus),
	}, nil
}

// Request is one writing request.
type Request struct {
	ConversationID string     `json:"conversation_id,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	Prompt         string     `json:"prompt"`
	Params         UserParams `json:"user_params"`
}

// ProcessRequest runs the full pipeline for one request and returns the
// terminal state. A state with status "failed" is returned with a nil error;
// the error return is for infrastructure-level failures only.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) (*WorkflowState, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.sem }()

	state := &WorkflowState{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Prompt:         req.Prompt,
		Params:         req.Params,
		Status:         StatusInitiated,
		StartedAt:      time.Now(),
	}
	return o.run(ctx, state)
}

// Resume reloads a checkpointed run and drives it to a terminal state. A run
// that already finished is returned as-is.
func (o *Orchestrator) Resume(ctx context.Context, conversationID string) (*WorkflowState, error) {
	if o.checkpoints == nil {
		return nil, fmt.Errorf("no checkpoint store configured")
	}
	state, ok, err := o.checkpoints.LoadState(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", conversationID, err)
	}
	if !ok {
		return nil, fmt.Errorf("no checkpoint for %s", conversationID)
	}
	if state.Terminal() {
		return state, nil
	}

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.sem }()

	o.logger.Printf("resuming %s from %s", conversationID, state.Status)
	return o.run(ctx, state)
}

func (o *Orchestrator) run(ctx context.Context, state *WorkflowState) (*WorkflowState, error) {
	ctx, span := orchTracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(attribute.String("workflow.id", state.ConversationID)))
	defer span.End()

	o.setActive(state.ConversationID, state.Status)
	defer o.clearActive(state.ConversationID)

	writer := NewDraftAgent(o.draftingLLM)
	if fp := o.loadFingerprint(ctx, state.UserID); fp != nil {
		writer.SetFingerprint(fp)
	}

	graph := NewGraph(GraphConfig{
		Planner:       NewPlannerAgent(o.planningLLM, o.tele),
		Searcher:      NewSearchAgent(o.search),
		Verifier:      o.verifier,
		Fallback:      o.fallback,
		Research:      NewSwarmCoordinator("research", NewResearchSwarm(o.swarmLLM), o.cfg.Swarms.MemberTimeout, o.tele),
		QA:            NewSwarmCoordinator("qa", NewQASwarm(o.swarmLLM), o.cfg.Swarms.MemberTimeout, o.tele),
		Writing:       NewSwarmCoordinator("writing", NewWritingSwarm(o.swarmLLM), o.cfg.Swarms.MemberTimeout, o.tele),
		Writer:        writer,
		Audit:         NewCitationAuditAgent(),
		Formatter:     NewFormatterAgent(),
		Checkpoints:   o.checkpoints,
		Progress:      o.trackingProgress(),
		Telemetry:     o.tele,
		MaxIterations: o.cfg.Workflow.MaxIterations,
		MaxFallback:   o.cfg.Workflow.MaxFallbackAttempts,
	})

	start := time.Now()
	err := graph.Run(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, string(state.Status))
	}

	if state.Status == StatusComplete {
		o.updateFingerprint(ctx, state)
	}
	o.tele.RecordWorkflowEvent(telemetry.WorkflowEvent{
		ConversationID: state.ConversationID,
		Status:         string(state.Status),
		Duration:       time.Since(start),
		SourceCount:    len(state.Sources),
		Fallbacks:      state.FallbackAttempts,
		Error:          state.ErrorMessage,
	})
	o.logger.Printf("run %s finished %s in %s (%d sources, %d revisions)",
		state.ConversationID, state.Status, time.Since(start).Round(time.Millisecond), len(state.Sources), state.Revisions)
	return state, err
}

// Status reports the live status of a run, falling back to the checkpoint
// store for runs this process is not currently driving.
func (o *Orchestrator) Status(ctx context.Context, conversationID string) (WorkflowStatus, bool, error) {
	o.mu.RLock()
	status, ok := o.active[conversationID]
	o.mu.RUnlock()
	if ok {
		return status, true, nil
	}
	if o.checkpoints == nil {
		return "", false, nil
	}
	state, ok, err := o.checkpoints.LoadState(ctx, conversationID)
	if err != nil || !ok {
		return "", false, err
	}
	return state.Status, true, nil
}

// Result returns the checkpointed state for a conversation.
func (o *Orchestrator) Result(ctx context.Context, conversationID string) (*WorkflowState, bool, error) {
	if o.checkpoints == nil {
		return nil, false, nil
	}
	return o.checkpoints.LoadState(ctx, conversationID)
}

func (o *Orchestrator) loadFingerprint(ctx context.Context, userID string) *WritingFingerprint {
	if !o.cfg.Memory.Enabled || o.fingerprints == nil || userID == "" {
		return nil
	}
	fp, ok, err := o.fingerprints.GetFingerprint(ctx, userID)
	if err != nil {
		o.logger.Printf("warn: loading fingerprint for %s: %v", userID, err)
		return nil
	}
	if !ok {
		return nil
	}
	return &fp
}

// updateFingerprint folds the completed draft into the user's style profile.
// Best effort: personalization never fails a completed run.
func (o *Orchestrator) updateFingerprint(ctx context.Context, state *WorkflowState) {
	if !o.cfg.Memory.Enabled || o.fingerprints == nil || state.UserID == "" || state.Draft == "" {
		return
	}
	observed := ComputeFingerprint(state.UserID, state.Draft)
	old, ok, err := o.fingerprints.GetFingerprint(ctx, state.UserID)
	if err != nil {
		o.logger.Printf("warn: loading fingerprint for merge: %v", err)
		return
	}
	merged := observed
	if ok {
		merged = MergeFingerprint(old, observed, o.cfg.Memory.MergeAlpha)
	}
	if err := o.fingerprints.SaveFingerprint(ctx, merged); err != nil {
		o.logger.Printf("warn: saving fingerprint for %s: %v", state.UserID, err)
	}
}

// trackingProgress tees graph progress into the active-run table before
// forwarding to the configured reporter.
func (o *Orchestrator) trackingProgress() ProgressReporter {
	return progressFunc(func(conversationID, stage string, percent float64) {
		o.setActive(conversationID, WorkflowStatus(stage))
		o.progress.Report(conversationID, stage, percent)
	})
}

type progressFunc func(conversationID, stage string, percent float64)

func (f progressFunc) Report(conversationID, stage string, percent float64) {
	f(conversationID, stage, percent)
}

func (o *Orchestrator) setActive(id string, status WorkflowStatus) {
	o.mu.Lock()
	o.active[id] = status
	o.mu.Unlock()
}

func (o *Orchestrator) clearActive(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}
