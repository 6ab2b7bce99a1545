package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/handywriterz/handywriterz/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry records workflow and agent events. Recording is fire-and-forget:
// it must never fail a caller's primary path.
type Telemetry struct {
	cfg     config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds in-process counters mirrored into Prometheus collectors.
type Metrics struct {
	TotalRuns      int64
	CompletedRuns  int64
	FailedRuns     int64
	DegradedRuns   int64
	AverageRunTime time.Duration

	AgentExecutions map[string]int64
	AgentFailures   map[string]int64

	SearchRequests  map[string]int64
	SearchFailures  map[string]int64
	HitsRejected    map[string]int64 // rejection reason -> count
	FallbackRounds  int64
	SwarmMemberErrs map[string]int64
	CitationRedraws int64
}

var (
	workflowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handywriterz_workflow_runs_total",
		Help: "Workflow runs by terminal status.",
	}, []string{"status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "handywriterz_stage_duration_seconds",
		Help:    "Duration of orchestrator graph stages.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	agentExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handywriterz_agent_executions_total",
		Help: "Agent executions by agent name and outcome.",
	}, []string{"agent", "outcome"})

	searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handywriterz_search_requests_total",
		Help: "Search provider requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	hitsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handywriterz_hits_rejected_total",
		Help: "Raw hits rejected during verification, by reason.",
	}, []string{"reason"})

	fallbackAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handywriterz_fallback_attempts_total",
		Help: "Search fallback relaxation rounds taken.",
	})

	swarmMemberErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handywriterz_swarm_member_errors_total",
		Help: "Swarm member failures by swarm and agent.",
	}, []string{"swarm", "agent"})
)

// NewTelemetry creates a telemetry instance.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			AgentExecutions: make(map[string]int64),
			AgentFailures:   make(map[string]int64),
			SearchRequests:  make(map[string]int64),
			SearchFailures:  make(map[string]int64),
			HitsRejected:    make(map[string]int64),
			SwarmMemberErrs: make(map[string]int64),
		},
	}
}

// WorkflowEvent captures one full run of the pipeline.
type WorkflowEvent struct {
	ConversationID string
	Status         string
	Duration       time.Duration
	SourceCount    int
	Fallbacks      int
	Degraded       bool
	Error          string
}

// AgentEvent captures one agent execution.
type AgentEvent struct {
	Agent    string
	Duration time.Duration
	Success  bool
	Error    string
}

// SearchEvent captures one provider round trip.
type SearchEvent struct {
	Provider string
	Duration time.Duration
	Results  int
	Success  bool
}

// RecordWorkflowEvent registers a completed or failed run.
func (t *Telemetry) RecordWorkflowEvent(ev WorkflowEvent) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	workflowRuns.WithLabelValues(ev.Status).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.metrics
	m.TotalRuns++
	switch ev.Status {
	case "complete":
		m.CompletedRuns++
	case "failed":
		m.FailedRuns++
	}
	if ev.Degraded {
		m.DegradedRuns++
	}
	if m.TotalRuns > 0 {
		m.AverageRunTime = time.Duration((int64(m.AverageRunTime)*(m.TotalRuns-1) + int64(ev.Duration)) / m.TotalRuns)
	}
	if ev.Error != "" && t.cfg.PeriodicLogs {
		t.logger.Printf("run %s finished %s: %s", ev.ConversationID, ev.Status, ev.Error)
	}
}

// RecordStageDuration observes how long a graph stage took.
func (t *Telemetry) RecordStageDuration(stage string, d time.Duration) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordAgentEvent registers a single agent execution.
func (t *Telemetry) RecordAgentEvent(ev AgentEvent) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	outcome := "ok"
	if !ev.Success {
		outcome = "error"
	}
	agentExecutions.WithLabelValues(ev.Agent, outcome).Inc()

	t.mu.Lock()
	m := t.metrics
	m.AgentExecutions[ev.Agent]++
	if !ev.Success {
		m.AgentFailures[ev.Agent]++
	}
	t.mu.Unlock()
}

// RecordSearchEvent registers a search provider round trip.
func (t *Telemetry) RecordSearchEvent(ev SearchEvent) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	outcome := "ok"
	if !ev.Success {
		outcome = "error"
	}
	searchRequests.WithLabelValues(ev.Provider, outcome).Inc()

	t.mu.Lock()
	m := t.metrics
	m.SearchRequests[ev.Provider]++
	if !ev.Success {
		m.SearchFailures[ev.Provider]++
	}
	t.mu.Unlock()
}

// RecordRejection counts a raw hit dropped during verification.
func (t *Telemetry) RecordRejection(reason string) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	hitsRejected.WithLabelValues(reason).Inc()
	t.mu.Lock()
	m := t.metrics
	m.HitsRejected[reason]++
	t.mu.Unlock()
}

// RecordFallback counts one fallback relaxation round.
func (t *Telemetry) RecordFallback() {
	if t == nil || !t.cfg.Enabled {
		return
	}
	fallbackAttempts.Inc()
	t.mu.Lock()
	m := t.metrics
	m.FallbackRounds++
	t.mu.Unlock()
}

// RecordSwarmMemberError counts a captured swarm member failure.
func (t *Telemetry) RecordSwarmMemberError(swarm, agent string) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	swarmMemberErrors.WithLabelValues(swarm, agent).Inc()
	t.mu.Lock()
	m := t.metrics
	m.SwarmMemberErrs[swarm+"/"+agent]++
	t.mu.Unlock()
}

// RecordCitationRedraft counts a citation-audit-triggered re-draft.
func (t *Telemetry) RecordCitationRedraft() {
	if t == nil || !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	m := t.metrics
	m.CitationRedraws++
	t.mu.Unlock()
}

// Snapshot returns a copy of the in-process metric counters.
func (t *Telemetry) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.metrics
	out := Metrics{
		TotalRuns:       m.TotalRuns,
		CompletedRuns:   m.CompletedRuns,
		FailedRuns:      m.FailedRuns,
		DegradedRuns:    m.DegradedRuns,
		AverageRunTime:  m.AverageRunTime,
		FallbackRounds:  m.FallbackRounds,
		CitationRedraws: m.CitationRedraws,
		AgentExecutions: make(map[string]int64, len(m.AgentExecutions)),
		AgentFailures:   make(map[string]int64, len(m.AgentFailures)),
		SearchRequests:  make(map[string]int64, len(m.SearchRequests)),
		SearchFailures:  make(map[string]int64, len(m.SearchFailures)),
		HitsRejected:    make(map[string]int64, len(m.HitsRejected)),
		SwarmMemberErrs: make(map[string]int64, len(m.SwarmMemberErrs)),
	}
	for k, v := range m.AgentExecutions {
		out.AgentExecutions[k] = v
	}
	for k, v := range m.AgentFailures {
		out.AgentFailures[k] = v
	}
	for k, v := range m.SearchRequests {
		out.SearchRequests[k] = v
	}
	for k, v := range m.SearchFailures {
		out.SearchFailures[k] = v
	}
	for k, v := range m.HitsRejected {
		out.HitsRejected[k] = v
	}
	for k, v := range m.SwarmMemberErrs {
		out.SwarmMemberErrs[k] = v
	}
	return out
}
