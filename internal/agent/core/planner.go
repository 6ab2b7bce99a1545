package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
)

// PlannerAgent turns the user prompt into search queries and the initial
// search policy. An unparseable LLM response is recoverable: the planner
// falls back to deterministic queries derived from the prompt.
type PlannerAgent struct {
	llm    LLMProvider
	tele   *telemetry.Telemetry
	logger *log.Logger
}

func NewPlannerAgent(llm LLMProvider, tele *telemetry.Telemetry) *PlannerAgent {
	return &PlannerAgent{
		llm:    llm,
		tele:   tele,
		logger: log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

func (a *PlannerAgent) Name() string { return "planner" }

func (a *PlannerAgent) Execute(ctx context.Context, state *WorkflowState) (StateUpdate, error) {
	params := initialSearchParams(state)

	queries, err := a.planQueries(ctx, state)
	if err != nil {
		a.logger.Printf("LLM planning failed, using heuristic queries: %v", err)
		queries = heuristicQueries(state.Prompt, state.Params.Field)
	}
	if len(queries) == 0 {
		queries = heuristicQueries(state.Prompt, state.Params.Field)
	}

	return StateUpdate{
		SearchQueries: queries,
		SearchParams:  &params,
	}, nil
}

func (a *PlannerAgent) planQueries(ctx context.Context, state *WorkflowState) ([]string, error) {
	prompt := a.planningPrompt(state)
	response, err := a.llm.Generate(ctx, prompt, 512)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	queries, err := parseQueryResponse(response)
	if err != nil {
		return nil, err
	}
	return queries, nil
}

func (a *PlannerAgent) planningPrompt(state *WorkflowState) string {
	var b strings.Builder
	b.WriteString("You are planning literature search queries for an academic writing task.\n")
	fmt.Fprintf(&b, "Field: %s\nType: %s\nRegion: %s\n", state.Params.Field, state.Params.WriteupType, state.Params.Region)
	fmt.Fprintf(&b, "Request: %s\n\n", state.Prompt)
	b.WriteString("Return a JSON array of 3-6 focused search query strings, nothing else.")
	return b.String()
}

// parseQueryResponse extracts a JSON string array from an LLM response,
// tolerating surrounding prose and code fences.
func parseQueryResponse(response string) ([]string, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var queries []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &queries); err != nil {
		return nil, fmt.Errorf("parse queries: %w", err)
	}
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

// heuristicQueries is the deterministic fallback when the LLM cannot help.
func heuristicQueries(prompt, field string) []string {
	topic := strings.Join(strings.Fields(prompt), " ")
	if len(topic) > 120 {
		topic = topic[:120]
	}
	queries := []string{topic}
	if field != "" {
		queries = append(queries, field+" "+topic)
		queries = append(queries, topic+" systematic review")
	}
	return queries
}

func initialSearchParams(state *WorkflowState) SearchParams {
	now := time.Now().Year()
	age := state.Params.SourceAgeYears
	if age <= 0 {
		age = 10
	}
	minSources := state.Params.MinSources
	if minSources <= 0 {
		minSources = 3
	}
	return SearchParams{
		Topic:      state.Prompt,
		YearFrom:   now - age,
		YearTo:     now,
		Design:     state.Params.StudyDesign,
		MinSources: minSources,
		MaxResults: 10,
	}
}
