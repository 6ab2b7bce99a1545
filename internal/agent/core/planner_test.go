package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return s.response, s.err
}

func TestParseQueryResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		response string
		want     []string
		wantErr  bool
	}{
		{
			name:     "bare array",
			response: `["sepsis nursing care", "early warning scores"]`,
			want:     []string{"sepsis nursing care", "early warning scores"},
		},
		{
			name:     "array inside prose and fences",
			response: "Here are the queries:\n```json\n[\"q1\", \"q2\"]\n```\nGood luck!",
			want:     []string{"q1", "q2"},
		},
		{
			name:     "blank entries dropped",
			response: `["q1", "  ", "q2"]`,
			want:     []string{"q1", "q2"},
		},
		{
			name:     "no array",
			response: "I cannot help with that.",
			wantErr:  true,
		},
		{
			name:     "malformed array",
			response: `["unterminated]`,
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseQueryResponse(tc.response)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQueryResponse: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPlannerFallsBackOnLLMFailure(t *testing.T) {
	t.Parallel()

	planner := NewPlannerAgent(&stubLLM{err: errors.New("provider down")}, nil)
	state := &WorkflowState{
		Prompt: "sepsis management in intensive care",
		Params: UserParams{Field: "nursing"},
	}

	update, err := planner.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("planner should degrade, not fail: %v", err)
	}
	if len(update.SearchQueries) == 0 {
		t.Fatalf("expected heuristic queries")
	}
	if update.SearchParams == nil {
		t.Fatalf("expected initial search params")
	}
}

func TestPlannerInitialParams(t *testing.T) {
	t.Parallel()

	planner := NewPlannerAgent(&stubLLM{response: `["q"]`}, nil)
	state := &WorkflowState{
		Prompt: "topic",
		Params: UserParams{SourceAgeYears: 5, MinSources: 4, StudyDesign: "RCT"},
	}

	update, err := planner.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	params := update.SearchParams
	now := time.Now().Year()
	if params.YearFrom != now-5 || params.YearTo != now {
		t.Fatalf("year window = %d-%d, want %d-%d", params.YearFrom, params.YearTo, now-5, now)
	}
	if params.MinSources != 4 || params.Design != "RCT" {
		t.Fatalf("params not carried from request: %+v", params)
	}
}

func TestPlannerDefaultParams(t *testing.T) {
	t.Parallel()

	planner := NewPlannerAgent(&stubLLM{response: `["q"]`}, nil)
	update, err := planner.Execute(context.Background(), &WorkflowState{Prompt: "topic"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	now := time.Now().Year()
	if update.SearchParams.YearFrom != now-10 {
		t.Fatalf("default source age should be 10 years, got from=%d", update.SearchParams.YearFrom)
	}
	if update.SearchParams.MinSources != 3 {
		t.Fatalf("default min sources should be 3, got %d", update.SearchParams.MinSources)
	}
}
