package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/handywriterz/handywriterz/config"
	core "github.com/handywriterz/handywriterz/internal/agent/core"
	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
	"github.com/handywriterz/handywriterz/internal/agent/verify"
	"github.com/handywriterz/handywriterz/internal/store"
)

// fakeLLM answers chat completion calls: planners get a query array,
// everything else gets a short draft citing the test source.
func fakeLLM(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		content := "The evidence is clear (Smith, 2020). Outcomes improved."
		if strings.Contains(string(body), "literature search queries") {
			content = `["sepsis management"]`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixedSearch struct {
	hits []core.SourceRecord
}

func (f *fixedSearch) Run(ctx context.Context, queries []string, params core.SearchParams) []core.SourceRecord {
	return f.hits
}

func testConfig(llmURL string) *config.Config {
	return &config.Config{
		General: config.GeneralConfig{DefaultTimeout: 30 * time.Second},
		LLM: config.LLMConfig{
			Providers: map[string]config.LLMProvider{
				"test": {
					Type:    "openai-compatible",
					APIKey:  "test-key",
					BaseURL: llmURL,
					Models:  map[string]config.LLMModel{"m": {Name: "m", MaxTokens: 4096}},
				},
			},
			Routing: config.LLMRoutingConfig{Fallback: "m"},
		},
		Workflow: config.WorkflowConfig{MaxIterations: 5, MaxFallbackAttempts: 2, MaxConcurrentRuns: 2},
		Swarms:   config.SwarmsConfig{MemberTimeout: 5 * time.Second},
		Memory:   config.MemoryConfig{Enabled: true, MergeAlpha: 0.3},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	llm := fakeLLM(t)
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(live.Close)

	cfg := testConfig(llm.URL)
	mem := store.NewMemoryStore()
	tele := telemetry.NewTelemetry(cfg.Telemetry)

	orch, err := core.NewOrchestrator(cfg, core.Deps{
		Search: &fixedSearch{hits: []core.SourceRecord{
			{ID: "Smith", Title: "Sepsis care", Authors: "Smith, J.", Year: 2020, URL: live.URL},
		}},
		Verifier:     verify.NewVerifier(config.VerifyConfig{}, tele),
		Fallback:     verify.NewFallbackController(2, tele),
		Checkpoints:  mem,
		Fingerprints: mem,
		Telemetry:    tele,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return &App{Cfg: cfg, Telemetry: tele, Orch: orch}
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	e := NewEcho(app)
	api := httptest.NewServer(e)
	t.Cleanup(api.Close)

	// Submit.
	resp, err := http.Post(api.URL+"/api/v1/workflows", "application/json",
		strings.NewReader(`{"prompt":"sepsis management in ICU","user_params":{"field":"nursing","word_count":300,"citation_style":"apa","min_sources":1}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ConversationID == "" {
		t.Fatalf("expected a conversation id")
	}

	// Poll until terminal.
	deadline := time.Now().Add(15 * time.Second)
	var status statusResponse
	for {
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish, last status %+v", status)
		}
		r, err := http.Get(api.URL + "/api/v1/workflows/" + created.ConversationID)
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		err = json.NewDecoder(r.Body).Decode(&status)
		r.Body.Close()
		if err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Status == string(core.StatusComplete) || status.Status == string(core.StatusFailed) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status.Status != string(core.StatusComplete) {
		t.Fatalf("run finished %s", status.Status)
	}

	// Fetch result.
	r, err := http.Get(api.URL + "/api/v1/workflows/" + created.ConversationID + "/result")
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d", r.StatusCode)
	}
	var state core.WorkflowState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if state.FormattedDraft == "" || !strings.Contains(state.FormattedDraft, "References") {
		t.Fatalf("expected formatted draft with references, got %q", state.FormattedDraft)
	}
	if len(state.Sources) != 1 || state.Sources[0].ID != "Smith" {
		t.Fatalf("sources lost: %+v", state.Sources)
	}
}

func TestCreateRejectsEmptyPrompt(t *testing.T) {
	app := newTestApp(t)
	e := NewEcho(app)
	api := httptest.NewServer(e)
	t.Cleanup(api.Close)

	resp, err := http.Post(api.URL+"/api/v1/workflows", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] == "" {
		t.Fatalf("error body should carry a message: %v", body)
	}
}

func TestUnknownWorkflowReturns404(t *testing.T) {
	app := newTestApp(t)
	e := NewEcho(app)
	api := httptest.NewServer(e)
	t.Cleanup(api.Close)

	resp, err := http.Get(api.URL + "/api/v1/workflows/nope/result")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
