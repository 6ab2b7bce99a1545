package core

import (
	"context"
	"fmt"
	"strings"
)

// promptAgent is the shared shape of an LLM-backed swarm member: a name, a
// role instruction, and a function assembling the task-specific context.
type promptAgent struct {
	name      string
	role      string
	maxTokens int
	buildCtx  func(state *WorkflowState) string
	llm       LLMProvider
}

func (a *promptAgent) Name() string { return a.name }

func (a *promptAgent) Run(ctx context.Context, state *WorkflowState) (map[string]string, error) {
	prompt := a.role + "\n\n" + a.buildCtx(state)
	text, err := a.llm.Generate(ctx, prompt, a.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	return map[string]string{a.name + "_notes": strings.TrimSpace(text)}, nil
}

func sourceDigest(state *WorkflowState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nVerified sources:\n", state.Prompt)
	for _, s := range state.Sources {
		fmt.Fprintf(&b, "- [%s] %s (%d) %s\n", s.ID, s.Title, s.Year, s.Venue)
	}
	return b.String()
}

func draftDigest(state *WorkflowState) string {
	var b strings.Builder
	b.WriteString(sourceDigest(state))
	b.WriteString("\nDraft:\n")
	b.WriteString(state.Draft)
	return b.String()
}

// NewResearchSwarm builds the roster that distils verified evidence before
// drafting: per-source synthesis, methodology appraisal, and gap analysis.
func NewResearchSwarm(llm LLMProvider) []SwarmAgent {
	return []SwarmAgent{
		&promptAgent{
			name:      "synthesis",
			role:      "Summarize the key findings across the sources below into 4-6 evidence statements, each tagged with the source id in brackets.",
			maxTokens: 800,
			buildCtx:  sourceDigest,
			llm:       llm,
		},
		&promptAgent{
			name:      "methodology",
			role:      "For each source below, note the study design and one methodological strength or limitation.",
			maxTokens: 600,
			buildCtx:  sourceDigest,
			llm:       llm,
		},
		&promptAgent{
			name:      "gap_analysis",
			role:      "Identify gaps or open questions the sources below leave unanswered relative to the topic.",
			maxTokens: 400,
			buildCtx:  sourceDigest,
			llm:       llm,
		},
	}
}

// NewQASwarm builds the quality-assurance roster run over a finished draft.
func NewQASwarm(llm LLMProvider) []SwarmAgent {
	return []SwarmAgent{
		&promptAgent{
			name:      "fact_check",
			role:      "Check every factual claim in the draft below against the listed sources. List claims that are unsupported.",
			maxTokens: 600,
			buildCtx:  draftDigest,
			llm:       llm,
		},
		&promptAgent{
			name:      "bias_check",
			role:      "Review the draft below for one-sided framing or unbalanced evidence selection. Suggest corrections.",
			maxTokens: 400,
			buildCtx:  draftDigest,
			llm:       llm,
		},
		&promptAgent{
			name:      "originality",
			role:      "Flag any passages in the draft below that closely paraphrase the source titles or read as boilerplate.",
			maxTokens: 400,
			buildCtx:  draftDigest,
			llm:       llm,
		},
	}
}

// NewWritingSwarm builds the style roster whose notes feed the re-draft and
// formatting stages.
func NewWritingSwarm(llm LLMProvider) []SwarmAgent {
	return []SwarmAgent{
		&promptAgent{
			name:      "academic_tone",
			role:      "Suggest edits to bring the draft below to formal academic register without changing its claims.",
			maxTokens: 400,
			buildCtx:  draftDigest,
			llm:       llm,
		},
		&promptAgent{
			name:      "structure",
			role:      "Assess the section structure of the draft below and propose a tighter outline if needed.",
			maxTokens: 400,
			buildCtx:  draftDigest,
			llm:       llm,
		},
		&promptAgent{
			name:      "clarity",
			role:      "List the three least clear sentences in the draft below and rewrite each.",
			maxTokens: 400,
			buildCtx:  draftDigest,
			llm:       llm,
		},
	}
}
