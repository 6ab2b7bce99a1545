package core

import (
	"math"
	"testing"
)

func TestComputeFingerprint(t *testing.T) {
	t.Parallel()

	// 12 words, 2 sentences, 1 citation.
	draft := "Sepsis care improved measurably (Smith, 2020). Early detection remains the critical factor."
	fp := ComputeFingerprint("u1", draft)

	if fp.UserID != "u1" || fp.Drafts != 1 {
		t.Fatalf("unexpected identity fields: %+v", fp)
	}
	if fp.AvgSentenceLen <= 0 || fp.LexicalDiversity <= 0 || fp.CitationDensity <= 0 {
		t.Fatalf("expected positive statistics: %+v", fp)
	}
}

func TestComputeFingerprintEmptyDraft(t *testing.T) {
	t.Parallel()

	fp := ComputeFingerprint("u1", "")
	if fp.AvgSentenceLen != 0 || fp.LexicalDiversity != 0 || fp.CitationDensity != 0 {
		t.Fatalf("empty draft should yield zero statistics: %+v", fp)
	}
}

func TestMergeFingerprintEMA(t *testing.T) {
	t.Parallel()

	old := WritingFingerprint{UserID: "u1", AvgSentenceLen: 10, Drafts: 1}
	observed := WritingFingerprint{UserID: "u1", AvgSentenceLen: 20, Drafts: 1}

	merged := MergeFingerprint(old, observed, 0.5)
	if math.Abs(merged.AvgSentenceLen-15.0) > 1e-9 {
		t.Fatalf("avg sentence len = %v, want 15.0", merged.AvgSentenceLen)
	}
	if merged.Drafts != 2 {
		t.Fatalf("drafts = %d, want 2", merged.Drafts)
	}
}

func TestMergeFingerprintIdenticalObservationIsStable(t *testing.T) {
	t.Parallel()

	old := WritingFingerprint{UserID: "u1", AvgSentenceLen: 18, LexicalDiversity: 0.6, CitationDensity: 2.5, Drafts: 3}
	merged := MergeFingerprint(old, old, 0.3)

	if math.Abs(merged.AvgSentenceLen-old.AvgSentenceLen) > 1e-9 ||
		math.Abs(merged.LexicalDiversity-old.LexicalDiversity) > 1e-9 ||
		math.Abs(merged.CitationDensity-old.CitationDensity) > 1e-9 {
		t.Fatalf("merging an identical observation moved the profile: %+v", merged)
	}
}

func TestMergeFingerprintSanitizesAlpha(t *testing.T) {
	t.Parallel()

	old := WritingFingerprint{AvgSentenceLen: 10}
	observed := WritingFingerprint{AvgSentenceLen: 20}

	// Out-of-range alpha falls back to the 0.3 default.
	merged := MergeFingerprint(old, observed, -1)
	if math.Abs(merged.AvgSentenceLen-13.0) > 1e-9 {
		t.Fatalf("avg sentence len = %v, want 13.0 with default alpha", merged.AvgSentenceLen)
	}
}
