package core

import (
	"strings"
	"time"
	"unicode"
)

// ComputeFingerprint derives style statistics from a completed draft:
// average sentence length in words, type-token ratio, and citations per
// hundred words.
func ComputeFingerprint(userID, draft string) WritingFingerprint {
	words := strings.Fields(draft)
	sentences := countSentences(draft)
	citations := len(citationPattern.FindAllString(draft, -1))

	fp := WritingFingerprint{UserID: userID, Drafts: 1, UpdatedAt: time.Now()}
	if len(words) == 0 {
		return fp
	}
	if sentences > 0 {
		fp.AvgSentenceLen = float64(len(words)) / float64(sentences)
	}

	types := make(map[string]struct{}, len(words))
	for _, w := range words {
		types[strings.ToLower(strings.TrimFunc(w, unicode.IsPunct))] = struct{}{}
	}
	fp.LexicalDiversity = float64(len(types)) / float64(len(words))
	fp.CitationDensity = float64(citations) / float64(len(words)) * 100

	return fp
}

func countSentences(text string) int {
	n := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			n++
		}
	}
	return n
}

// MergeFingerprint folds a new observation into the stored profile with an
// exponential moving average: merged = alpha*new + (1-alpha)*old. Merging an
// observation equal to the stored profile is a no-op on the statistics.
func MergeFingerprint(old, observed WritingFingerprint, alpha float64) WritingFingerprint {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	merged := old
	merged.AvgSentenceLen = alpha*observed.AvgSentenceLen + (1-alpha)*old.AvgSentenceLen
	merged.LexicalDiversity = alpha*observed.LexicalDiversity + (1-alpha)*old.LexicalDiversity
	merged.CitationDensity = alpha*observed.CitationDensity + (1-alpha)*old.CitationDensity
	merged.Drafts = old.Drafts + 1
	merged.UpdatedAt = time.Now()
	return merged
}
