// Package vocabulary maps free-form strings onto a controlled vocabulary,
// first by exact match and, failing that, via an optional LLM fallback.
package vocabulary

import (
	"context"
	"fmt"
	"strings"

	"github.com/memory-loop/daemon/internal/llmgateway"
	"github.com/memory-loop/daemon/internal/logging"
)

// Term is one canonical vocabulary entry with its accepted variations.
type Term struct {
	Canonical  string
	Variations []string
}

// Vocabulary is an ordered set of canonical terms.
type Vocabulary struct {
	Terms []Term
}

// Result is the outcome of normalizing one input term.
type Result struct {
	// Value is the canonical term on a match, or the original input
	// unchanged otherwise.
	Value string

	// Matched reports whether Value is a canonical vocabulary term.
	Matched bool
}

// normalizeForCompare applies the case-insensitive, whitespace-collapsed
// comparison spec.md §4.6 requires.
func normalizeForCompare(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// exactMatch returns the canonical term matching input, if any.
func (v Vocabulary) exactMatch(input string) (string, bool) {
	target := normalizeForCompare(input)
	for _, term := range v.Terms {
		if normalizeForCompare(term.Canonical) == target {
			return term.Canonical, true
		}
		for _, variant := range term.Variations {
			if normalizeForCompare(variant) == target {
				return term.Canonical, true
			}
		}
	}
	return "", false
}

// contains reports whether candidate is a canonical term in v.
func (v Vocabulary) contains(candidate string) bool {
	target := normalizeForCompare(candidate)
	for _, term := range v.Terms {
		if normalizeForCompare(term.Canonical) == target {
			return true
		}
	}
	return false
}

// Normalizer resolves terms against a vocabulary, optionally consulting
// an LLM gateway when no exact match is found.
type Normalizer struct {
	Gateway llmgateway.Gateway

	// PromptBuilder builds the LLM prompt for a given term and vocabulary;
	// defaults to defaultPrompt when nil.
	PromptBuilder func(term string, v Vocabulary) (systemPrompt, userPrompt string)
}

// New constructs a Normalizer. gateway may be nil, in which case
// normalization never consults the LLM and falls straight through to the
// unmatched case.
func New(gateway llmgateway.Gateway) *Normalizer {
	return &Normalizer{Gateway: gateway}
}

// Normalize resolves a single term against vocabulary.
func (n *Normalizer) Normalize(ctx context.Context, term string, vocabulary Vocabulary) Result {
	if canonical, ok := vocabulary.exactMatch(term); ok {
		return Result{Value: canonical, Matched: true}
	}

	if n.Gateway == nil {
		return Result{Value: term, Matched: false}
	}

	systemPrompt, userPrompt := n.buildPrompt(term, vocabulary)
	answer, err := n.Gateway.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		logging.VocabularyWarn("LLM fallback failed for term %q: %v", term, err)
		return Result{Value: term, Matched: false}
	}

	candidate := strings.TrimSpace(answer)
	if !vocabulary.contains(candidate) {
		logging.VocabularyDebug("LLM answer %q for term %q is outside the vocabulary", candidate, term)
		return Result{Value: term, Matched: false}
	}

	canonical, _ := vocabulary.exactMatch(candidate)
	return Result{Value: canonical, Matched: true}
}

// NormalizeBatch normalizes an ordered list of terms independently,
// preserving order; the API guarantees no reordering.
func (n *Normalizer) NormalizeBatch(ctx context.Context, terms []string, vocabulary Vocabulary) []Result {
	results := make([]Result, len(terms))
	for i, term := range terms {
		results[i] = n.Normalize(ctx, term, vocabulary)
	}
	return results
}

func (n *Normalizer) buildPrompt(term string, vocabulary Vocabulary) (string, string) {
	if n.PromptBuilder != nil {
		return n.PromptBuilder(term, vocabulary)
	}
	return defaultPrompt(term, vocabulary)
}

func defaultPrompt(term string, vocabulary Vocabulary) (string, string) {
	canonicals := make([]string, len(vocabulary.Terms))
	for i, t := range vocabulary.Terms {
		canonicals[i] = t.Canonical
	}
	system := "You map free-form terms onto a fixed vocabulary. Respond with exactly one canonical term from the list, or the single word NONE if nothing fits."
	user := fmt.Sprintf("Vocabulary: %s\nTerm: %s", strings.Join(canonicals, ", "), term)
	return system, user
}
