// Package memorystore maintains the size-bounded global memory file:
// section-based parsing, whole-document duplicate filtering, and pruning
// when the rebuilt file would exceed its byte cap.
package memorystore

import (
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/memory-loop/daemon/internal/logging"
)

// DefaultByteLimit is the hard cap enforced by Enforce.
const DefaultByteLimit = 50 * 1024

// similarityThreshold is the minimum normalized-Levenshtein similarity at
// which two facts are considered duplicates.
const similarityThreshold = 0.9

// maxPruneIterations bounds Enforce's pruning loop.
const maxPruneIterations = 1000

const headingPrefix = "## "

// Section is an ordered block of lines under a (possibly empty) heading.
// The pseudo-section with an empty Header holds lines before the first
// "##" heading.
type Section struct {
	Header string
	Lines  []string
}

// Document is a parsed memory file: an ordered list of sections.
type Document struct {
	Sections []Section
}

// Parse splits content into sections, as spec.md §4.8 describes.
func Parse(content string) *Document {
	lines := strings.Split(content, "\n")
	// Split leaves a trailing empty element when content ends in \n; drop
	// it so re-joining is unambiguous.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	doc := &Document{Sections: []Section{{Header: ""}}}
	for _, line := range lines {
		if strings.HasPrefix(line, headingPrefix) {
			doc.Sections = append(doc.Sections, Section{Header: strings.TrimPrefix(line, headingPrefix)})
			continue
		}
		last := len(doc.Sections) - 1
		doc.Sections[last].Lines = append(doc.Sections[last].Lines, line)
	}
	return doc
}

// nonBlankLines returns a section's lines with pure-whitespace lines
// removed.
func nonBlankLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// existingFacts returns every non-header, non-blank line across the whole
// document.
func (d *Document) existingFacts() []string {
	var facts []string
	for _, s := range d.Sections {
		facts = append(facts, nonBlankLines(s.Lines)...)
	}
	return facts
}

var punctuationPattern = regexp.MustCompile(`[[:punct:]]`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// normalizeForDedup lowercases, trims, strips punctuation, and collapses
// whitespace, per spec.md §4.8's duplicate-comparison rule.
func normalizeForDedup(s string) string {
	s = strings.ToLower(s)
	s = punctuationPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// similarity returns the normalized-Levenshtein similarity of a and b,
// 1 - dist/max(len(a), len(b)).
func similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func isDuplicate(candidate string, against []string) bool {
	normCandidate := normalizeForDedup(candidate)
	for _, existing := range against {
		if similarity(normCandidate, normalizeForDedup(existing)) >= similarityThreshold {
			return true
		}
	}
	return false
}

// FactCount returns the number of non-blank fact lines across the whole
// document.
func (d *Document) FactCount() int {
	return len(d.existingFacts())
}

// DedupeResult reports how many lines Dedupe removed.
type DedupeResult struct {
	DuplicatesFiltered int
}

// Dedupe drops any line that duplicates an earlier line in document order,
// using isDuplicate's normalized-Levenshtein rule. It scans the whole
// document, so it catches duplicates introduced anywhere by an external
// editor (spec.md §9 Sandbox isolation: the extraction driver cannot see
// what the LLM wrote until the sandboxed file is committed).
func (d *Document) Dedupe() DedupeResult {
	var result DedupeResult
	var seen []string
	for i := range d.Sections {
		kept := make([]string, 0, len(d.Sections[i].Lines))
		for _, line := range d.Sections[i].Lines {
			if strings.TrimSpace(line) == "" {
				kept = append(kept, line)
				continue
			}
			if isDuplicate(line, seen) {
				result.DuplicatesFiltered++
				continue
			}
			seen = append(seen, line)
			kept = append(kept, line)
		}
		d.Sections[i].Lines = kept
	}
	return result
}

// Render serializes the document, each section's heading (when non-empty)
// followed by its lines, joined with a single trailing newline.
func (d *Document) Render() string {
	var b strings.Builder
	for _, s := range d.Sections {
		if s.Header != "" {
			b.WriteString(headingPrefix)
			b.WriteString(s.Header)
			b.WriteString("\n")
		}
		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	out := b.String()
	return strings.TrimRight(out, "\n") + "\n"
}

// Enforce prunes the document in place until Render's byte length is at
// or under limit (default DefaultByteLimit), per spec.md §4.8's pruning
// rule: repeatedly strip lines from the top of the non-header section
// with the most non-blank lines.
func (d *Document) Enforce(limit int) {
	if limit <= 0 {
		limit = DefaultByteLimit
	}

	for i := 0; i < maxPruneIterations; i++ {
		size := len(d.Render())
		if size <= limit {
			return
		}
		overage := size - limit

		targetIdx := d.largestSectionIndex()
		if targetIdx < 0 {
			logging.ExtractionWarn("memory store exceeds %d bytes but no section can be pruned further", limit)
			return
		}

		section := &d.Sections[targetIdx]
		removeCount := int(math.Ceil(float64(overage) / 100))
		if removeCount < 1 {
			removeCount = 1
		}
		capped := len(section.Lines) / 10
		if capped < 1 {
			capped = 1
		}
		if removeCount > capped {
			removeCount = capped
		}
		if removeCount >= len(section.Lines) {
			removeCount = len(section.Lines)
		}
		if removeCount == 0 {
			logging.ExtractionWarn("memory store exceeds %d bytes but largest section cannot be reduced further", limit)
			return
		}
		section.Lines = section.Lines[removeCount:]
	}
	logging.ExtractionWarn("memory store pruning hit the %d-iteration bound without reaching the %d-byte limit", maxPruneIterations, limit)
}

// largestSectionIndex returns the index of the non-header (Header != "")
// section with the most non-blank lines, or -1 if every such section is
// already empty.
func (d *Document) largestSectionIndex() int {
	best := -1
	bestCount := 0
	for i, s := range d.Sections {
		if s.Header == "" {
			continue
		}
		count := len(nonBlankLines(s.Lines))
		if count > bestCount {
			bestCount = count
			best = i
		}
	}
	if bestCount == 0 {
		return -1
	}
	return best
}

// String is a convenience wrapper matching fmt.Stringer.
func (d *Document) String() string {
	return d.Render()
}
