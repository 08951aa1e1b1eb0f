package memorystore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSplitsIntoSections(t *testing.T) {
	content := "preamble line\n\n## Facts\n- fact one\n- fact two\n\n## Preferences\n- likes strategy games\n"
	doc := Parse(content)

	require.Len(t, doc.Sections, 3)
	assert.Equal(t, "", doc.Sections[0].Header)
	assert.Equal(t, "Facts", doc.Sections[1].Header)
	assert.Equal(t, "Preferences", doc.Sections[2].Header)
	assert.Contains(t, doc.Sections[1].Lines, "- fact one")
}

func TestRenderEndsWithSingleNewline(t *testing.T) {
	doc := Parse("## Facts\n- a\n- b\n")
	out := doc.Render()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}

func TestEnforcePrunesLargestSectionWhenOverLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "- line number that is reasonably long to consume bytes quickly "+strings.Repeat("x", 20))
	}
	content := "## Facts\n" + strings.Join(lines, "\n") + "\n"
	doc := Parse(content)

	before := len(doc.Render())
	require.Greater(t, before, 1024)

	doc.Enforce(1024)
	after := len(doc.Render())
	assert.LessOrEqual(t, after, 1024)
}

func TestEnforceNoOpUnderLimit(t *testing.T) {
	doc := Parse("## Facts\n- a\n- b\n")
	before := doc.Render()
	doc.Enforce(DefaultByteLimit)
	assert.Equal(t, before, doc.Render())
}

func TestDedupeRemovesDuplicateAcrossSections(t *testing.T) {
	doc := Parse("## Facts\n- The player prefers strategy games.\n\n## More\n- the player prefers strategy games\n")
	result := doc.Dedupe()

	assert.Equal(t, 1, result.DuplicatesFiltered)
	assert.Equal(t, 1, doc.FactCount())
}

func TestDedupeKeepsBlankLines(t *testing.T) {
	doc := Parse("## Facts\n- a\n\n- b\n")
	doc.Dedupe()
	assert.Contains(t, doc.Sections[1].Lines, "")
}

func TestFactCountCountsNonBlankLinesOnly(t *testing.T) {
	doc := Parse("## Facts\n- a\n\n- b\n")
	assert.Equal(t, 2, doc.FactCount())
}

func TestSimilarityIdenticalStringsIsOne(t *testing.T) {
	assert.Equal(t, float64(1), similarity("hello world", "hello world"))
}

func TestNormalizeForDedupCollapsesPunctuationAndWhitespace(t *testing.T) {
	assert.Equal(t, "hello world", normalizeForDedup("  Hello,   World!  "))
}
