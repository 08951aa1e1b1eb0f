package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	l := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Empty(t, l.Records)
}

func TestLoadCorruptFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	l := Load(path)
	assert.Empty(t, l.Records)
}

func TestIsProcessedMatchesChecksum(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := Empty().Mark("vault:notes/a.md", "abc123", now)

	assert.True(t, l.IsProcessed("vault:notes/a.md", "abc123"))
	assert.False(t, l.IsProcessed("vault:notes/a.md", "changed"))
	assert.False(t, l.IsProcessed("vault:notes/b.md", "abc123"))
}

func TestMarkDoesNotMutateReceiver(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	original := Empty()
	updated := original.Mark("vault:notes/a.md", "abc123", now)

	assert.Empty(t, original.Records)
	assert.Len(t, updated.Records, 1)
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "ledger.json")
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	l := Empty().Mark("vault:a.md", "sum1", now).WithLastDailyRun(now)
	require.NoError(t, Persist(path, l))

	loaded := Load(path)
	require.True(t, loaded.IsProcessed("vault:a.md", "sum1"))
	assert.True(t, loaded.LastDailyRun.Equal(now))
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "personal:notes/game.md", Key("personal", "notes/game.md"))
}

func TestWithWeeklyBudgetRoundTrip(t *testing.T) {
	weekStart := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC)
	l := Empty().WithWeeklyBudget(weekStart, 1024)
	assert.True(t, l.WeeklyBudgetWeekStart.Equal(weekStart))
	assert.EqualValues(t, 1024, l.WeeklyBudgetBytesUsed)
}
