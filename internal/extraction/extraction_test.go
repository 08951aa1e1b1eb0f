package extraction

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memory-loop/daemon/internal/ledger"
	"github.com/memory-loop/daemon/internal/llmgateway"
	"github.com/memory-loop/daemon/internal/vault"
)

func TestParseTranscriptMetaReadsKnownKeys(t *testing.T) {
	content := []byte("---\ndate: 2026-07-29\ntime: \"14:30\"\nsession_id: abc123\ntitle: Planning session\n---\n\nHello.\n")
	meta := parseTranscriptMeta(content)
	assert.Equal(t, "2026-07-29", meta.Date)
	assert.Equal(t, "14:30", meta.Time)
	assert.Equal(t, "abc123", meta.SessionID)
	assert.Equal(t, "Planning session", meta.Title)
}

func TestParseTranscriptMetaAbsentFrontmatterIsNotError(t *testing.T) {
	meta := parseTranscriptMeta([]byte("Just a transcript with no frontmatter.\n"))
	assert.Equal(t, TranscriptMeta{}, meta)
}

func setupVaultWithChats(t *testing.T) *vault.Vault {
	t.Helper()
	root := t.TempDir()
	v := vault.New(root)
	require.NoError(t, os.MkdirAll(v.ChatsDir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(v.ChatsDir(), "session1.md"), []byte("---\ntitle: First Session\n---\n\nWe discussed board games.\n"), 0644))
	return v
}

func TestDiscoverTranscriptsFindsUnprocessed(t *testing.T) {
	v := setupVaultWithChats(t)
	transcripts, err := DiscoverTranscripts(v, ledger.Empty())
	require.NoError(t, err)
	require.Len(t, transcripts, 1)
	assert.Equal(t, "First Session", transcripts[0].Meta.Title)
}

func TestDiscoverTranscriptsSkipsUnchanged(t *testing.T) {
	v := setupVaultWithChats(t)
	transcripts, err := DiscoverTranscripts(v, ledger.Empty())
	require.NoError(t, err)
	require.Len(t, transcripts, 1)

	now := time.Now()
	led := ledger.Empty().Mark(ledger.Key(v.ID, transcripts[0].RelPath), transcripts[0].Checksum, now)

	again, err := DiscoverTranscripts(v, led)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDiscoverTranscriptsMissingChatsDirReturnsEmpty(t *testing.T) {
	v := vault.New(t.TempDir())
	transcripts, err := DiscoverTranscripts(v, ledger.Empty())
	require.NoError(t, err)
	assert.Empty(t, transcripts)
}

func TestRunWithNoTranscriptsAdvancesLastRunOnly(t *testing.T) {
	d := New(t.TempDir(), filepath.Join(t.TempDir(), "memory.md"), 0, llmgateway.NewStubGateway(nil))
	result, led, err := d.Run(context.Background(), nil, ledger.Empty())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.False(t, led.LastRunAt.IsZero())
}

func TestRunExtractsFactsAndCommitsToGlobalFile(t *testing.T) {
	sandboxDir := t.TempDir()
	memoryPath := filepath.Join(t.TempDir(), "memory.md")
	v := setupVaultWithChats(t)

	transcripts, err := DiscoverTranscripts(v, ledger.Empty())
	require.NoError(t, err)
	require.Len(t, transcripts, 1)

	stub := llmgateway.NewStubGateway(nil)
	stub.Default = "- prefers cooperative board games\n- enjoys long strategy sessions"
	d := New(sandboxDir, memoryPath, 0, stub)

	result, led, err := d.Run(context.Background(), transcripts, ledger.Empty())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 2, result.FactsWritten)

	data, err := os.ReadFile(memoryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cooperative board games")

	assert.True(t, led.IsProcessed(ledger.Key(v.ID, transcripts[0].RelPath), transcripts[0].Checksum))

	_, err = os.Stat(filepath.Join(sandboxDir, sandboxFileName))
	assert.True(t, os.IsNotExist(err), "sandbox file must be cleaned up after commit")
}

func TestRecoverCommitsWhenSandboxNewerThanGlobal(t *testing.T) {
	sandboxDir := t.TempDir()
	memoryDir := t.TempDir()
	memoryPath := filepath.Join(memoryDir, "memory.md")

	require.NoError(t, os.WriteFile(memoryPath, []byte("## Facts\n- old fact\n"), 0644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sandboxDir, sandboxFileName), []byte("## Facts\n- old fact\n- new fact from crashed run\n"), 0644))

	d := New(sandboxDir, memoryPath, 0, llmgateway.NewStubGateway(nil))
	require.NoError(t, d.Recover(context.Background()))

	data, err := os.ReadFile(memoryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "new fact from crashed run")

	_, err = os.Stat(filepath.Join(sandboxDir, sandboxFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestRecoverDeletesStaleSandbox(t *testing.T) {
	sandboxDir := t.TempDir()
	memoryDir := t.TempDir()
	memoryPath := filepath.Join(memoryDir, "memory.md")

	require.NoError(t, os.WriteFile(filepath.Join(sandboxDir, sandboxFileName), []byte("## Facts\n- stale\n"), 0644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(memoryPath, []byte("## Facts\n- current\n"), 0644))

	d := New(sandboxDir, memoryPath, 0, llmgateway.NewStubGateway(nil))
	require.NoError(t, d.Recover(context.Background()))

	data, err := os.ReadFile(memoryPath)
	require.NoError(t, err)
	assert.Equal(t, "## Facts\n- current\n", string(data), "global file must be untouched when sandbox is stale")

	_, err = os.Stat(filepath.Join(sandboxDir, sandboxFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestRecoverNoSandboxIsNoOp(t *testing.T) {
	d := New(t.TempDir(), filepath.Join(t.TempDir(), "memory.md"), 0, llmgateway.NewStubGateway(nil))
	assert.NoError(t, d.Recover(context.Background()))
}
