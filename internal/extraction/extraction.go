// Package extraction drives the sandboxed LLM extraction run: discovering
// changed transcripts, staging the global memory file in a writable
// sandbox, invoking the LLM gateway, and committing the result back
// atomically.
package extraction

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memory-loop/daemon/internal/atomicfile"
	"github.com/memory-loop/daemon/internal/ledger"
	"github.com/memory-loop/daemon/internal/llmgateway"
	"github.com/memory-loop/daemon/internal/logging"
	"github.com/memory-loop/daemon/internal/memorystore"
	"github.com/memory-loop/daemon/internal/vault"
)

const sandboxFileName = llmgateway.SandboxFileName

// TranscriptMeta is the small, well-known transcript frontmatter read by
// a direct line-scan rather than a full YAML parser.
type TranscriptMeta struct {
	Date      string
	Time      string
	SessionID string
	Title     string
}

// Transcript is one discovered chat transcript awaiting extraction.
type Transcript struct {
	VaultID  string
	RelPath  string
	AbsPath  string
	Checksum string
	Meta     TranscriptMeta
	Content  string
}

// checksum returns the SHA-256 hex digest of data.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// parseTranscriptMeta scans for a leading "---" delimited block and reads
// only the four known keys; absent or malformed frontmatter is not an
// error, it simply yields a zero-value TranscriptMeta.
func parseTranscriptMeta(content []byte) TranscriptMeta {
	var meta TranscriptMeta
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "---" {
		return meta
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch key {
		case "date":
			meta.Date = value
		case "time":
			meta.Time = value
		case "session_id":
			meta.SessionID = value
		case "title":
			meta.Title = value
		}
	}
	return meta
}

// DiscoverTranscripts lists Markdown transcripts under v.ChatsDir(),
// returning only those unprocessed or changed since the ledger's last
// recorded checksum for that path.
func DiscoverTranscripts(v *vault.Vault, led *ledger.Ledger) ([]Transcript, error) {
	entries, err := os.ReadDir(v.ChatsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	var transcripts []Transcript
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".md" {
			continue
		}
		absPath := filepath.Join(v.ChatsDir(), e.Name())
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("read transcript %s: %w", e.Name(), err)
		}
		sum := checksum(content)
		relPath := filepath.ToSlash(filepath.Join(v.InboxSubpath, "chats", e.Name()))
		key := ledger.Key(v.ID, relPath)
		if led.IsProcessed(key, sum) {
			continue
		}
		transcripts = append(transcripts, Transcript{
			VaultID:  v.ID,
			RelPath:  relPath,
			AbsPath:  absPath,
			Checksum: sum,
			Meta:     parseTranscriptMeta(content),
			Content:  string(content),
		})
	}
	return transcripts, nil
}

// Result is the outcome of one Driver.Run call.
type Result struct {
	Status           string
	TranscriptsRead  int
	FactsWritten     int
	DuplicatesFiltered int
	Errors           []string
}

// Driver coordinates one extraction run, matching spec.md §4.9's run
// protocol and crash-recovery rules.
type Driver struct {
	SandboxDir     string
	MemoryFilePath string
	ByteLimit      int
	Gateway        llmgateway.Gateway
	Now            func() time.Time
}

// New constructs a Driver.
func New(sandboxDir, memoryFilePath string, byteLimit int, gateway llmgateway.Gateway) *Driver {
	if byteLimit <= 0 {
		byteLimit = memorystore.DefaultByteLimit
	}
	return &Driver{
		SandboxDir:     sandboxDir,
		MemoryFilePath: memoryFilePath,
		ByteLimit:      byteLimit,
		Gateway:        gateway,
		Now:            time.Now,
	}
}

func (d *Driver) sandboxPath() string {
	return filepath.Join(d.SandboxDir, sandboxFileName)
}

// Recover performs spec.md §4.9's startup crash-recovery pass, run before
// the scheduler arms any trigger.
func (d *Driver) Recover(ctx context.Context) error {
	sandboxInfo, sandboxErr := os.Stat(d.sandboxPath())
	if os.IsNotExist(sandboxErr) {
		return nil
	}
	if sandboxErr != nil {
		return fmt.Errorf("stat sandbox: %w", sandboxErr)
	}

	globalInfo, globalErr := os.Stat(d.MemoryFilePath)
	switch {
	case os.IsNotExist(globalErr):
		logging.Extraction("recovery: global memory file absent, committing sandbox as canonical")
		return d.commitAndCleanup()
	case globalErr != nil:
		return fmt.Errorf("stat global memory file: %w", globalErr)
	case sandboxInfo.ModTime().After(globalInfo.ModTime()):
		logging.Extraction("recovery: sandbox newer than global file, re-running commit")
		return d.commitAndCleanup()
	default:
		logging.Extraction("recovery: stale sandbox artifact, deleting")
		return atomicfile.Remove(d.sandboxPath())
	}
}

func (d *Driver) commitAndCleanup() error {
	if _, err := d.commit(); err != nil {
		return err
	}
	return atomicfile.Remove(d.sandboxPath())
}

// commit reads the sandbox file, deduplicates lines an external editor may
// have introduced anywhere in the document, applies C8 size enforcement,
// and writes the result to the global memory path via C1.
func (d *Driver) commit() (memorystore.DedupeResult, error) {
	data, err := os.ReadFile(d.sandboxPath())
	if err != nil {
		return memorystore.DedupeResult{}, fmt.Errorf("read sandbox file: %w", err)
	}
	doc := memorystore.Parse(string(data))
	dedupe := doc.Dedupe()
	doc.Enforce(d.ByteLimit)
	if err := atomicfile.Write(d.MemoryFilePath, []byte(doc.Render()), 0644); err != nil {
		return memorystore.DedupeResult{}, fmt.Errorf("commit memory file: %w", err)
	}
	return dedupe, nil
}

// Run executes one full extraction pass: setup, extraction, commit,
// ledger update, and cleanup. led is the ledger snapshot to start from;
// Run returns the updated ledger to persist.
func (d *Driver) Run(ctx context.Context, transcripts []Transcript, led *ledger.Ledger) (Result, *ledger.Ledger, error) {
	now := d.Now()

	if len(transcripts) == 0 {
		return Result{Status: "success"}, led.WithLastRunAt(now), nil
	}

	if err := os.MkdirAll(d.SandboxDir, 0755); err != nil {
		return Result{}, led, fmt.Errorf("create sandbox dir: %w", err)
	}

	var seed []byte
	existing, err := os.ReadFile(d.MemoryFilePath)
	if err == nil {
		seed = existing
	} else if !os.IsNotExist(err) {
		return Result{}, led, fmt.Errorf("read global memory file: %w", err)
	}
	if err := atomicfile.Write(d.sandboxPath(), seed, 0644); err != nil {
		return Result{}, led, fmt.Errorf("seed sandbox: %w", err)
	}

	beforeCount := memorystore.Parse(string(seed)).FactCount()
	extractErrs := d.extract(ctx, transcripts)

	dedupe, err := d.commit()
	if err != nil {
		return Result{}, led, err
	}

	committed, err := os.ReadFile(d.MemoryFilePath)
	if err != nil {
		return Result{}, led, fmt.Errorf("read committed memory file: %w", err)
	}
	afterCount := memorystore.Parse(string(committed)).FactCount()
	factsWritten := afterCount - beforeCount + dedupe.DuplicatesFiltered
	if factsWritten < 0 {
		factsWritten = 0
	}

	nextLedger := led
	for _, t := range transcripts {
		nextLedger = nextLedger.Mark(ledger.Key(t.VaultID, t.RelPath), t.Checksum, now)
	}
	nextLedger = nextLedger.WithLastRunAt(now)

	if err := atomicfile.Remove(d.sandboxPath()); err != nil {
		logging.ExtractionWarn("cleanup: failed to remove sandbox file: %v", err)
	}

	status := "success"
	if len(extractErrs) > 0 {
		status = "error"
	}

	return Result{
		Status:             status,
		TranscriptsRead:    len(transcripts),
		FactsWritten:       factsWritten,
		DuplicatesFiltered: dedupe.DuplicatesFiltered,
		Errors:             extractErrs,
	}, nextLedger, nil
}

// extract invokes the LLM gateway once per transcript, restricted to
// d.SandboxDir (spec.md §6, §9 "Sandbox isolation"): the gateway edits the
// sandboxed memory file directly rather than returning text for the driver
// to parse. Per-transcript failures are collected and returned, not
// treated as fatal to the run.
func (d *Driver) extract(ctx context.Context, transcripts []Transcript) []string {
	var errs []string

	for _, t := range transcripts {
		heading := t.Meta.Title
		if heading == "" {
			heading = "Session Notes"
		}

		prompt := fmt.Sprintf(
			"Edit %s, adding a \"## %s\" section (creating it if absent) with one durable "+
				"fact per line about the user's preferences and history from the chat "+
				"transcript below. Do not remove or alter any existing content.\n\n---\n%s",
			sandboxFileName, heading, t.Content,
		)

		result, err := d.Gateway.Run(ctx, prompt, d.SandboxDir)
		if err != nil {
			logging.ExtractionWarn("extraction failed for %s: %v", t.RelPath, err)
			errs = append(errs, fmt.Sprintf("%s: %v", t.RelPath, err))
			continue
		}
		if !result.Completed {
			logging.ExtractionWarn("extraction did not complete for %s", t.RelPath)
			errs = append(errs, fmt.Sprintf("%s: extraction did not complete", t.RelPath))
		}
	}

	return errs
}
