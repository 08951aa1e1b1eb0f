// Package cards implements the Card Discovery Engine: a periodic vault
// walk that turns recently-touched notes into spaced-repetition Q&A cards,
// with weekly catch-up budgeting for files the daily pass didn't reach.
package cards

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memory-loop/daemon/internal/atomicfile"
	"github.com/memory-loop/daemon/internal/frontmatter"
	"github.com/memory-loop/daemon/internal/ledger"
	"github.com/memory-loop/daemon/internal/logging"
	"github.com/memory-loop/daemon/internal/vault"
)

// instructionsFileName is excluded from card-worthy content, per spec.md
// §4.10 ("files named CLAUDE.md are excluded as instruction files").
const instructionsFileName = "CLAUDE.md"

// DefaultWeeklyByteBudget is the default per-ISO-week byte budget for the
// weekly catch-up pass.
const DefaultWeeklyByteBudget = 500 * 1024

// Card is one generated spaced-repetition question/answer pair.
type Card struct {
	Question string
	Answer   string
}

// GenResult is what a card generator returns for one source file.
type GenResult struct {
	Success   bool
	Retriable bool
	Skipped   bool
	Cards     []Card
}

// Generator produces cards from a file's content. It wraps the external
// LLM gateway; spec.md §1 treats the model itself as an external
// collaborator, but the typed result contract is in scope.
type Generator interface {
	Generate(ctx context.Context, content string) (GenResult, error)
}

// candidateFile is one vault file eligible for card generation.
type candidateFile struct {
	vaultID  string
	relPath  string
	absPath  string
	mtime    time.Time
	cardsDir string
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// discoverCandidates walks v, excluding hidden entries, the metadata
// subtree, the inbox chats subtree, and CLAUDE.md files.
func discoverCandidates(v *vault.Vault) ([]candidateFile, error) {
	var out []candidateFile
	metaSubtree := v.MetadataSubtree()
	chatsDir := v.ChatsDir()

	err := filepath.WalkDir(v.ContentRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != v.ContentRoot && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if path == metaSubtree || path == chatsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(name)) != ".md" {
			return nil
		}
		if name == instructionsFileName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(v.ContentRoot, path)
		if err != nil {
			return err
		}
		out = append(out, candidateFile{
			vaultID:  v.ID,
			relPath:  filepath.ToSlash(rel),
			absPath:  path,
			mtime:    info.ModTime(),
			cardsDir: v.CardsDir(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault %s: %w", v.ID, err)
	}
	return out, nil
}

// Result is the outcome of one daily or weekly pass.
type Result struct {
	Status              string
	SuccessfullyHandled int
	RetriableCount      int
	ErrorCount          int
	CardsCreated        int
}

// Engine runs the daily and weekly Card Discovery passes.
type Engine struct {
	Generator        Generator
	WeeklyByteBudget int64
	Now              func() time.Time
}

// New constructs an Engine.
func New(generator Generator, weeklyByteBudget int64) *Engine {
	if weeklyByteBudget <= 0 {
		weeklyByteBudget = DefaultWeeklyByteBudget
	}
	return &Engine{Generator: generator, WeeklyByteBudget: weeklyByteBudget, Now: time.Now}
}

// RunDaily processes every file in v modified within the last 24 hours,
// matching spec.md §4.10's daily pass.
func (e *Engine) RunDaily(ctx context.Context, v *vault.Vault, led *ledger.Ledger, persist func(*ledger.Ledger) error) (Result, *ledger.Ledger, error) {
	candidates, err := discoverCandidates(v)
	if err != nil {
		return Result{}, led, err
	}

	cutoff := e.Now().Add(-24 * time.Hour)
	var recent []candidateFile
	for _, c := range candidates {
		if c.mtime.After(cutoff) {
			recent = append(recent, c)
		}
	}

	result, nextLedger, err := e.processFiles(ctx, recent, led, persist)
	if err != nil {
		return result, nextLedger, err
	}

	if result.SuccessfullyHandled > result.RetriableCount {
		nextLedger = nextLedger.WithLastDailyRun(e.Now())
		result.Status = "success"
	} else {
		result.Status = "error"
	}
	if err := persist(nextLedger); err != nil {
		return result, nextLedger, err
	}
	return result, nextLedger, nil
}

// RunWeekly processes the oldest unprocessed files by mtime, stopping
// when the per-week byte budget would be exceeded. The budget resets on
// a new ISO-week Monday.
func (e *Engine) RunWeekly(ctx context.Context, v *vault.Vault, led *ledger.Ledger, persist func(*ledger.Ledger) error) (Result, *ledger.Ledger, error) {
	candidates, err := discoverCandidates(v)
	if err != nil {
		return Result{}, led, err
	}

	weekStart := isoWeekStart(e.Now())
	budgetUsed := led.WeeklyBudgetBytesUsed
	if !led.WeeklyBudgetWeekStart.Equal(weekStart) {
		budgetUsed = 0
	}
	remaining := e.WeeklyByteBudget - budgetUsed

	var unprocessed []candidateFile
	for _, c := range candidates {
		content, err := os.ReadFile(c.absPath)
		if err != nil {
			continue
		}
		key := ledger.Key(c.vaultID, c.relPath)
		if led.IsProcessed(key, checksum(content)) {
			continue
		}
		unprocessed = append(unprocessed, c)
	}
	sort.Slice(unprocessed, func(i, j int) bool { return unprocessed[i].mtime.Before(unprocessed[j].mtime) })

	var selected []candidateFile
	for _, c := range unprocessed {
		info, err := os.Stat(c.absPath)
		if err != nil {
			continue
		}
		if int64(info.Size()) > remaining {
			break
		}
		selected = append(selected, c)
		remaining -= info.Size()
	}

	result, nextLedger, err := e.processFiles(ctx, selected, led, persist)
	if err != nil {
		return result, nextLedger, err
	}

	nextLedger = nextLedger.WithWeeklyBudget(weekStart, e.WeeklyByteBudget-remaining)
	if result.SuccessfullyHandled > result.RetriableCount {
		nextLedger = nextLedger.WithLastWeeklyRun(e.Now())
	}
	result.Status = "success"
	if err := persist(nextLedger); err != nil {
		return result, nextLedger, err
	}
	return result, nextLedger, nil
}

// isoWeekStart returns the UTC midnight of the Monday starting t's ISO week.
func isoWeekStart(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	daysSinceMonday := weekday - 1
	monday := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// processFiles runs the per-file state machine from spec.md §4.10 over
// files, persisting the ledger after every per-file state change.
func (e *Engine) processFiles(ctx context.Context, files []candidateFile, led *ledger.Ledger, persist func(*ledger.Ledger) error) (Result, *ledger.Ledger, error) {
	result := Result{}
	current := led

	for _, f := range files {
		content, err := os.ReadFile(f.absPath)
		if err != nil {
			logging.CardsWarn("card discovery: failed to read %s: %v", f.relPath, err)
			result.ErrorCount++
			continue
		}

		sum := checksum(content)
		key := ledger.Key(f.vaultID, f.relPath)
		if current.IsProcessed(key, sum) {
			continue
		}

		genResult, err := e.Generator.Generate(ctx, string(content))
		if err != nil {
			logging.CardsWarn("card discovery: generator error for %s: %v", f.relPath, err)
			result.ErrorCount++
			current = current.Mark(key, sum, e.Now())
			if perr := persist(current); perr != nil {
				return result, current, perr
			}
			continue
		}

		switch {
		case genResult.Retriable:
			result.RetriableCount++
			continue
		case genResult.Skipped:
			result.SuccessfullyHandled++
			current = current.Mark(key, sum, e.Now())
		case genResult.Success:
			for _, card := range genResult.Cards {
				if err := writeCard(f.cardsDir, f.relPath, card, e.Now()); err != nil {
					logging.CardsWarn("card discovery: failed to write card for %s: %v", f.relPath, err)
					continue
				}
				result.CardsCreated++
			}
			result.SuccessfullyHandled++
			current = current.Mark(key, sum, e.Now())
		default:
			result.ErrorCount++
			current = current.Mark(key, sum, e.Now())
		}

		if err := persist(current); err != nil {
			return result, current, err
		}
	}

	return result, current, nil
}

// writeCard creates a new card file with default SR metadata at a UUID v4
// filename under cardsDir, via the atomic file writer. Frontmatter keys
// follow spec.md §6's bit-level order; the body holds the literal
// `## Question` / `## Answer` sections.
func writeCard(cardsDir, sourceFile string, card Card, now time.Time) error {
	if cardsDir == "" {
		return fmt.Errorf("cards: no cards directory registered")
	}
	id := uuid.New().String()

	doc, err := frontmatter.Parse([]byte("---\n---\n\n"))
	if err != nil {
		return err
	}
	if err := doc.Set("id", id); err != nil {
		return err
	}
	if err := doc.Set("type", "qa"); err != nil {
		return err
	}
	if err := doc.Set("created_date", now.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := doc.Set("last_reviewed", nil); err != nil {
		return err
	}
	if err := doc.Set("next_review", now.UTC().Format("2006-01-02")); err != nil {
		return err
	}
	if err := doc.Set("ease_factor", 2.5); err != nil {
		return err
	}
	if err := doc.Set("interval", int64(0)); err != nil {
		return err
	}
	if err := doc.Set("repetitions", int64(0)); err != nil {
		return err
	}
	if sourceFile != "" {
		if err := doc.Set("source_file", sourceFile); err != nil {
			return err
		}
	}
	doc.Body = fmt.Sprintf("## Question\n\n%s\n\n## Answer\n\n%s\n", card.Question, card.Answer)

	out, err := doc.Serialize()
	if err != nil {
		return err
	}

	filename := id + ".md"
	return atomicfile.Write(filepath.Join(cardsDir, filename), out, 0644)
}

// Archive moves a card file to <cardsDir>/archive/ by rename, creating the
// archive directory on demand, without altering the card's metadata.
func Archive(cardsDir, archiveDir, filename string) error {
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	src := filepath.Join(cardsDir, filename)
	dst := filepath.Join(archiveDir, filename)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive card %s: %w", filename, err)
	}
	return nil
}
