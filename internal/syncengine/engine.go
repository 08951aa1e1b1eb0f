// Package syncengine orchestrates sync pipelines: match vault files against
// a glob, fetch external records through connectors, normalize vocabulary
// terms, merge into frontmatter, and write atomically.
package syncengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/memory-loop/daemon/internal/atomicfile"
	"github.com/memory-loop/daemon/internal/connector"
	"github.com/memory-loop/daemon/internal/frontmatter"
	"github.com/memory-loop/daemon/internal/ledger"
	"github.com/memory-loop/daemon/internal/logging"
	"github.com/memory-loop/daemon/internal/progress"
	"github.com/memory-loop/daemon/internal/vocabulary"
)

// Mode selects full or incremental sync semantics.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// DefaultIncrementalThresholdHours is used when a run does not override it.
const DefaultIncrementalThresholdHours = 24

// Options configures a single Run.
type Options struct {
	VaultRoot                 string
	Mode                      Mode
	PipelineFilter            string // empty matches all pipelines
	IncrementalThresholdHours int
	Reporter                  *progress.Reporter
}

// Result is the outcome of a Run, matching spec.md §4.7.
type Result struct {
	Status         string
	FilesProcessed int
	FilesUpdated   int
	Errors         []string
	DurationMs     int64
}

// Engine runs sync pipelines against a vault.
type Engine struct {
	Connectors *connector.Registry
	Cache      *connector.Cache
	Normalizer *vocabulary.Normalizer
	Ledger     *ledger.Ledger
	VaultID    string
	Now        func() time.Time
}

// New constructs an Engine whose Now clock is time.Now.
func New(connectors *connector.Registry, cache *connector.Cache, normalizer *vocabulary.Normalizer, led *ledger.Ledger, vaultID string) *Engine {
	return &Engine{
		Connectors: connectors,
		Cache:      cache,
		Normalizer: normalizer,
		Ledger:     led,
		VaultID:    vaultID,
		Now:        time.Now,
	}
}

// Run executes every loaded pipeline against opts.VaultRoot, matching
// spec.md §4.7's per-file processing contract.
func (e *Engine) Run(ctx context.Context, opts Options) (Result, *ledger.Ledger, error) {
	start := time.Now()
	threshold := opts.IncrementalThresholdHours
	if threshold <= 0 {
		threshold = DefaultIncrementalThresholdHours
	}

	if opts.Mode == ModeFull {
		e.Cache.Clear()
	}

	loadResult, err := LoadPipelines(filepath.Join(opts.VaultRoot, ".memory-loop", "sync"))
	if err != nil {
		return Result{}, e.Ledger, fmt.Errorf("load pipelines: %w", err)
	}

	result := Result{Status: "success"}
	for path, loadErr := range loadResult.Invalid {
		logging.SyncWarn("pipeline config %s is invalid, skipping: %v", path, loadErr)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, loadErr))
	}

	paths, err := collectMarkdownPaths(opts.VaultRoot)
	if err != nil {
		return Result{}, e.Ledger, fmt.Errorf("walk vault: %w", err)
	}

	reporter := opts.Reporter
	currentLedger := e.Ledger
	if currentLedger == nil {
		currentLedger = ledger.Empty()
	}

	for _, pipeline := range loadResult.Pipelines {
		if opts.PipelineFilter != "" && pipeline.Name != opts.PipelineFilter {
			continue
		}
		e.runPipeline(ctx, pipeline, opts, paths, threshold, reporter, &result)
	}

	if len(result.Errors) > 0 {
		result.Status = "error"
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, currentLedger, nil
}

// runPipeline processes every path matching pipeline's glob. Per-file
// idempotency within a pipeline is governed by _sync_meta.last_synced
// (spec.md §4.7 step 1), not the processing ledger; the ledger tracks
// only this engine's last successful run for the scheduler's catch-up
// detection (spec.md §4.4), advanced by the caller once Run returns.
func (e *Engine) runPipeline(ctx context.Context, pipeline *Pipeline, opts Options, paths []string, thresholdHours int, reporter *progress.Reporter, result *Result) {
	conn, err := e.Connectors.Get(pipeline.Connector)
	if err != nil {
		logging.SyncWarn("pipeline %s: %v", pipeline.Name, err)
		result.Errors = append(result.Errors, fmt.Sprintf("pipeline %s: %v", pipeline.Name, err))
		return
	}

	matched := matchPaths(paths, pipeline.Match.Pattern)
	if reporter != nil {
		reporter.Begin(pipeline.Name, len(matched))
	}

	for i, relPath := range matched {
		if reporter != nil {
			reporter.Item(pipeline.Name, i+1, len(matched), relPath)
		}
		updated, err := e.processFile(ctx, pipeline, opts, conn, relPath, thresholdHours)
		if err != nil {
			logging.SyncWarn("pipeline %s: file %s: %v", pipeline.Name, relPath, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s: %v", pipeline.Name, relPath, err))
			result.FilesProcessed++
			continue
		}
		// Skipped files (no external id, or synced within the threshold)
		// are not counted as processed; failed files are, but not as updated.
		if updated {
			result.FilesProcessed++
			result.FilesUpdated++
		}
	}

	if reporter != nil {
		reporter.Finish(pipeline.Name, len(matched), nil)
	}
}

// processFile applies spec.md §4.7's eight-step per-file sequence.
// Returns (updated, error); a missing external id or a recent-threshold
// skip returns (false, nil), not an error.
func (e *Engine) processFile(ctx context.Context, pipeline *Pipeline, opts Options, conn connector.Connector, relPath string, thresholdHours int) (bool, error) {
	absPath := filepath.Join(opts.VaultRoot, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, fmt.Errorf("read: %w", err)
	}

	doc, err := frontmatter.Parse(content)
	if err != nil {
		return false, fmt.Errorf("parse frontmatter: %w", err)
	}

	if opts.Mode == ModeIncremental {
		if lastSynced, ok := doc.Get("_sync_meta.last_synced"); ok {
			if ts, ok := parseTimestamp(lastSynced); ok {
				if e.Now().Sub(ts) < time.Duration(thresholdHours)*time.Hour {
					return false, nil
				}
			}
		}
	}

	rawID, ok := doc.Get(pipeline.Match.Field)
	if !ok {
		return false, nil
	}
	externalID := fmt.Sprintf("%v", rawID)
	if strings.TrimSpace(externalID) == "" {
		return false, nil
	}

	resp, ok := e.Cache.Get(pipeline.Connector, externalID)
	if !ok {
		fetched, err := conn.FetchByID(ctx, externalID)
		if err != nil {
			return false, fmt.Errorf("fetch %s: %w", externalID, err)
		}
		e.Cache.Put(pipeline.Connector, externalID, fetched)
		resp = fetched
	}

	fieldSources := make(connector.FieldMapping, len(pipeline.Fields))
	for _, f := range pipeline.Fields {
		fieldSources[f.Source] = f.Source
	}
	extracted, err := conn.ExtractFields(resp, fieldSources)
	if err != nil {
		return false, fmt.Errorf("extract fields: %w", err)
	}

	for _, f := range pipeline.Fields {
		value, ok := extracted[f.Source]
		if !ok {
			continue
		}
		if f.Normalize {
			value = e.normalizeValue(ctx, pipeline.Vocabulary, value)
		}
		target := pipeline.targetKey(f)
		if err := applyMerge(doc, target, value, pipeline.effectiveMerge(f)); err != nil {
			return false, fmt.Errorf("merge field %s: %w", f.Target, err)
		}
	}

	if err := doc.Set("_sync_meta.last_synced", e.Now().UTC().Format(time.RFC3339)); err != nil {
		return false, fmt.Errorf("set sync meta: %w", err)
	}
	if err := doc.Set("_sync_meta.source", pipeline.Connector); err != nil {
		return false, fmt.Errorf("set sync meta: %w", err)
	}
	if err := doc.Set("_sync_meta.source_id", externalID); err != nil {
		return false, fmt.Errorf("set sync meta: %w", err)
	}

	out, err := doc.Serialize()
	if err != nil {
		return false, fmt.Errorf("serialize: %w", err)
	}
	if err := atomicfile.Write(absPath, out, 0644); err != nil {
		return false, fmt.Errorf("write: %w", err)
	}

	return true, nil
}

func (e *Engine) normalizeValue(ctx context.Context, vocab vocabulary.Vocabulary, value interface{}) interface{} {
	if e.Normalizer == nil {
		return value
	}

	switch v := value.(type) {
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = e.normalizeScalar(ctx, vocab, item)
		}
		return out
	default:
		return e.normalizeScalar(ctx, vocab, value)
	}
}

func (e *Engine) normalizeScalar(ctx context.Context, vocab vocabulary.Vocabulary, value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	result := e.Normalizer.Normalize(ctx, s, vocab)
	return result.Value
}

// applyMerge applies a single field's merge strategy to doc.
func applyMerge(doc *frontmatter.Document, target string, value interface{}, strategy MergeStrategy) error {
	switch strategy {
	case MergeOverwrite:
		return doc.Set(target, value)
	case MergeMerge:
		existing, ok := doc.Get(target)
		if !ok {
			return doc.Set(target, value)
		}
		existingArr, existingIsArr := existing.([]interface{})
		newArr, newIsArr := value.([]interface{})
		if !existingIsArr || !newIsArr {
			return nil // non-arrays behave as preserve
		}
		return doc.Set(target, unionPreserveOrder(existingArr, newArr))
	default: // MergePreserve and unknown strategies
		if doc.Has(target) {
			return nil
		}
		return doc.Set(target, value)
	}
}

// unionPreserveOrder returns existing followed by any values in next not
// already present in existing, by deep string comparison.
func unionPreserveOrder(existing, next []interface{}) []interface{} {
	seen := make(map[string]bool, len(existing))
	out := make([]interface{}, 0, len(existing)+len(next))
	for _, v := range existing {
		seen[fmt.Sprintf("%v", v)] = true
		out = append(out, v)
	}
	for _, v := range next {
		key := fmt.Sprintf("%v", v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// collectMarkdownPaths walks root, skipping dot-directories, returning
// vault-relative forward-slash paths of every .md file.
func collectMarkdownPaths(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(name)) != ".md" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// matchPaths returns the subset of paths matching glob (doublestar syntax,
// "**" recursive wildcard supported).
func matchPaths(paths []string, glob string) []string {
	var matched []string
	for _, p := range paths {
		ok, err := doublestar.Match(glob, p)
		if err != nil || !ok {
			continue
		}
		matched = append(matched, p)
	}
	return matched
}
