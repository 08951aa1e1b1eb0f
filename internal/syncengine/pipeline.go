package syncengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/memory-loop/daemon/internal/vocabulary"
)

// MergeStrategy controls how a fetched field value is combined with an
// existing frontmatter value.
type MergeStrategy string

const (
	MergeOverwrite MergeStrategy = "overwrite"
	MergePreserve  MergeStrategy = "preserve"
	MergeMerge     MergeStrategy = "merge"
)

// FieldMapping describes one frontmatter field a pipeline populates from
// a connector response.
type FieldMapping struct {
	Source    string        `yaml:"source"`
	Target    string        `yaml:"target"`
	Normalize bool          `yaml:"normalize,omitempty"`
	Strategy  MergeStrategy `yaml:"strategy,omitempty"`
}

// Match configures how pipeline files are discovered and how each file's
// external id is read.
type Match struct {
	Pattern string `yaml:"pattern"`
	Field   string `yaml:"field"`
}

// Defaults holds pipeline-wide defaults applied unless a field overrides
// them.
type Defaults struct {
	Namespace     string        `yaml:"namespace,omitempty"`
	MergeStrategy MergeStrategy `yaml:"merge_strategy,omitempty"`
}

// Pipeline is one validated sync pipeline configuration.
type Pipeline struct {
	Name      string               `yaml:"name"`
	Connector string               `yaml:"connector"`
	Match     Match                `yaml:"match"`
	Fields    []FieldMapping       `yaml:"fields"`
	Defaults  Defaults             `yaml:"defaults"`
	Vocabulary vocabulary.Vocabulary `yaml:"-"`

	// SourcePath is the file the pipeline was loaded from, used in error
	// reporting.
	SourcePath string `yaml:"-"`
}

type rawPipeline struct {
	Name       string                      `yaml:"name"`
	Connector  string                      `yaml:"connector"`
	Match      Match                       `yaml:"match"`
	Fields     []FieldMapping              `yaml:"fields"`
	Defaults   Defaults                    `yaml:"defaults"`
	Vocabulary map[string][]string `yaml:"vocabulary"`
}

// effectiveMerge resolves a field's merge strategy, falling back to the
// pipeline default and finally to preserve.
func (p *Pipeline) effectiveMerge(f FieldMapping) MergeStrategy {
	if f.Strategy != "" {
		return f.Strategy
	}
	if p.Defaults.MergeStrategy != "" {
		return p.Defaults.MergeStrategy
	}
	return MergePreserve
}

// targetKey resolves a field's frontmatter destination, applying the
// namespace prefix when configured.
func (p *Pipeline) targetKey(f FieldMapping) string {
	if p.Defaults.Namespace == "" {
		return f.Target
	}
	return p.Defaults.Namespace + "." + f.Target
}

// validate checks required pipeline fields are present.
func (p *Pipeline) validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline: missing name")
	}
	if p.Connector == "" {
		return fmt.Errorf("pipeline %s: missing connector", p.Name)
	}
	if p.Match.Pattern == "" {
		return fmt.Errorf("pipeline %s: missing match.pattern", p.Name)
	}
	if p.Match.Field == "" {
		return fmt.Errorf("pipeline %s: missing match.field", p.Name)
	}
	for _, f := range p.Fields {
		if f.Source == "" || f.Target == "" {
			return fmt.Errorf("pipeline %s: field mapping requires source and target", p.Name)
		}
		if f.Normalize && len(p.Vocabulary.Terms) == 0 {
			return fmt.Errorf("pipeline %s: field %s sets normalize but pipeline has no vocabulary", p.Name, f.Source)
		}
	}
	return nil
}

// LoadResult is the outcome of loading every pipeline config in a
// directory.
type LoadResult struct {
	Pipelines []*Pipeline
	// Invalid maps a source file path to the error encountered loading it.
	Invalid map[string]error
}

// LoadPipelines reads every *.yaml/*.yml file directly under dir. Invalid
// files are reported (via LoadResult.Invalid) and skipped; other valid
// configs still load, matching spec.md §4.7.
func LoadPipelines(dir string) (*LoadResult, error) {
	result := &LoadResult{Invalid: make(map[string]error)}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pipeline dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := loadOnePipeline(path)
		if err != nil {
			result.Invalid[path] = err
			continue
		}
		result.Pipelines = append(result.Pipelines, p)
	}
	return result, nil
}

func loadOnePipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw rawPipeline
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	p := &Pipeline{
		Name:       raw.Name,
		Connector:  raw.Connector,
		Match:      raw.Match,
		Fields:     raw.Fields,
		Defaults:   raw.Defaults,
		SourcePath: path,
	}
	if len(raw.Vocabulary) > 0 {
		// Sort canonical keys for deterministic iteration order; YAML maps
		// have no defined order once unmarshaled into a Go map.
		canonicals := make([]string, 0, len(raw.Vocabulary))
		for canonical := range raw.Vocabulary {
			canonicals = append(canonicals, canonical)
		}
		sort.Strings(canonicals)

		terms := make([]vocabulary.Term, len(canonicals))
		for i, canonical := range canonicals {
			terms[i] = vocabulary.Term{Canonical: canonical, Variations: raw.Vocabulary[canonical]}
		}
		p.Vocabulary = vocabulary.Vocabulary{Terms: terms}
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}
