package syncengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPipelineYAML = `
name: boardgames
connector: bgg
match:
  pattern: "games/**/*.md"
  field: bgg_id
fields:
  - source: name
    target: title
  - source: rating
    target: bgg.rating
    strategy: overwrite
defaults:
  merge_strategy: preserve
`

func TestLoadPipelinesSkipsInvalidKeepsValid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "valid.yaml"), []byte(validPipelineYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invalid.yaml"), []byte("connector: bgg\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-yaml.txt"), []byte("ignored"), 0644))

	result, err := LoadPipelines(dir)
	require.NoError(t, err)

	require.Len(t, result.Pipelines, 1)
	assert.Equal(t, "boardgames", result.Pipelines[0].Name)
	assert.Len(t, result.Invalid, 1)
}

func TestLoadPipelinesMissingDirReturnsEmpty(t *testing.T) {
	result, err := LoadPipelines(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, result.Pipelines)
	assert.Empty(t, result.Invalid)
}

func TestPipelineTargetKeyAppliesNamespace(t *testing.T) {
	p := &Pipeline{Defaults: Defaults{Namespace: "bgg"}}
	assert.Equal(t, "bgg.rating", p.targetKey(FieldMapping{Target: "rating"}))

	p2 := &Pipeline{}
	assert.Equal(t, "rating", p2.targetKey(FieldMapping{Target: "rating"}))
}

func TestPipelineEffectiveMergeFallsBackToDefaultThenPreserve(t *testing.T) {
	p := &Pipeline{Defaults: Defaults{MergeStrategy: MergeOverwrite}}
	assert.Equal(t, MergeOverwrite, p.effectiveMerge(FieldMapping{}))
	assert.Equal(t, MergeMerge, p.effectiveMerge(FieldMapping{Strategy: MergeMerge}))

	p2 := &Pipeline{}
	assert.Equal(t, MergePreserve, p2.effectiveMerge(FieldMapping{}))
}
