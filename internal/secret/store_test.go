package secret

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingDirReturnsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, s.Keys())
}

func TestLoadMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("bgg_api_key: abc\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("other_key: xyz\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not_a_secret: 1\n"), 0644))

	s, err := Load(dir)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"bgg_api_key", "other_key"}, s.Keys())

	v, ok := s.Get("bgg_api_key")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok = s.Get("not_a_secret")
	assert.False(t, ok)
}

func TestStoreStringNeverLeaksValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte("token: super-secret-value\n"), 0644))

	s, err := Load(dir)
	require.NoError(t, err)

	str := s.String()
	assert.NotContains(t, str, "super-secret-value")
	assert.Equal(t, "[ProtectedSecrets]", str)
}

func TestStoreMarshalJSONKeysOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte("token: super-secret-value\n"), 0644))

	s, err := Load(dir)
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-value")
	assert.JSONEq(t, `{"keys":["token"]}`, string(data))
}

func TestHasDoesNotExposeValue(t *testing.T) {
	s := New()
	assert.False(t, s.Has("missing"))
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	assert.False(t, s.Has("x"))
	assert.Empty(t, s.Keys())
	_, ok := s.Get("x")
	assert.False(t, ok)
}
