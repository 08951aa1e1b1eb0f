// Package secret loads per-vault secret material into an opaque wrapper
// that refuses ordinary stringification and serialization, so a value
// obtained through Get cannot leak through logging or JSON-encoded state.
package secret

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// protectedPlaceholder is what Store.String shows in place of any loaded
// value.
const protectedPlaceholder = "[ProtectedSecrets]"

// Store holds key-value secret material. The zero value is an empty
// store. Store deliberately exposes no way to range over or marshal its
// values; only Get, Has, and Keys touch the underlying map.
type Store struct {
	values map[string]string
}

// New constructs an empty Store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Load reads every *.yaml and *.yml file directly under dir (non-recursive)
// as a flat string-keyed mapping and merges them into one Store. Files are
// processed in directory order; a later file's key overwrites an earlier
// one. A missing directory yields an empty store, not an error.
func Load(dir string) (*Store, error) {
	store := New()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets dir: %w", err)
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
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read secret file %s: %w", name, err)
		}
		var m map[string]string
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse secret file %s: %w", name, err)
		}
		for k, v := range m {
			store.values[k] = v
		}
	}
	return store, nil
}

// Get returns the secret value for key and whether it was present.
// Callers must never pass the returned value to a logger or error string.
func (s *Store) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present without exposing its value.
func (s *Store) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.values[key]
	return ok
}

// Keys returns the loaded key names in sorted order. Values are never
// included.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String implements fmt.Stringer so %v/%s formatting of a Store (for
// example in a log line or panic message) never leaks values.
func (s *Store) String() string {
	return protectedPlaceholder
}

// MarshalJSON implements json.Marshaler, emitting only the key names.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Keys []string `json:"keys"`
	}{Keys: s.Keys()})
}
