package connector

import (
	"context"
	"fmt"
)

// StubConnector is an in-memory reference connector: FetchByID looks up a
// fixed record table instead of calling out over HTTP. It exists so
// `memory-loop sync` is runnable standalone and so pipeline tests do not
// need network access.
type StubConnector struct {
	name    string
	records map[string]map[string]interface{}
}

// NewStubConnector builds a StubConnector serving records out of a fixed
// in-memory table, keyed by id.
func NewStubConnector(name string, records map[string]map[string]interface{}) *StubConnector {
	return &StubConnector{name: name, records: records}
}

// Name implements Connector.
func (s *StubConnector) Name() string { return s.name }

// FetchByID implements Connector, returning a copy of the stored record.
func (s *StubConnector) FetchByID(ctx context.Context, id string) (Response, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: no record for id %q", s.name, id)
	}
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

// ExtractFields implements Connector. mappings maps a destination
// frontmatter key to a source field name within the record.
func (s *StubConnector) ExtractFields(response Response, mappings FieldMapping) (map[string]interface{}, error) {
	rec, ok := response.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: unexpected response type %T", s.name, response)
	}
	out := make(map[string]interface{}, len(mappings))
	for dest, srcField := range mappings {
		if v, ok := rec[srcField]; ok {
			out[dest] = v
		}
	}
	return out, nil
}
