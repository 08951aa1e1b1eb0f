package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubConnectorFetchAndExtract(t *testing.T) {
	c := NewStubConnector("bgg", map[string]map[string]interface{}{
		"174430": {"name": "Gloomhaven", "rating": 8.57, "year": int64(2017)},
	})

	resp, err := c.FetchByID(context.Background(), "174430")
	require.NoError(t, err)

	fields, err := c.ExtractFields(resp, FieldMapping{"title": "name", "bgg_rating": "rating"})
	require.NoError(t, err)
	assert.Equal(t, "Gloomhaven", fields["title"])
	assert.Equal(t, 8.57, fields["bgg_rating"])
}

func TestStubConnectorFetchUnknownID(t *testing.T) {
	c := NewStubConnector("bgg", map[string]map[string]interface{}{})
	_, err := c.FetchByID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStubConnectorExtractMissingFieldOmitted(t *testing.T) {
	c := NewStubConnector("bgg", map[string]map[string]interface{}{
		"1": {"name": "Foo"},
	})
	resp, err := c.FetchByID(context.Background(), "1")
	require.NoError(t, err)

	fields, err := c.ExtractFields(resp, FieldMapping{"title": "name", "missing_dest": "absent_field"})
	require.NoError(t, err)
	assert.Equal(t, "Foo", fields["title"])
	_, ok := fields["missing_dest"]
	assert.False(t, ok)
}

func TestStubConnectorFetchReturnsIndependentCopy(t *testing.T) {
	c := NewStubConnector("bgg", map[string]map[string]interface{}{
		"1": {"name": "Foo"},
	})
	resp1, err := c.FetchByID(context.Background(), "1")
	require.NoError(t, err)
	resp1.(map[string]interface{})["name"] = "Mutated"

	resp2, err := c.FetchByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Foo", resp2.(map[string]interface{})["name"])
}
