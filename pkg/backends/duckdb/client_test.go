package duckdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

func TestClientExecuteInMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping duckdb test in short mode")
	}
	ctx := context.Background()
	c := New(nil)
	require.NoError(t, c.Connect(ctx, core.BackendConfig{Type: "duckdb"}))
	defer func() { _ = c.Close() }()

	resp, err := c.Execute(ctx, core.Query{
		RefID: "A",
		Text:  "SELECT TIMESTAMP '2024-01-01 00:00:00' AS time, 42::INTEGER AS value, 'a' AS host",
	})
	require.NoError(t, err)
	require.Len(t, resp.Fields, 3)

	assert.Equal(t, core.FieldTypeTime, resp.Fields[0].Type)
	assert.Equal(t, core.FieldTypeNumber, resp.Fields[1].Type)
	assert.Equal(t, core.FieldTypeString, resp.Fields[2].Type)
	assert.Equal(t, []any{42.0}, resp.Fields[1].Values)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), resp.Fields[0].Values[0])
	require.NoError(t, c.Ping(ctx))
}
