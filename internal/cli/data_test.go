package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/bizstore/internal/config"
	"github.com/kilupskalvis/bizstore/internal/models"
)

func TestBuildQuery(t *testing.T) {
	q, err := buildQuery([]string{"business_id=b1", "qty=3", "note=null"}, "created_at", true, 10, 2)
	require.NoError(t, err)

	assert.Equal(t, "b1", q.Filters["business_id"])
	assert.Equal(t, float64(3), q.Filters["qty"])
	v, ok := q.Filters["note"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, &models.Order{Column: "created_at", Descending: true}, q.Order)
	assert.Equal(t, 20, q.Offset())
}

func TestBuildQuery_Invalid(t *testing.T) {
	_, err := buildQuery([]string{"no-equals"}, "", false, 0, 0)
	assert.Error(t, err)

	_, err = buildQuery(nil, "", false, -1, 0)
	assert.Error(t, err)
}

func TestParseRecords(t *testing.T) {
	recs, err := parseRecords(`{"name":"Alice"}`)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Alice", recs[0]["name"])

	recs, err = parseRecords(` [{"id":"a"},{"id":"b"}]`)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].ID())

	_, err = parseRecords(`{"name":`)
	assert.Error(t, err)
}

func TestNewLogger_FlagsOverrideConfig(t *testing.T) {
	t.Cleanup(func() { logLevel, logFormat = "", "" })

	cfg := config.Default()
	cfg.Log.Level = "error"

	var buf bytes.Buffer
	newLogger(cfg, &buf).Warn("hidden")
	assert.Empty(t, buf.String())

	logLevel, logFormat = "debug", "json"
	newLogger(cfg, &buf).Debug("shown", "table", "products")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"table":"products"`)
}
