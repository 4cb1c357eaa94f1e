package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query    string   `json:"query" description:"full-text search query"`
	Limit    int      `json:"limit,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Cursor   *string  `json:"cursor,omitempty"`
	internal string   // unexported fields are skipped
	Ignored  string   `json:"-"`
}

func TestCreateSchemaFromStruct(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "query")
	require.Contains(t, props, "limit")
	require.Contains(t, props, "tags")
	assert.NotContains(t, props, "internal")
	assert.NotContains(t, props, "Ignored")

	query, ok := props["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "full-text search query", query["description"])

	limit, ok := props["limit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", limit["type"])

	tags, ok := props["tags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", tags["type"])

	// Only fields without omitempty and non-pointer types are required.
	assert.Equal(t, []string{"query"}, schema["required"])
}

func TestCreateSchemaNonStructFallsBack(t *testing.T) {
	schema := CreateSchema("not a struct")

	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
	assert.NotContains(t, schema, "required")
}

func TestValidateArgumentsAgainstDerivedSchema(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	require.NoError(t, ValidateArguments(map[string]any{
		"query": "golang",
		"limit": float64(10), // decoded JSON numbers arrive as float64
	}, schema))

	err := ValidateArguments(map[string]any{"limit": float64(10)}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "query", verr.Field)

	err = ValidateArguments(map[string]any{"query": 42}, schema)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "query", verr.Field)
}

func TestValidateArgumentsEnum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode": map[string]any{"type": "string", "enum": []any{"fast", "thorough"}},
		},
	}

	require.NoError(t, ValidateArguments(map[string]any{"mode": "fast"}, schema))

	err := ValidateArguments(map[string]any{"mode": "sloppy"}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "mode", verr.Field)
}

func TestValidateArgumentsAllowsExtraFields(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	assert.NoError(t, ValidateArguments(map[string]any{
		"query":      "golang",
		"undeclared": true,
	}, schema))
}
