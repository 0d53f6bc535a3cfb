package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userSchema = `{
	"title": "CreateUser",
	"type": "object",
	"properties": {
		"name": {"type": "string", "title": "Name"},
		"age": {"anyOf": [{"type": "integer"}, {"type": "null"}], "title": "Age", "default": null},
		"role": {"$ref": "#/$defs/Role"},
		"active": {"type": "boolean", "default": true}
	},
	"required": ["name", "role"],
	"$defs": {"Role": {"enum": ["admin", "viewer"], "type": "string", "title": "Role"}}
}`

func TestJSONSchemaKeepsPropertyOrder(t *testing.T) {
	var s JSONSchema
	require.NoError(t, json.Unmarshal([]byte(userSchema), &s))

	var names []string
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"name", "age", "role", "active"}, names)
	assert.True(t, s.IsRequired("role"))
	assert.False(t, s.IsRequired("age"))
}

func TestJSONSchemaResolve(t *testing.T) {
	var s JSONSchema
	require.NoError(t, json.Unmarshal([]byte(userSchema), &s))

	age := s.Properties[1].Schema.Resolve(&s)
	assert.Equal(t, "integer", age.Type)
	assert.True(t, age.Nullable)
	assert.Equal(t, "Age", age.Title)

	role := s.Properties[2].Schema.Resolve(&s)
	assert.Equal(t, "string", role.Type)
	assert.Equal(t, []any{"admin", "viewer"}, role.Enum)
}

func TestJSONSchemaTypeList(t *testing.T) {
	var s JSONSchema
	require.NoError(t, json.Unmarshal([]byte(`{"type":["string","null"]}`), &s))
	assert.Equal(t, "string", s.Type)
	assert.True(t, s.Nullable)
}

func TestJSONSchemaMarshalPreservesOrder(t *testing.T) {
	var s JSONSchema
	require.NoError(t, json.Unmarshal([]byte(`{"type":"object","properties":{"b":{"type":"string"},"a":{"type":"integer"}}}`), &s))
	data, err := json.Marshal(&s)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object","properties":{"b":{"type":"string"},"a":{"type":"integer"}}}`, string(data))
}
