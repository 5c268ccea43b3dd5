package paramschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
	"type": "object",
	"properties": {
		"amount": {"type": "number"}
	},
	"required": ["amount"]
}`

func TestCompileStringValidatesMatchingParams(t *testing.T) {
	sch, err := CompileString("mem://amount.json", sample)
	require.NoError(t, err)

	assert.NoError(t, sch.Validate(map[string]any{"amount": 3.0}))
}

func TestCompileStringRejectsMismatchedParams(t *testing.T) {
	sch, err := CompileString("mem://amount.json", sample)
	require.NoError(t, err)

	assert.Error(t, sch.Validate(map[string]any{"amount": "not-a-number"}))
	assert.Error(t, sch.Validate(map[string]any{}))
}

func TestCompileStringRejectsInvalidJSON(t *testing.T) {
	_, err := CompileString("mem://bad.json", "{not json")
	assert.Error(t, err)
}
