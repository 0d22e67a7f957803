package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONObject_PlainJSON(t *testing.T) {
	out, err := parseJSONObject(`{"title_selector": "h1", "confidence": 0.9}`)
	require.NoError(t, err)
	assert.Equal(t, "h1", out["title_selector"])
	assert.Equal(t, 0.9, out["confidence"])
}

func TestParseJSONObject_MarkdownFenced(t *testing.T) {
	out, err := parseJSONObject("```json\n{\"is_valid\": true}\n```")
	require.NoError(t, err)
	assert.Equal(t, true, out["is_valid"])
}

func TestParseJSONObject_BareFence(t *testing.T) {
	out, err := parseJSONObject("```\n{\"is_valid\": false}\n```")
	require.NoError(t, err)
	assert.Equal(t, false, out["is_valid"])
}

func TestParseJSONObject_LeadingTrailingProseIsStripped(t *testing.T) {
	out, err := parseJSONObject(`Sure, here is the answer: {"confidence": 0.5} Hope that helps!`)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out["confidence"])
}

func TestParseJSONObject_NoObjectFoundErrors(t *testing.T) {
	_, err := parseJSONObject("no json here at all")
	assert.Error(t, err)
}

func TestParseJSONObject_MalformedJSONErrors(t *testing.T) {
	_, err := parseJSONObject(`{"title_selector": }`)
	assert.Error(t, err)
}

func TestErrSchemaViolation_IsStableSentinel(t *testing.T) {
	assert.EqualError(t, ErrSchemaViolation, "llm response did not conform to the requested schema")
}
