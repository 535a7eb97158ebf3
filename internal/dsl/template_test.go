package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathTemplate_Basic(t *testing.T) {
	record := map[string]any{"region": "EU", "code": "42"}
	out, err := ResolvePathTemplate("/regions/{region}/{code}", record)
	require.NoError(t, err)
	assert.Equal(t, "/regions/EU/42", out)
}

func TestResolvePathTemplate_MissingFieldFails(t *testing.T) {
	_, err := ResolvePathTemplate("/regions/{region}", map[string]any{})
	require.Error(t, err)
}

func TestResolvePathTemplate_NullFieldFails(t *testing.T) {
	_, err := ResolvePathTemplate("/regions/{region}", map[string]any{"region": nil})
	require.Error(t, err)
}

func TestResolvePathTemplate_TransformChain(t *testing.T) {
	record := map[string]any{"name": "  Acme Corp!! "}
	out, err := ResolvePathTemplate("/{name|trim,slug}", record)
	require.NoError(t, err)
	assert.Equal(t, "/acme-corp", out)
}

func TestApplyFieldTransforms_Individual(t *testing.T) {
	assert.Equal(t, "abc", applyFieldTransforms("ABC", []FieldTransform{TransformLowercase}))
	assert.Equal(t, "ABC", applyFieldTransforms("abc", []FieldTransform{TransformUppercase}))
	assert.Equal(t, "abc", applyFieldTransforms("  abc  ", []FieldTransform{TransformTrim}))
	assert.Equal(t, "abc123", applyFieldTransforms("abc-123!", []FieldTransform{TransformNormalize}))
	assert.Equal(t, "a-b-c", applyFieldTransforms("a b_c", []FieldTransform{TransformSlug}))
}

func TestApplyFieldTransforms_HashIsDeterministic(t *testing.T) {
	h1 := applyFieldTransforms("input", []FieldTransform{TransformHash})
	h2 := applyFieldTransforms("input", []FieldTransform{TransformHash})
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, "input", h1)
}
