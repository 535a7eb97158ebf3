package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/entity"
)

func productDef() entity.EntityDefinition {
	return entity.EntityDefinition{
		EntityType: "product",
		Fields: []entity.FieldDefinition{
			{Name: "sku", FieldType: entity.FieldString, Required: true},
			{Name: "active", FieldType: entity.FieldBoolean},
			{Name: "stock", FieldType: entity.FieldInteger},
			{Name: "price", FieldType: entity.FieldFloat},
			{Name: "secret", FieldType: entity.FieldPassword},
		},
	}
}

func TestNormalizeFields_RejectsUnknownField(t *testing.T) {
	_, err := normalizeFields(productDef(), map[string]any{"sku": "A1", "not_a_field": 1}, true)
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Validation))
}

func TestNormalizeFields_RequiredFieldMissingOnCreate(t *testing.T) {
	_, err := normalizeFields(productDef(), map[string]any{}, true)
	require.Error(t, err)
}

func TestNormalizeFields_RequiredNotEnforcedOnUpdate(t *testing.T) {
	out, err := normalizeFields(productDef(), map[string]any{"stock": 5.0}, false)
	require.NoError(t, err)
	assert.Equal(t, 5.0, out["stock"])
}

func TestNormalizeFields_StringCoercion(t *testing.T) {
	out, err := normalizeFields(productDef(), map[string]any{
		"sku": "A1", "active": "true", "stock": "42", "price": "3.5",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, true, out["active"])
	assert.Equal(t, int64(42), out["stock"])
	assert.Equal(t, 3.5, out["price"])
}

func TestNormalizeFields_StringCoercionFailureIsHardError(t *testing.T) {
	_, err := normalizeFields(productDef(), map[string]any{"sku": "A1", "stock": "not-a-number"}, true)
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Conversion))
}

func TestNormalizeFields_PasswordHashedExceptWhenEmpty(t *testing.T) {
	out, err := normalizeFields(productDef(), map[string]any{"sku": "A1", "secret": "hunter2"}, true)
	require.NoError(t, err)
	hashed := out["secret"].(string)
	assert.NotEqual(t, "hunter2", hashed)
	assert.Contains(t, hashed, "$argon2id$")

	out, err = normalizeFields(productDef(), map[string]any{"sku": "A1", "secret": ""}, true)
	require.NoError(t, err)
	assert.Equal(t, "", out["secret"])
}

func TestNormalizeFields_ReservedFieldsSkipped(t *testing.T) {
	out, err := normalizeFields(productDef(), map[string]any{"sku": "A1", "uuid": "ignored"}, true)
	require.NoError(t, err)
	_, present := out["uuid"]
	assert.False(t, present)
}
