package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/entityflow/internal/core/errs"
)

func TestValidateFieldName(t *testing.T) {
	assert.NoError(t, ValidateFieldName("first_name"))
	assert.NoError(t, ValidateFieldName("_private"))

	err := ValidateFieldName("1starts_with_digit")
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Validation))

	err = ValidateFieldName("bad-dash")
	require.Error(t, err)

	err = ValidateFieldName("uuid")
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Validation))
}

func TestValidateFieldSet_DuplicateName(t *testing.T) {
	fields := []FieldDefinition{
		{Name: "email", FieldType: FieldString},
		{Name: "email", FieldType: FieldString},
	}
	err := ValidateFieldSet(fields)
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Conflict))
}

func TestValidateFieldSet_UniqueRequiresIndexed(t *testing.T) {
	fields := []FieldDefinition{
		{Name: "email", FieldType: FieldString, Unique: true, Indexed: false},
	}
	err := ValidateFieldSet(fields)
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Validation))
}

func TestValidateFieldSet_InvalidType(t *testing.T) {
	fields := []FieldDefinition{{Name: "x", FieldType: "NotAType"}}
	err := ValidateFieldSet(fields)
	require.Error(t, err)
}

func TestValidateValue_NilAlwaysPasses(t *testing.T) {
	err := ValidateValue(FieldDefinition{Name: "x", FieldType: FieldString}, nil)
	assert.NoError(t, err)
}

func TestValidateValue_StringLengthBounds(t *testing.T) {
	minLen, maxLen := 2, 5
	field := FieldDefinition{Name: "code", FieldType: FieldString, Validation: Validation{MinLength: &minLen, MaxLength: &maxLen}}

	assert.NoError(t, ValidateValue(field, "abc"))

	err := ValidateValue(field, "a")
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Validation))

	err = ValidateValue(field, "toolongvalue")
	require.Error(t, err)
}

func TestValidateValue_StringPattern(t *testing.T) {
	field := FieldDefinition{Name: "sku", FieldType: FieldString, Validation: Validation{Pattern: `^[A-Z]{3}-\d+$`}}
	assert.NoError(t, ValidateValue(field, "ABC-123"))
	assert.Error(t, ValidateValue(field, "abc-123"))
}

func TestValidateValue_NumericBoundsAndPositiveOnly(t *testing.T) {
	min, max := 0.0, 100.0
	field := FieldDefinition{Name: "pct", FieldType: FieldFloat, Validation: Validation{Min: &min, Max: &max}}
	assert.NoError(t, ValidateValue(field, 50.0))
	assert.Error(t, ValidateValue(field, -1.0))
	assert.Error(t, ValidateValue(field, 101.0))

	positive := FieldDefinition{Name: "qty", FieldType: FieldInteger, Validation: Validation{PositiveOnly: true}}
	assert.Error(t, ValidateValue(positive, 0.0))
	assert.NoError(t, ValidateValue(positive, 1.0))

	err := ValidateValue(FieldDefinition{Name: "n", FieldType: FieldInteger}, "not-a-number")
	require.Error(t, err)
}

func TestValidateValue_Boolean(t *testing.T) {
	field := FieldDefinition{Name: "active", FieldType: FieldBoolean}
	assert.NoError(t, ValidateValue(field, true))
	assert.Error(t, ValidateValue(field, "true"))
}

func TestValidateValue_DateTimeBounds(t *testing.T) {
	field := FieldDefinition{Name: "starts_at", FieldType: FieldDateTime, Validation: Validation{MinDate: "2020-01-01T00:00:00Z"}}
	assert.NoError(t, ValidateValue(field, "2021-01-01T00:00:00Z"))

	err := ValidateValue(field, "2019-01-01T00:00:00Z")
	require.Error(t, err)

	err = ValidateValue(field, "not-a-date")
	require.Error(t, err)
}

func TestValidateValue_SelectRestrictsToFixedOptions(t *testing.T) {
	field := FieldDefinition{
		Name:      "status",
		FieldType: FieldSelect,
		Validation: Validation{
			OptionsSource: &OptionsSource{Kind: OptionsFixed, Options: []string{"draft", "published"}},
		},
	}
	assert.NoError(t, ValidateValue(field, "draft"))
	assert.Error(t, ValidateValue(field, "archived"))
}

func TestValidateValue_MultiSelectEachElementChecked(t *testing.T) {
	field := FieldDefinition{
		Name:      "tags",
		FieldType: FieldMultiSelect,
		Validation: Validation{
			OptionsSource: &OptionsSource{Kind: OptionsFixed, Options: []string{"a", "b"}},
		},
	}
	assert.NoError(t, ValidateValue(field, []any{"a", "b"}))
	assert.Error(t, ValidateValue(field, []any{"a", "z"}))
	assert.Error(t, ValidateValue(field, []any{"a", 5}))
}

func TestValidateValue_ObjectAndArrayShape(t *testing.T) {
	obj := FieldDefinition{Name: "meta", FieldType: FieldObject}
	assert.NoError(t, ValidateValue(obj, map[string]any{"a": 1}))
	assert.Error(t, ValidateValue(obj, []any{1, 2}))

	arr := FieldDefinition{Name: "items", FieldType: FieldArray}
	assert.NoError(t, ValidateValue(arr, []any{1, 2}))
	assert.Error(t, ValidateValue(arr, map[string]any{}))
}
