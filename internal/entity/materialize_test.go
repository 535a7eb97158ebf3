package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSqlTypeForField(t *testing.T) {
	shortLen := 64
	cases := []struct {
		name  string
		field FieldDefinition
		want  string
	}{
		{"string with short max length", FieldDefinition{FieldType: FieldString, Validation: Validation{MaxLength: &shortLen}}, "varchar(64)"},
		{"string without max length", FieldDefinition{FieldType: FieldString}, "text"},
		{"text", FieldDefinition{FieldType: FieldText}, "text"},
		{"integer", FieldDefinition{FieldType: FieldInteger}, "bigint"},
		{"float", FieldDefinition{FieldType: FieldFloat}, "double precision"},
		{"boolean", FieldDefinition{FieldType: FieldBoolean}, "boolean"},
		{"datetime", FieldDefinition{FieldType: FieldDateTime}, "timestamptz"},
		{"date", FieldDefinition{FieldType: FieldDate}, "date"},
		{"uuid", FieldDefinition{FieldType: FieldUUID}, "uuid"},
		{"many to one", FieldDefinition{FieldType: FieldManyToOne}, "uuid"},
		{"many to many", FieldDefinition{FieldType: FieldManyToMany}, "uuid[]"},
		{"multi select", FieldDefinition{FieldType: FieldMultiSelect}, "text[]"},
		{"object", FieldDefinition{FieldType: FieldObject}, "jsonb"},
		{"array", FieldDefinition{FieldType: FieldArray}, "jsonb"},
		{"json", FieldDefinition{FieldType: FieldJSON}, "jsonb"},
		{"password", FieldDefinition{FieldType: FieldPassword}, "text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sqlTypeForField(tc.field))
		})
	}
}

func TestSqlTypeForField_SelectWithEnumSource(t *testing.T) {
	field := FieldDefinition{
		Name:      "status",
		FieldType: FieldSelect,
		Validation: Validation{
			OptionsSource: &OptionsSource{Kind: OptionsEnum, Options: []string{"a", "b"}},
		},
	}
	assert.Equal(t, "status_enum", sqlTypeForField(field))
}

func TestSqlTypeForField_SelectWithFixedSource(t *testing.T) {
	field := FieldDefinition{
		FieldType: FieldSelect,
		Validation: Validation{
			OptionsSource: &OptionsSource{Kind: OptionsFixed, Options: []string{"a", "b"}},
		},
	}
	assert.Equal(t, "text", sqlTypeForField(field))
}

func TestTableAndViewNames(t *testing.T) {
	assert.Equal(t, "entity_product", TableName("product"))
	assert.Equal(t, "entity_product_view", ViewName("product"))
}

func TestPlan_IncludesSystemColumnsAndDeclaredFields(t *testing.T) {
	def := EntityDefinition{
		EntityType: "product",
		Fields: []FieldDefinition{
			{Name: "sku", FieldType: FieldString, Required: true},
			{Name: "price", FieldType: FieldFloat},
		},
	}
	plan := Plan(def)

	assert.Equal(t, "entity_product", plan.TableName)
	assert.Equal(t, "entity_product_view", plan.ViewName)
	assert.Len(t, plan.Columns, len(systemColumns)+2)

	byName := map[string]SQLColumn{}
	for _, c := range plan.Columns {
		byName[c.Name] = c
	}

	sku, ok := byName["sku"]
	assert.True(t, ok)
	assert.Equal(t, "text", sku.SQLType)
	assert.False(t, sku.Nullable)

	price, ok := byName["price"]
	assert.True(t, ok)
	assert.Equal(t, "double precision", price.SQLType)
	assert.True(t, price.Nullable)

	uuidCol, ok := byName["uuid"]
	assert.True(t, ok)
	assert.Equal(t, "uuid", uuidCol.SQLType)
}

func TestEnumTypeName(t *testing.T) {
	assert.Equal(t, "status_enum", enumTypeName("status"))
}
