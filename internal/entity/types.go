// Package entity implements runtime-declared entity types: field
// catalogues, constraint validation, and the backing storage/view kept in
// sync with each published definition.
package entity

import "time"

// FieldType is the closed set of field shapes a FieldDefinition may declare.
type FieldType string

const (
	FieldString      FieldType = "String"
	FieldText        FieldType = "Text"
	FieldWysiwyg     FieldType = "Wysiwyg"
	FieldInteger     FieldType = "Integer"
	FieldFloat       FieldType = "Float"
	FieldBoolean     FieldType = "Boolean"
	FieldDateTime    FieldType = "DateTime"
	FieldDate        FieldType = "Date"
	FieldObject      FieldType = "Object"
	FieldArray       FieldType = "Array"
	FieldUUID        FieldType = "Uuid"
	FieldJSON        FieldType = "Json"
	FieldManyToOne   FieldType = "ManyToOne"
	FieldManyToMany  FieldType = "ManyToMany"
	FieldSelect      FieldType = "Select"
	FieldMultiSelect FieldType = "MultiSelect"
	FieldImage       FieldType = "Image"
	FieldFile        FieldType = "File"
	FieldPassword    FieldType = "Password"
)

// ValidFieldTypes is used to reject malformed field sets at create time.
var ValidFieldTypes = map[FieldType]bool{
	FieldString: true, FieldText: true, FieldWysiwyg: true, FieldInteger: true,
	FieldFloat: true, FieldBoolean: true, FieldDateTime: true, FieldDate: true,
	FieldObject: true, FieldArray: true, FieldUUID: true, FieldJSON: true,
	FieldManyToOne: true, FieldManyToMany: true, FieldSelect: true,
	FieldMultiSelect: true, FieldImage: true, FieldFile: true, FieldPassword: true,
}

// OptionsSourceKind tags how a Select/MultiSelect field's legal options are
// resolved.
type OptionsSourceKind string

const (
	OptionsFixed OptionsSourceKind = "Fixed"
	OptionsEnum  OptionsSourceKind = "Enum"
	OptionsQuery OptionsSourceKind = "Query"
)

// OptionsSource describes where a Select/MultiSelect field's legal values
// come from.
type OptionsSource struct {
	Kind OptionsSourceKind

	// Fixed
	Options []string

	// Enum
	EnumName string

	// Query
	QueryEntityType string
	ValueField      string
	LabelField      string
	Filter          map[string]any
}

// Validation carries the type-appropriate constraints a field may declare.
type Validation struct {
	// strings
	MinLength *int
	MaxLength *int
	Pattern   string

	// numerics
	Min          *float64
	Max          *float64
	PositiveOnly bool

	// temporal; "now" resolves to current time at check time
	MinDate string
	MaxDate string

	// relations
	TargetClass string

	// selects
	OptionsSource *OptionsSource
}

// FieldDefinition is one column in an EntityDefinition's field catalogue.
type FieldDefinition struct {
	Name         string
	DisplayName  string
	FieldType    FieldType
	Required     bool
	Indexed      bool
	Filterable   bool
	Unique       bool
	DefaultValue any
	Validation   Validation
	UISettings   map[string]any

	// Position is a stable, monotonically-assigned index used to
	// disambiguate rename-vs-drop-and-add across updates (see diff.go).
	Position int

	// PreviousName, when set on an update payload, explicitly names the
	// field this one was renamed from. Wins over position-based detection
	// when present (open question (b), see DESIGN.md).
	PreviousName string
}

// EntityDefinition is a published, versioned schema for a dynamic entity
// type.
type EntityDefinition struct {
	UUID          string
	EntityType    string
	DisplayName   string
	Fields        []FieldDefinition
	AllowChildren bool
	Published     bool
	Version       int
	CreatedAt     time.Time
	CreatedBy     string
	UpdatedAt     time.Time
	UpdatedBy     string

	// VersioningDisabled suppresses the per-write snapshot C4 would
	// otherwise append.
	VersioningDisabled bool
}

// ReservedFields are system field names every entity carries; they may
// appear in persistence input with special handling.
var ReservedFields = map[string]bool{
	"uuid": true, "path": true, "parent_uuid": true, "entity_key": true,
	"created_at": true, "updated_at": true, "created_by": true,
	"updated_by": true, "published": true, "version": true,
}

// ProtectedFields are reserved fields silently dropped from persistence
// input before write; the system sets them on create.
var ProtectedFields = map[string]bool{
	"created_at": true, "created_by": true,
}

// DynamicEntity is a record of a published EntityDefinition.
type DynamicEntity struct {
	UUID       string
	EntityType string
	FieldData  map[string]any
	Definition *EntityDefinition

	Path       string
	ParentUUID string
	EntityKey  string
	CreatedAt  time.Time
	CreatedBy  string
	UpdatedAt  time.Time
	UpdatedBy  string
	Published  bool
	Version    int
}

// FullPath is path + '/' + entity_key.
func (e DynamicEntity) FullPath() string {
	if e.Path == "" || e.Path == "/" {
		return "/" + e.EntityKey
	}
	return e.Path + "/" + e.EntityKey
}

// EntitiesRegistry is the flat, cross-type index for hierarchical browsing.
type EntitiesRegistry struct {
	UUID       string
	EntityType string
	Path       string
	EntityKey  string
	ParentUUID string
}
