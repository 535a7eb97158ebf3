package entity

import "time"

// FieldDefinitionDTO is the wire shape an admin boundary would send/receive
// for a single field (supplemented from original_source's
// crates/api/src/admin/entity_definitions/conversions.rs). Keeping a
// dedicated DTO and a pure mapping function to/from the internal
// FieldDefinition ensures the wire shape and storage shape never drift
// silently when either one changes independently.
type FieldDefinitionDTO struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	FieldType    string         `json:"field_type"`
	Required     bool           `json:"required"`
	Indexed      bool           `json:"indexed"`
	Filterable   bool           `json:"filterable"`
	Unique       bool           `json:"unique"`
	DefaultValue any            `json:"default_value,omitempty"`
	Validation   ValidationDTO  `json:"validation"`
	UISettings   map[string]any `json:"ui_settings,omitempty"`
	Position     int            `json:"position"`
	PreviousName string         `json:"previous_name,omitempty"`
}

type ValidationDTO struct {
	MinLength       *int           `json:"min_length,omitempty"`
	MaxLength       *int           `json:"max_length,omitempty"`
	Pattern         string         `json:"pattern,omitempty"`
	Min             *float64       `json:"min,omitempty"`
	Max             *float64       `json:"max,omitempty"`
	PositiveOnly    bool           `json:"positive_only,omitempty"`
	MinDate         string         `json:"min_date,omitempty"`
	MaxDate         string         `json:"max_date,omitempty"`
	TargetClass     string         `json:"target_class,omitempty"`
	OptionsKind     string         `json:"options_kind,omitempty"`
	Options         []string       `json:"options,omitempty"`
	EnumName        string         `json:"enum_name,omitempty"`
	QueryEntityType string         `json:"query_entity_type,omitempty"`
	ValueField      string         `json:"value_field,omitempty"`
	LabelField      string         `json:"label_field,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type EntityDefinitionDTO struct {
	UUID          string               `json:"uuid,omitempty"`
	EntityType    string               `json:"entity_type"`
	DisplayName   string               `json:"display_name"`
	Fields        []FieldDefinitionDTO `json:"fields"`
	AllowChildren bool                 `json:"allow_children"`
	Published     bool                 `json:"published"`
	Version       int                  `json:"version,omitempty"`
	CreatedAt     *time.Time           `json:"created_at,omitempty"`
	CreatedBy     string               `json:"created_by,omitempty"`
	UpdatedAt     *time.Time           `json:"updated_at,omitempty"`
	UpdatedBy     string               `json:"updated_by,omitempty"`
}

// ToDefinition maps a wire DTO to the internal EntityDefinition shape.
func ToDefinition(dto EntityDefinitionDTO) EntityDefinition {
	fields := make([]FieldDefinition, len(dto.Fields))
	for i, f := range dto.Fields {
		fields[i] = FieldDefinition{
			Name:         f.Name,
			DisplayName:  f.DisplayName,
			FieldType:    FieldType(f.FieldType),
			Required:     f.Required,
			Indexed:      f.Indexed,
			Filterable:   f.Filterable,
			Unique:       f.Unique,
			DefaultValue: f.DefaultValue,
			Validation:   toValidation(f.Validation),
			UISettings:   f.UISettings,
			Position:     f.Position,
			PreviousName: f.PreviousName,
		}
	}
	return EntityDefinition{
		UUID:          dto.UUID,
		EntityType:    dto.EntityType,
		DisplayName:   dto.DisplayName,
		Fields:        fields,
		AllowChildren: dto.AllowChildren,
		Published:     dto.Published,
		Version:       dto.Version,
		CreatedBy:     dto.CreatedBy,
		UpdatedBy:     dto.UpdatedBy,
	}
}

// FromDefinition maps the internal EntityDefinition back to its wire DTO.
func FromDefinition(def EntityDefinition) EntityDefinitionDTO {
	fields := make([]FieldDefinitionDTO, len(def.Fields))
	for i, f := range def.Fields {
		fields[i] = FieldDefinitionDTO{
			Name:         f.Name,
			DisplayName:  f.DisplayName,
			FieldType:    string(f.FieldType),
			Required:     f.Required,
			Indexed:      f.Indexed,
			Filterable:   f.Filterable,
			Unique:       f.Unique,
			DefaultValue: f.DefaultValue,
			Validation:   fromValidation(f.Validation),
			UISettings:   f.UISettings,
			Position:     f.Position,
		}
	}

	dto := EntityDefinitionDTO{
		UUID:          def.UUID,
		EntityType:    def.EntityType,
		DisplayName:   def.DisplayName,
		Fields:        fields,
		AllowChildren: def.AllowChildren,
		Published:     def.Published,
		Version:       def.Version,
		CreatedBy:     def.CreatedBy,
		UpdatedBy:     def.UpdatedBy,
	}
	if !def.CreatedAt.IsZero() {
		dto.CreatedAt = &def.CreatedAt
	}
	if !def.UpdatedAt.IsZero() {
		dto.UpdatedAt = &def.UpdatedAt
	}
	return dto
}

func toValidation(v ValidationDTO) Validation {
	out := Validation{
		MinLength: v.MinLength, MaxLength: v.MaxLength, Pattern: v.Pattern,
		Min: v.Min, Max: v.Max, PositiveOnly: v.PositiveOnly,
		MinDate: v.MinDate, MaxDate: v.MaxDate, TargetClass: v.TargetClass,
	}
	if v.OptionsKind != "" {
		out.OptionsSource = &OptionsSource{
			Kind: OptionsSourceKind(v.OptionsKind), Options: v.Options, EnumName: v.EnumName,
			QueryEntityType: v.QueryEntityType, ValueField: v.ValueField,
			LabelField: v.LabelField, Filter: v.Filter,
		}
	}
	return out
}

func fromValidation(v Validation) ValidationDTO {
	out := ValidationDTO{
		MinLength: v.MinLength, MaxLength: v.MaxLength, Pattern: v.Pattern,
		Min: v.Min, Max: v.Max, PositiveOnly: v.PositiveOnly,
		MinDate: v.MinDate, MaxDate: v.MaxDate, TargetClass: v.TargetClass,
	}
	if v.OptionsSource != nil {
		out.OptionsKind = string(v.OptionsSource.Kind)
		out.Options = v.OptionsSource.Options
		out.EnumName = v.OptionsSource.EnumName
		out.QueryEntityType = v.OptionsSource.QueryEntityType
		out.ValueField = v.OptionsSource.ValueField
		out.LabelField = v.OptionsSource.LabelField
		out.Filter = v.OptionsSource.Filter
	}
	return out
}
