package entity

import (
	"fmt"
	"regexp"
	"time"

	"github.com/user/entityflow/internal/core/errs"
)

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateFieldName enforces that field names match
// ^[A-Za-z_][A-Za-z0-9_]*$ and may not redeclare a reserved name.
func ValidateFieldName(name string) error {
	if !fieldNameRe.MatchString(name) {
		return errs.Field(errs.Validation, name, "field name must match ^[A-Za-z_][A-Za-z0-9_]*$")
	}
	if ReservedFields[name] {
		return errs.Field(errs.Validation, name, "field name is reserved and cannot be redeclared")
	}
	return nil
}

// ValidateFieldSet checks the invariants that apply across a whole field
// list: unique names, valid types, unique implies indexed.
func ValidateFieldSet(fields []FieldDefinition) error {
	seen := map[string]bool{}
	for _, f := range fields {
		if err := ValidateFieldName(f.Name); err != nil {
			return err
		}
		if seen[f.Name] {
			return errs.Field(errs.Conflict, f.Name, "duplicate field name within definition")
		}
		seen[f.Name] = true

		if !ValidFieldTypes[f.FieldType] {
			return errs.Field(errs.Validation, f.Name, fmt.Sprintf("invalid field type: %s", f.FieldType))
		}
		if f.Unique && !f.Indexed {
			return errs.Field(errs.Validation, f.Name, "unique=true implies indexed=true")
		}
	}
	return nil
}

// ValidateValue checks a decoded JSON value against a FieldDefinition's
// type and constraints.
func ValidateValue(field FieldDefinition, value any) error {
	if value == nil {
		return nil // presence/required is enforced by the persistence pipeline, not here
	}

	switch field.FieldType {
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return errs.Field(errs.Validation, field.Name, fmt.Sprintf("must be a boolean, got %T", value))
		}

	case FieldObject:
		if _, ok := value.(map[string]any); !ok {
			return errs.Field(errs.Validation, field.Name, "must be an object")
		}

	case FieldArray:
		if _, ok := value.([]any); !ok {
			return errs.Field(errs.Validation, field.Name, "must be an array")
		}

	case FieldJSON:
		// any JSON value is legal

	case FieldString, FieldText, FieldWysiwyg:
		s, ok := value.(string)
		if !ok {
			return errs.Field(errs.Validation, field.Name, "must be a string")
		}
		if v := field.Validation; v.MinLength != nil && len(s) < *v.MinLength {
			return errs.Field(errs.Validation, field.Name, fmt.Sprintf("must be at least %d characters", *v.MinLength))
		}
		if v := field.Validation; v.MaxLength != nil && len(s) > *v.MaxLength {
			return errs.Field(errs.Validation, field.Name, fmt.Sprintf("must be at most %d characters", *v.MaxLength))
		}
		if p := field.Validation.Pattern; p != "" {
			re, err := regexp.Compile(p)
			if err != nil {
				return errs.Field(errs.Config, field.Name, "invalid validation pattern")
			}
			if !re.MatchString(s) {
				return errs.Field(errs.Validation, field.Name, "does not match required pattern")
			}
		}

	case FieldInteger, FieldFloat:
		f, ok := asFloat(value)
		if !ok {
			return errs.Field(errs.Validation, field.Name, fmt.Sprintf("must be a number, got %T", value))
		}
		v := field.Validation
		if v.Min != nil && f < *v.Min {
			return errs.Field(errs.Validation, field.Name, fmt.Sprintf("must be >= %v", *v.Min))
		}
		if v.Max != nil && f > *v.Max {
			return errs.Field(errs.Validation, field.Name, fmt.Sprintf("must be <= %v", *v.Max))
		}
		if v.PositiveOnly && f <= 0 {
			return errs.Field(errs.Validation, field.Name, "must be positive")
		}

	case FieldDate, FieldDateTime:
		s, ok := value.(string)
		if !ok {
			return errs.Field(errs.Validation, field.Name, "must be an RFC 3339 string")
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return errs.Field(errs.Validation, field.Name, "malformed date: "+err.Error())
		}
		v := field.Validation
		if v.MinDate != "" {
			min, err := resolveBound(v.MinDate)
			if err == nil && t.Before(min) {
				return errs.Field(errs.Validation, field.Name, "before minimum allowed date")
			}
		}
		if v.MaxDate != "" {
			max, err := resolveBound(v.MaxDate)
			if err == nil && t.After(max) {
				return errs.Field(errs.Validation, field.Name, "after maximum allowed date")
			}
		}

	case FieldSelect:
		s, ok := value.(string)
		if !ok {
			return errs.Field(errs.Validation, field.Name, "must be a string")
		}
		opts := resolveFixedOptions(field.Validation.OptionsSource)
		if opts != nil && !contains(opts, s) {
			return errs.Field(errs.Validation, field.Name, "value not among allowed options")
		}

	case FieldMultiSelect:
		arr, ok := value.([]any)
		if !ok {
			return errs.Field(errs.Validation, field.Name, "must be an array of strings")
		}
		opts := resolveFixedOptions(field.Validation.OptionsSource)
		for _, el := range arr {
			s, ok := el.(string)
			if !ok {
				return errs.Field(errs.Validation, field.Name, "all elements must be strings")
			}
			if opts != nil && !contains(opts, s) {
				return errs.Field(errs.Validation, field.Name, fmt.Sprintf("value %q not among allowed options", s))
			}
		}

	case FieldUUID, FieldManyToOne:
		if _, ok := value.(string); !ok {
			return errs.Field(errs.Validation, field.Name, "must be a UUID string")
		}

	case FieldManyToMany:
		if _, ok := value.([]any); !ok {
			return errs.Field(errs.Validation, field.Name, "must be an array of UUID strings")
		}

	case FieldImage, FieldFile:
		if _, ok := value.(string); !ok {
			return errs.Field(errs.Validation, field.Name, "must be a path string")
		}

	case FieldPassword:
		if _, ok := value.(string); !ok {
			return errs.Field(errs.Validation, field.Name, "must be a string")
		}
	}

	return nil
}

func resolveBound(spec string) (time.Time, error) {
	if spec == "now" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, spec)
}

// resolveFixedOptions returns the literal option list only for a Fixed
// source; Enum/Query sources are resolved by an external collaborator and
// are not checked here (their option set isn't known statically).
func resolveFixedOptions(src *OptionsSource) []string {
	if src == nil || src.Kind != OptionsFixed {
		return nil
	}
	return src.Options
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
