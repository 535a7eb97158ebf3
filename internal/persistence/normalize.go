// Package persistence implements the normalisation pipeline that turns a
// proposed entity record into a validated, written DynamicEntity row:
// unknown-field rejection, type coercion, Argon2id password hashing,
// per-field validation, parent/path resolution, registry write, and
// versioning, on top of raw SQL (database/sql, quoted identifiers) against
// dynamically materialised tables.
package persistence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/entity"
)

// normalizeFields runs steps 1-4 of the pipeline (unknown-field rejection,
// type coercion, password hashing, per-field validation) and returns the
// cleaned, coerced field map (reserved/protected fields excluded).
func normalizeFields(def entity.EntityDefinition, input map[string]any, isCreate bool) (map[string]any, error) {
	byName := make(map[string]entity.FieldDefinition, len(def.Fields))
	for _, f := range def.Fields {
		byName[f.Name] = f
	}

	out := make(map[string]any, len(input))
	for key, val := range input {
		if entity.ReservedFields[key] {
			continue // handled separately by the caller (path/parent/system columns)
		}
		field, ok := byName[key]
		if !ok {
			return nil, errs.Field(errs.Validation, key, fmt.Sprintf("unknown field %q for entity type %q", key, def.EntityType))
		}

		coerced, err := coerce(field, val)
		if err != nil {
			return nil, err
		}

		if field.FieldType == entity.FieldPassword {
			coerced, err = hashPasswordIfSet(coerced)
			if err != nil {
				return nil, err
			}
		}

		if err := entity.ValidateValue(field, coerced); err != nil {
			return nil, err
		}
		out[key] = coerced
	}

	if isCreate {
		for _, f := range def.Fields {
			if f.Required {
				if _, present := out[f.Name]; !present {
					return nil, errs.Field(errs.Validation, f.Name, "required field is missing")
				}
			}
		}
	}

	return out, nil
}

// coerce implements step 2: a string value supplied for a boolean/integer/
// float field is strictly parsed, and a parse failure is a hard error. A
// non-string value for those fields, and any value for all other field
// types, passes through unchanged (ValidateValue performs the shape checks).
func coerce(field entity.FieldDefinition, val any) (any, error) {
	s, isString := val.(string)
	switch field.FieldType {
	case entity.FieldBoolean:
		if !isString {
			return val, nil
		}
		switch s {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, errs.Field(errs.Conversion, field.Name, fmt.Sprintf("cannot parse %q as boolean", s))
		}

	case entity.FieldInteger:
		if !isString {
			return val, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, errs.Field(errs.Conversion, field.Name, fmt.Sprintf("cannot parse %q as an integer", s))
		}
		return n, nil

	case entity.FieldFloat:
		if !isString {
			return val, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, errs.Field(errs.Conversion, field.Name, fmt.Sprintf("cannot parse %q as a float", s))
		}
		return f, nil

	default:
		return val, nil
	}
}
