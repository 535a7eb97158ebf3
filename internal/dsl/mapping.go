package dsl

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/user/entityflow/internal/core/errs"
)

// safeFieldRe is the identifier grammar legal for both mapping destinations
// and non-literal mapping sources: letters/digits/underscore, dots allowed
// for nested paths.
var safeFieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// literalPrefix marks a mapping source as an inline JSON literal rather than
// a field path into the upstream record.
const literalPrefix = "@literal:"

// IsSafeField reports whether name is a legal mapping destination or
// non-literal mapping source.
func IsSafeField(name string) bool {
	return safeFieldRe.MatchString(name)
}

// IsLiteralSource reports whether src carries an inline literal value.
func IsLiteralSource(src string) bool {
	return strings.HasPrefix(src, literalPrefix)
}

// parseLiteral decodes the JSON payload following the literal prefix. Any
// JSON value (object, array, scalar, or null) is legal.
func parseLiteral(src string) (any, error) {
	raw := strings.TrimPrefix(src, literalPrefix)
	var val any
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, errs.Field(errs.Validation, src, "invalid literal value: "+err.Error())
	}
	return val, nil
}

// IsValidLiteralValue reports whether src is a well-formed @literal: source.
func IsValidLiteralValue(src string) bool {
	if !IsLiteralSource(src) {
		return false
	}
	_, err := parseLiteral(src)
	return err == nil
}

// ApplyMapping projects input through a dest->src mapping. An empty mapping
// passes every upstream field through unchanged. Each source is resolved
// either as a literal or as a field path into input.
func ApplyMapping(mapping map[string]string, input map[string]any) (map[string]any, error) {
	if len(mapping) == 0 {
		out := make(map[string]any, len(input))
		for k, v := range input {
			out[k] = v
		}
		return out, nil
	}

	out := make(map[string]any, len(mapping))
	for dest, src := range mapping {
		if !IsSafeField(dest) {
			return nil, errs.Field(errs.Validation, dest, "mapping destination is not a safe field name")
		}

		if IsLiteralSource(src) {
			val, err := parseLiteral(src)
			if err != nil {
				return nil, err
			}
			out[dest] = val
			continue
		}

		if !IsSafeField(src) {
			return nil, errs.Field(errs.Validation, src, "mapping source is not a safe field name or literal")
		}
		out[dest] = GetValByPath(input, src)
	}
	return out, nil
}

// ValidateMapping checks destination/source safety without resolving
// values, used by the program-wide validation pass.
func ValidateMapping(mapping map[string]string) error {
	for dest, src := range mapping {
		if !IsSafeField(dest) {
			return errs.Field(errs.Validation, dest, "mapping destination is not a safe field name")
		}
		if IsLiteralSource(src) {
			if !IsValidLiteralValue(src) {
				return errs.Field(errs.Validation, src, "invalid literal mapping source")
			}
			continue
		}
		if !IsSafeField(src) {
			return errs.Field(errs.Validation, src, "mapping source is not a safe field name or literal")
		}
	}
	return nil
}
