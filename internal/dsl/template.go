package dsl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/user/entityflow/internal/core/errs"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)(\|[a-z,]+)?\}`)

// FieldTransform is one step of a path-template transform chain applied to a
// resolved field value before substitution.
type FieldTransform string

const (
	TransformLowercase FieldTransform = "lowercase"
	TransformUppercase FieldTransform = "uppercase"
	TransformTrim      FieldTransform = "trim"
	TransformNormalize FieldTransform = "normalize"
	TransformSlug      FieldTransform = "slug"
	TransformHash      FieldTransform = "hash"
)

var normalizeRe = regexp.MustCompile(`[^A-Za-z0-9 ]+`)
var slugNonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

// applyFieldTransforms runs a value through a chain of named transforms, in
// order.
func applyFieldTransforms(value string, chain []FieldTransform) string {
	for _, t := range chain {
		switch t {
		case TransformLowercase:
			value = strings.ToLower(value)
		case TransformUppercase:
			value = strings.ToUpper(value)
		case TransformTrim:
			value = strings.TrimSpace(value)
		case TransformNormalize:
			value = normalizeRe.ReplaceAllString(value, "")
		case TransformSlug:
			value = strings.ToLower(value)
			value = slugNonAlnumRe.ReplaceAllString(value, "-")
			value = strings.Trim(value, "-")
		case TransformHash:
			sum := sha256.Sum256([]byte(value))
			value = hex.EncodeToString(sum[:])
		}
	}
	return value
}

// ResolvePathTemplate expands {field} placeholders in template against
// record, applying any "|transform,transform" chain suffix on the
// placeholder to that field's resolved value before substitution. A
// placeholder whose field is missing or null fails validation.
func ResolvePathTemplate(template string, record map[string]any) (string, error) {
	var outerErr error
	result := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		if outerErr != nil {
			return match
		}
		groups := placeholderRe.FindStringSubmatch(match)
		field := groups[1]
		chainSpec := strings.TrimPrefix(groups[2], "|")

		val := GetValByPath(record, field)
		if val == nil {
			outerErr = errs.Field(errs.Validation, field, fmt.Sprintf("field %s required for path template", field))
			return match
		}

		str := fmt.Sprintf("%v", val)
		if chainSpec != "" {
			parts := strings.Split(chainSpec, ",")
			chain := make([]FieldTransform, len(parts))
			for i, p := range parts {
				chain[i] = FieldTransform(p)
			}
			str = applyFieldTransforms(str, chain)
		}
		return str
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}
