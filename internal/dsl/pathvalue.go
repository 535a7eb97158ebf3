package dsl

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GetValByPath resolves a dotted field path (gjson syntax) against a plain
// record map, returning nil if the path doesn't exist or data can't be
// marshaled.
func GetValByPath(data map[string]any, path string) any {
	if path == "" {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	res := gjson.GetBytes(jsonData, path)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// SetValByPath writes val at a dotted field path, replacing data's contents
// in place with the result.
func SetValByPath(data map[string]any, path string, val any) {
	if path == "" {
		return
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	newJSON, err := sjson.SetBytes(jsonData, path, val)
	if err != nil {
		return
	}
	var newData map[string]any
	if err := json.Unmarshal(newJSON, &newData); err != nil {
		return
	}
	for k := range data {
		delete(data, k)
	}
	for k, v := range newData {
		data[k] = v
	}
}

// ToFloat64 converts a decoded JSON value to float64. A string converts only
// if the entire trimmed string parses as a number (the strict-casting rule);
// booleans never convert.
func ToFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt64 converts a decoded JSON value to int64 under the same strict rule
// as ToFloat64.
func ToInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return int64(f), err == nil
	default:
		return 0, false
	}
}

// ToBool converts a decoded JSON value to bool, accepting common string
// spellings; unrecognised strings and all other types return false.
func ToBool(val any) bool {
	if val == nil {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	default:
		return false
	}
}
