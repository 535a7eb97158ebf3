package workflow

import (
	"github.com/user/entityflow/internal/dsl"
	"github.com/user/entityflow/internal/dsl/format"
)

// decoderFor resolves a step's From.Format name to the format adapter that
// reads it. Used by the fetch/stage step to decode the fetched input; the
// process step's executor gets the same registrations from Formats.
func decoderFor(name string) (dsl.Decoder, bool) {
	switch name {
	case "csv":
		return format.NewCSVCodec(format.DefaultCSVOptions()), true
	case "json":
		return format.NewJSONCodec(format.JSONOptions{NDJSON: false}), true
	case "ndjson":
		return format.NewJSONCodec(format.JSONOptions{NDJSON: true}), true
	default:
		return nil, false
	}
}

// Formats returns the full registered format-name -> Decoder map, for
// constructing a dsl.Executor.
func Formats() map[string]dsl.Decoder {
	return map[string]dsl.Decoder{
		"csv":    format.NewCSVCodec(format.DefaultCSVOptions()),
		"json":   format.NewJSONCodec(format.JSONOptions{NDJSON: false}),
		"ndjson": format.NewJSONCodec(format.JSONOptions{NDJSON: true}),
	}
}
