package format

import (
	"bytes"
	"encoding/json"

	"github.com/user/entityflow/internal/core/errs"
)

// JSONOptions mirrors the wire options a workflow config attaches to a JSON
// format adapter.
type JSONOptions struct {
	// NDJSON, when true, makes Decode read newline-delimited JSON objects
	// instead of a single top-level array. Encode does not read it: its
	// asArray argument picks the output shape.
	NDJSON bool
}

// JSONCodec decodes/encodes JSON array or NDJSON records.
type JSONCodec struct {
	Options JSONOptions
}

func NewJSONCodec(opts JSONOptions) *JSONCodec {
	return &JSONCodec{Options: opts}
}

// Decode parses raw JSON bytes. Default input is a JSON array of objects;
// with NDJSON set, each non-empty line is decoded independently.
func (c *JSONCodec) Decode(raw []byte) ([]map[string]any, error) {
	if c.Options.NDJSON {
		return decodeNDJSON(raw)
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "parse JSON array")
	}
	return rows, nil
}

func decodeNDJSON(raw []byte) ([]map[string]any, error) {
	var out []map[string]any
	for _, line := range bytes.Split(raw, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, errs.Wrap(errs.Conversion, err, "parse NDJSON line")
		}
		out = append(out, rec)
	}
	return out, nil
}

// Encode serialises records as a JSON array when asArray is true; when it is
// false it produces NDJSON, one object per line with no trailing newline.
func (c *JSONCodec) Encode(records []map[string]any, asArray bool) ([]byte, error) {
	if asArray {
		out, err := json.Marshal(records)
		if err != nil {
			return nil, errs.Wrap(errs.Conversion, err, "encode JSON array")
		}
		return out, nil
	}

	var buf bytes.Buffer
	for i, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, errs.Wrap(errs.Conversion, err, "encode NDJSON line")
		}
		buf.Write(line)
		if i != len(records)-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// JSONEncoder pins JSONCodec.Encode's AsArray choice so it satisfies the
// single-argument Encoder shape a ToDef::Format sink calls through.
type JSONEncoder struct {
	Codec   *JSONCodec
	AsArray bool
}

func (e *JSONEncoder) Encode(records []map[string]any) ([]byte, error) {
	return e.Codec.Encode(records, e.AsArray)
}
