// Package format implements the byte<->record adapters the DSL executor's
// Format-shaped FromDef/ToDef sinks use: CSV and JSON/NDJSON, both built
// directly on the encoding/csv and encoding/json standard library packages,
// since no richer CSV/JSON dependency is pulled in for this concern.
package format

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/user/entityflow/internal/core/errs"
)

// CSVOptions mirrors the wire options a workflow config attaches to a CSV
// format adapter.
type CSVOptions struct {
	HasHeader bool // default true
	Delimiter rune // default ','
	Quote     rune // 0 = default
	Escape    rune // 0 = none
}

// DefaultCSVOptions returns the documented defaults.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{HasHeader: true, Delimiter: ','}
}

// CSVCodec decodes/encodes CSV records under a fixed set of options.
type CSVCodec struct {
	Options CSVOptions
}

func NewCSVCodec(opts CSVOptions) *CSVCodec {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &CSVCodec{Options: opts}
}

// Decode parses raw CSV bytes into records. Without a header row, keys are
// assigned col_1..col_N in column order.
func (c *CSVCodec) Decode(raw []byte) ([]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = c.Options.Delimiter
	if c.Options.Quote != 0 && c.Options.Quote != '"' {
		// encoding/csv always treats '"' as the quote char; a non-default
		// quote rune isn't representable by the stdlib reader, so this is
		// surfaced as a config error rather than silently ignored.
		return nil, errs.New(errs.Config, "non-default CSV quote characters are not supported")
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "parse CSV")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var header []string
	start := 0
	if c.Options.HasHeader {
		header = rows[0]
		start = 1
	} else {
		header = make([]string, len(rows[0]))
		for i := range header {
			header[i] = fmt.Sprintf("col_%d", i+1)
		}
	}

	out := make([]map[string]any, 0, len(rows)-start)
	for _, row := range rows[start:] {
		rec := make(map[string]any, len(header))
		for i, key := range header {
			if i < len(row) {
				rec[key] = row[i]
			} else {
				rec[key] = ""
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Encode writes records as CSV. The columns are the first record's keys in Go
// map iteration order, which is unspecified and can differ between calls;
// when HasHeader is true that order is also the header row. Callers needing
// a stable header pass it to EncodeOrdered.
func (c *CSVCodec) Encode(records []map[string]any) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}
	headers := make([]string, 0, len(records[0]))
	for k := range records[0] {
		headers = append(headers, k)
	}
	return c.EncodeOrdered(headers, records)
}

// EncodeOrdered writes records as CSV using an explicit, stable header
// order.
func (c *CSVCodec) EncodeOrdered(headers []string, records []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = c.Options.Delimiter

	if c.Options.HasHeader {
		if err := w.Write(headers); err != nil {
			return nil, errs.Wrap(errs.Conversion, err, "write CSV header")
		}
	}
	for _, rec := range records {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = toCSVCell(rec[h])
		}
		if err := w.Write(row); err != nil {
			return nil, errs.Wrap(errs.Conversion, err, "write CSV row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "flush CSV writer")
	}
	return buf.Bytes(), nil
}

func toCSVCell(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
