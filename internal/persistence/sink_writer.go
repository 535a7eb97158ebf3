package persistence

import (
	"context"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/dsl"
	"github.com/user/entityflow/internal/dsl/format"
)

// Destination delivers a ToDef::Format sink's encoded bytes to the named
// output, the outbound counterpart of the fetch step's Fetcher.
type Destination interface {
	Send(ctx context.Context, output string, raw []byte) error
}

// encoderFor resolves a ToDef::Format sink's format name to the adapter
// that encodes it, mirroring the fetch step's decoder registration.
func encoderFor(name string) (dsl.Encoder, bool) {
	switch name {
	case "csv":
		return format.NewCSVCodec(format.DefaultCSVOptions()), true
	case "json":
		return &format.JSONEncoder{Codec: format.NewJSONCodec(format.JSONOptions{}), AsArray: true}, true
	case "ndjson":
		return &format.JSONEncoder{Codec: format.NewJSONCodec(format.JSONOptions{NDJSON: true}), AsArray: false}, true
	default:
		return nil, false
	}
}

// SinkWriter adapts Pipeline.Write to the workflow process step's dsl.Sink
// shape: a ToEntity sink's record is written through the normalisation
// pipeline; a ToFormat sink is encoded via the named format adapter and
// handed to Dest.
type SinkWriter struct {
	Pipeline *Pipeline
	Dest     Destination
}

func NewSinkWriter(p *Pipeline) *SinkWriter { return &SinkWriter{Pipeline: p} }

// NewSinkWriterWithDestination wires in the collaborator ToFormat sinks
// need; callers with no configured destinations may keep using NewSinkWriter
// and accept that any ToFormat sink then fails loudly.
func NewSinkWriterWithDestination(p *Pipeline, dest Destination) *SinkWriter {
	return &SinkWriter{Pipeline: p, Dest: dest}
}

func (w *SinkWriter) WriteSink(ctx context.Context, sink dsl.Sink) error {
	switch sink.To.Kind {
	case dsl.ToEntity:
		mode := sink.To.Mode
		input := sink.Record
		if mode == dsl.ModeUpdate || mode == dsl.ModeUpsert {
			if key := sink.To.UpdateKey; key != "" {
				if v, ok := sink.Record[key]; ok {
					input = cloneWithUUID(sink.Record, v)
				}
			}
		}
		_, err := w.Pipeline.Write(ctx, sink.To.EntityDefinition, input, WriteOptions{})
		return err

	case dsl.ToFormat:
		if w.Dest == nil {
			return errs.New(errs.Config, "format sink declared but no destination is configured")
		}
		enc, ok := encoderFor(sink.To.Format)
		if !ok {
			return errs.Newf(errs.Config, "no format adapter registered for %q", sink.To.Format)
		}
		raw, err := enc.Encode([]map[string]any{sink.Record})
		if err != nil {
			return err
		}
		return w.Dest.Send(ctx, sink.To.Output, raw)

	default:
		return errs.Newf(errs.Config, "no writer configured for sink kind %q", sink.To.Kind)
	}
}

func cloneWithUUID(record map[string]any, uuid any) map[string]any {
	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	out["uuid"] = uuid
	return out
}
