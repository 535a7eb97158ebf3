package dsl

import (
	"context"

	"github.com/user/entityflow/internal/core/errs"
)

// ResolvedParent is the outcome of a parent_filter/fallback_path search: the
// entity whose path+entity_key the new record's path should extend, and
// whose uuid becomes the new record's parent_uuid.
type ResolvedParent struct {
	UUID      string
	Path      string
	EntityKey string
}

// EntityLookup is the collaborator the executor calls to resolve
// ToDef::Entity's parent_filter / fallback_path against persisted entities.
// Implemented by the entity package's repository in production, faked in
// tests.
type EntityLookup interface {
	FindOne(ctx context.Context, entityType string, filters map[string]any) (*ResolvedParent, error)
	FindByPath(ctx context.Context, entityType, path string) (*ResolvedParent, error)
}

// Decoder turns raw bytes into a sequence of decoded records (a format
// adapter may yield more than one row per call, e.g. CSV/NDJSON).
type Decoder interface {
	Decode(raw []byte) ([]map[string]any, error)
}

// Encoder turns a sequence of records into encoded bytes for a ToDef::Format
// sink, the inverse of Decoder.
type Encoder interface {
	Encode(records []map[string]any) ([]byte, error)
}

// Sink pairs a step's ToDef with the record it produced, in program order;
// returned by Execute for every step whose ToDef fired.
type Sink struct {
	Step   int
	To     ToDef
	Record map[string]any
}

// Executor runs a validated DslProgram against one input record.
type Executor struct {
	Program DslProgram
	Formats map[string]Decoder
	Lookup  EntityLookup
}

// NewExecutor validates the program once and returns an Executor ready to
// run it repeatedly.
func NewExecutor(program DslProgram, formats map[string]Decoder, lookup EntityLookup) (*Executor, error) {
	if err := Validate(program); err != nil {
		return nil, err
	}
	return &Executor{Program: program, Formats: formats, Lookup: lookup}, nil
}

// Apply runs the program against raw and returns the single record produced
// by the last step. When step 0's format adapter decodes raw to zero records
// (the CSV and NDJSON adapters do so for empty input), initialRecord is used
// as step 0's input instead; the process step relies on this, passing nil raw
// and a staged item's record.
func (ex *Executor) Apply(ctx context.Context, raw []byte, initialRecord map[string]any) (map[string]any, error) {
	sinks, err := ex.run(ctx, raw, initialRecord)
	if err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		return nil, errs.New(errs.Validation, "program produced no output")
	}
	return sinks[len(sinks)-1].Record, nil
}

// Execute runs the program and returns every sink fired along the way, in
// step order.
func (ex *Executor) Execute(ctx context.Context, raw []byte, initialRecord map[string]any) ([]Sink, error) {
	return ex.run(ctx, raw, initialRecord)
}

func (ex *Executor) run(ctx context.Context, raw []byte, initialRecord map[string]any) ([]Sink, error) {
	var sinks []Sink
	var current map[string]any

	for i, step := range ex.Program.Steps {
		var input map[string]any
		switch step.From.Kind {
		case FromFormat:
			decoder, ok := ex.Formats[step.From.Format]
			if !ok {
				return nil, errs.Newf(errs.Config, "no format adapter registered for %q", step.From.Format)
			}
			if i != 0 {
				return nil, errs.New(errs.Validation, "only step 0 may source from a format adapter")
			}
			records, err := decoder.Decode(raw)
			if err != nil {
				return nil, errs.Wrap(errs.Conversion, err, "decode input")
			}
			if len(records) == 0 {
				if initialRecord != nil {
					records = []map[string]any{initialRecord}
				} else {
					return nil, errs.New(errs.Validation, "decoded input produced no records")
				}
			}
			mapped, err := ApplyMapping(step.From.Mapping, records[0])
			if err != nil {
				return nil, err
			}
			input = mapped

		case FromPreviousStep:
			mapped, err := ApplyMapping(step.From.Mapping, current)
			if err != nil {
				return nil, err
			}
			input = mapped

		default:
			return nil, errs.Newf(errs.Validation, "unknown from kind: %s", step.From.Kind)
		}

		record, err := ApplyMapping(step.To.Mapping, input)
		if err != nil {
			return nil, err
		}
		if err := ApplyTransform(step.Transform, input, record); err != nil {
			return nil, err
		}

		if step.To.Kind == ToEntity {
			if err := ex.resolveParent(ctx, step.To, record); err != nil {
				return nil, err
			}
		}

		sinks = append(sinks, Sink{Step: i, To: step.To, Record: record})
		current = record
	}

	return sinks, nil
}

// resolveParent implements the parent_filter/fallback_path search, writing
// path/parent_uuid into record on success.
func (ex *Executor) resolveParent(ctx context.Context, to ToDef, record map[string]any) error {
	if to.PathTemplate != "" {
		path, err := ResolvePathTemplate(to.PathTemplate, record)
		if err != nil {
			return err
		}
		record["path"] = path
	}

	if len(to.ParentFilter) == 0 {
		return nil
	}
	if ex.Lookup == nil {
		return errs.New(errs.Config, "entity sink declares parent_filter but no lookup collaborator is configured")
	}

	resolved, err := ex.Lookup.FindOne(ctx, to.EntityDefinition, to.ParentFilter)
	if err == nil && resolved != nil {
		record["path"] = resolved.Path + "/" + resolved.EntityKey
		record["parent_uuid"] = resolved.UUID
		return nil
	}

	if to.FallbackPath == "" {
		return errs.New(errs.NotFound, "parent_filter matched no entity and no fallback_path was given")
	}
	fallback, ferr := ex.Lookup.FindByPath(ctx, to.EntityDefinition, to.FallbackPath)
	if ferr != nil || fallback == nil {
		return errs.New(errs.NotFound, "parent_filter matched no entity and fallback_path is also missing")
	}
	record["path"] = fallback.Path + "/" + fallback.EntityKey
	record["parent_uuid"] = fallback.UUID
	return nil
}
