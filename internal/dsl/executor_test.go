package dsl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/entityflow/internal/dsl/format"
)

type fakeLookup struct {
	found    map[string]*ResolvedParent
	byPath   map[string]*ResolvedParent
	calls    int
	failFind bool
}

func (f *fakeLookup) FindOne(_ context.Context, entityType string, filters map[string]any) (*ResolvedParent, error) {
	f.calls++
	if f.failFind {
		return nil, nil
	}
	return f.found[entityType], nil
}

func (f *fakeLookup) FindByPath(_ context.Context, entityType, path string) (*ResolvedParent, error) {
	return f.byPath[path], nil
}

func TestExecutor_Apply_SingleStepMapping(t *testing.T) {
	program := DslProgram{Steps: []Step{
		{
			From: FromDef{Kind: FromFormat, Source: "upload", Format: "json", Mapping: map[string]string{"name": "full_name"}},
			To:   ToDef{Kind: ToEntity, EntityDefinition: "customer", Mode: ModeCreate},
		},
	}}

	ex, err := NewExecutor(program, map[string]Decoder{"json": format.NewJSONCodec(format.JSONOptions{})}, nil)
	require.NoError(t, err)

	out, err := ex.Apply(context.Background(), []byte(`[{"full_name":"Alice"}]`), nil)
	require.NoError(t, err)
	assert.Equal(t, "Alice", out["name"])
}

func TestExecutor_Execute_ChainedStepsAndArithmetic(t *testing.T) {
	program := DslProgram{Steps: []Step{
		{
			From: FromDef{Kind: FromFormat, Source: "upload", Format: "json"},
			Transform: TransformDef{
				Kind: TransformArithmetic, Op: OpMul, Target: "subtotal",
				Left: Operand{Kind: OperandField, Field: "qty"}, Right: Operand{Kind: OperandField, Field: "price"},
			},
			To: ToDef{Kind: ToNextStep},
		},
		{
			From: FromDef{Kind: FromPreviousStep},
			Transform: TransformDef{
				Kind: TransformArithmetic, Op: OpAdd, Target: "total",
				Left: Operand{Kind: OperandField, Field: "subtotal"}, Right: Operand{Kind: OperandConst, Value: 5.0},
			},
			To: ToDef{Kind: ToEntity, EntityDefinition: "invoice_line", Mode: ModeCreate},
		},
	}}

	ex, err := NewExecutor(program, map[string]Decoder{"json": format.NewJSONCodec(format.JSONOptions{})}, nil)
	require.NoError(t, err)

	sinks, err := ex.Execute(context.Background(), []byte(`[{"qty":2,"price":10}]`), nil)
	require.NoError(t, err)
	require.Len(t, sinks, 2)

	assert.Equal(t, float64(20), sinks[0].Record["subtotal"])
	assert.Equal(t, float64(20), sinks[1].Record["subtotal"]) // inherited, empty mapping
	assert.Equal(t, float64(25), sinks[1].Record["total"])
}

func TestExecutor_ParentResolution_FoundDirectly(t *testing.T) {
	program := DslProgram{Steps: []Step{
		{
			From: FromDef{Kind: FromFormat, Source: "upload", Format: "json"},
			To: ToDef{
				Kind: ToEntity, EntityDefinition: "region", Mode: ModeCreate,
				ParentFilter: map[string]any{"code": "EU"},
			},
		},
	}}
	lookup := &fakeLookup{found: map[string]*ResolvedParent{
		"region": {UUID: "parent-uuid", Path: "/regions", EntityKey: "eu"},
	}}

	ex, err := NewExecutor(program, map[string]Decoder{"json": format.NewJSONCodec(format.JSONOptions{})}, lookup)
	require.NoError(t, err)

	out, err := ex.Apply(context.Background(), []byte(`[{"code":"EU"}]`), nil)
	require.NoError(t, err)
	assert.Equal(t, "/regions/eu", out["path"])
	assert.Equal(t, "parent-uuid", out["parent_uuid"])
}

func TestExecutor_ParentResolution_FallsBackToFallbackPath(t *testing.T) {
	program := DslProgram{Steps: []Step{
		{
			From: FromDef{Kind: FromFormat, Source: "upload", Format: "json"},
			To: ToDef{
				Kind: ToEntity, EntityDefinition: "region", Mode: ModeCreate,
				ParentFilter: map[string]any{"code": "EU"},
				FallbackPath: "/regions/unknown",
			},
		},
	}}
	lookup := &fakeLookup{
		failFind: true,
		byPath:   map[string]*ResolvedParent{"/regions/unknown": {UUID: "fallback-uuid", Path: "/regions", EntityKey: "unknown"}},
	}

	ex, err := NewExecutor(program, map[string]Decoder{"json": format.NewJSONCodec(format.JSONOptions{})}, lookup)
	require.NoError(t, err)

	out, err := ex.Apply(context.Background(), []byte(`[{"code":"EU"}]`), nil)
	require.NoError(t, err)
	assert.Equal(t, "/regions/unknown", out["path"])
	assert.Equal(t, "fallback-uuid", out["parent_uuid"])
}

func TestExecutor_ParentResolution_FailsWhenFallbackAlsoMissing(t *testing.T) {
	program := DslProgram{Steps: []Step{
		{
			From: FromDef{Kind: FromFormat, Source: "upload", Format: "json"},
			To:   ToDef{Kind: ToEntity, EntityDefinition: "region", Mode: ModeCreate, ParentFilter: map[string]any{"code": "EU"}},
		},
	}}
	lookup := &fakeLookup{failFind: true}

	ex, err := NewExecutor(program, map[string]Decoder{"json": format.NewJSONCodec(format.JSONOptions{})}, lookup)
	require.NoError(t, err)

	_, err = ex.Apply(context.Background(), []byte(`[{"code":"EU"}]`), nil)
	require.Error(t, err)
}

func TestExecutor_InvalidProgramRejectedAtConstruction(t *testing.T) {
	program := DslProgram{Steps: []Step{
		{From: FromDef{Kind: FromPreviousStep}, To: ToDef{Kind: ToEntity, EntityDefinition: "x"}},
	}}
	_, err := NewExecutor(program, nil, nil)
	require.Error(t, err)
}
