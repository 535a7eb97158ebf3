package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/entityflow/internal/core/errs"
)

func TestApplyTransform_NoneIsNoOp(t *testing.T) {
	record := map[string]any{}
	err := ApplyTransform(TransformDef{Kind: TransformNone}, map[string]any{}, record)
	require.NoError(t, err)
	assert.Empty(t, record)
}

func TestApplyTransform_ArithmeticAdd(t *testing.T) {
	input := map[string]any{"qty": 3, "price": 4}
	record := map[string]any{}
	tr := TransformDef{
		Kind: TransformArithmetic, Op: OpAdd, Target: "total",
		Left: Operand{Kind: OperandField, Field: "qty"}, Right: Operand{Kind: OperandField, Field: "price"},
	}
	require.NoError(t, ApplyTransform(tr, input, record))
	assert.Equal(t, float64(7), record["total"])
}

func TestApplyTransform_ArithmeticDivideByZero(t *testing.T) {
	tr := TransformDef{
		Kind: TransformArithmetic, Op: OpDiv, Target: "ratio",
		Left: Operand{Kind: OperandConst, Value: 1.0}, Right: Operand{Kind: OperandConst, Value: 0.0},
	}
	err := ApplyTransform(tr, map[string]any{}, map[string]any{})
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Conversion))
}

func TestApplyTransform_ArithmeticStrictStringCasting(t *testing.T) {
	tr := TransformDef{
		Kind: TransformArithmetic, Op: OpAdd, Target: "total",
		Left: Operand{Kind: OperandConst, Value: "123"}, Right: Operand{Kind: OperandConst, Value: 1.0},
	}
	record := map[string]any{}
	require.NoError(t, ApplyTransform(tr, map[string]any{}, record))
	assert.Equal(t, float64(124), record["total"])

	partial := TransformDef{
		Kind: TransformArithmetic, Op: OpAdd, Target: "total",
		Left: Operand{Kind: OperandConst, Value: "123abc"}, Right: Operand{Kind: OperandConst, Value: 1.0},
	}
	err := ApplyTransform(partial, map[string]any{}, map[string]any{})
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Conversion))

	empty := TransformDef{
		Kind: TransformArithmetic, Op: OpAdd, Target: "total",
		Left: Operand{Kind: OperandConst, Value: ""}, Right: Operand{Kind: OperandConst, Value: 1.0},
	}
	err = ApplyTransform(empty, map[string]any{}, map[string]any{})
	require.Error(t, err)
}

func TestApplyTransform_ArithmeticRejectsBoolean(t *testing.T) {
	tr := TransformDef{
		Kind: TransformArithmetic, Op: OpAdd, Target: "total",
		Left: Operand{Kind: OperandConst, Value: true}, Right: Operand{Kind: OperandConst, Value: 1.0},
	}
	err := ApplyTransform(tr, map[string]any{}, map[string]any{})
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.Conversion))
}

func TestApplyTransform_ChainedArithmeticAcrossSteps(t *testing.T) {
	// simulates two chained Arithmetic steps: first computes subtotal,
	// second reads subtotal (now present in input) to compute a total with
	// tax.
	subtotalInput := map[string]any{"qty": 2, "price": 10}
	subtotalRecord := map[string]any{}
	require.NoError(t, ApplyTransform(TransformDef{
		Kind: TransformArithmetic, Op: OpMul, Target: "subtotal",
		Left: Operand{Kind: OperandField, Field: "qty"}, Right: Operand{Kind: OperandField, Field: "price"},
	}, subtotalInput, subtotalRecord))
	assert.Equal(t, float64(20), subtotalRecord["subtotal"])

	totalRecord := map[string]any{}
	require.NoError(t, ApplyTransform(TransformDef{
		Kind: TransformArithmetic, Op: OpAdd, Target: "total",
		Left: Operand{Kind: OperandField, Field: "subtotal"}, Right: Operand{Kind: OperandConst, Value: 2.0},
	}, subtotalRecord, totalRecord))
	assert.Equal(t, float64(22), totalRecord["total"])
}

func TestApplyTransform_Concat(t *testing.T) {
	input := map[string]any{"first": "Alice", "last": "Smith"}
	record := map[string]any{}
	tr := TransformDef{
		Kind: TransformConcat, Target: "full_name", Separator: " ",
		Left: Operand{Kind: OperandField, Field: "first"}, Right: Operand{Kind: OperandField, Field: "last"},
	}
	require.NoError(t, ApplyTransform(tr, input, record))
	assert.Equal(t, "Alice Smith", record["full_name"])
}
