package dsl

import (
	"fmt"

	"github.com/user/entityflow/internal/core/errs"
)

// resolveOperand reads an Operand's value against a step's effective input:
// a const operand returns its literal Value, a field operand resolves
// against input by path.
func resolveOperand(op Operand, input map[string]any) any {
	if op.Kind == OperandConst {
		return op.Value
	}
	return GetValByPath(input, op.Field)
}

// ApplyTransform evaluates a TransformDef against input (the step's
// effective input record) and record (the record so far produced by this
// step's mapping), writing the computed value at Target alongside record's
// existing fields.
func ApplyTransform(t TransformDef, input map[string]any, record map[string]any) error {
	switch t.Kind {
	case TransformNone, "":
		return nil

	case TransformArithmetic:
		left := resolveOperand(t.Left, input)
		right := resolveOperand(t.Right, input)

		if _, isBool := left.(bool); isBool {
			return errs.Field(errs.Conversion, t.Target, "boolean operand cannot be used in arithmetic")
		}
		if _, isBool := right.(bool); isBool {
			return errs.Field(errs.Conversion, t.Target, "boolean operand cannot be used in arithmetic")
		}

		lf, ok := ToFloat64(left)
		if !ok {
			return errs.Field(errs.Conversion, t.Target, fmt.Sprintf("left operand %v cannot be parsed as a number", left))
		}
		rf, ok := ToFloat64(right)
		if !ok {
			return errs.Field(errs.Conversion, t.Target, fmt.Sprintf("right operand %v cannot be parsed as a number", right))
		}

		var result float64
		switch t.Op {
		case OpAdd:
			result = lf + rf
		case OpSub:
			result = lf - rf
		case OpMul:
			result = lf * rf
		case OpDiv:
			if rf == 0 {
				return errs.Field(errs.Conversion, t.Target, "division by zero")
			}
			result = lf / rf
		default:
			return errs.Field(errs.Validation, t.Target, fmt.Sprintf("unknown arithmetic operator: %s", t.Op))
		}
		record[t.Target] = result
		return nil

	case TransformConcat:
		left := resolveOperand(t.Left, input)
		right := resolveOperand(t.Right, input)
		record[t.Target] = fmt.Sprintf("%v%s%v", left, t.Separator, right)
		return nil

	default:
		return errs.Field(errs.Validation, t.Target, fmt.Sprintf("unknown transform kind: %s", t.Kind))
	}
}
