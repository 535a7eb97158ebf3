package dsl

import (
	"fmt"

	"github.com/user/entityflow/internal/core/errs"
)

// Validate runs the one-time, pre-execution validation pass over an entire
// program: every mapping's destination/source is a safe identifier or
// literal, step 0 may not use PreviousStep, the last step may not use
// NextStep, and every transform operand that reads a field names a safe
// field.
func Validate(p DslProgram) error {
	if len(p.Steps) == 0 {
		return errs.New(errs.Validation, "program must declare at least one step")
	}

	last := len(p.Steps) - 1
	for i, step := range p.Steps {
		if i == 0 && step.From.Kind == FromPreviousStep {
			return errs.New(errs.Validation, "step 0 cannot use PreviousStep")
		}
		if i == last && step.To.Kind == ToNextStep {
			return errs.New(errs.Validation, "last step cannot use NextStep")
		}

		if err := ValidateMapping(step.From.Mapping); err != nil {
			return err
		}
		if err := ValidateMapping(step.To.Mapping); err != nil {
			return err
		}

		if err := validateTransformOperands(step.Transform); err != nil {
			return err
		}

		if step.To.Kind == ToEntity {
			if step.To.EntityDefinition == "" {
				return errs.New(errs.Validation, "entity sink must name an entity_definition")
			}
			switch step.To.Mode {
			case ModeCreate, ModeUpdate, ModeUpsert, "":
			default:
				return errs.Newf(errs.Validation, "unknown entity write mode: %s", step.To.Mode)
			}
		}
	}
	return nil
}

func validateTransformOperands(t TransformDef) error {
	check := func(op Operand) error {
		if op.Kind != OperandField {
			return nil
		}
		if !IsSafeField(op.Field) {
			return errs.Field(errs.Validation, op.Field, fmt.Sprintf("transform operand field %q is not a safe field name", op.Field))
		}
		return nil
	}

	switch t.Kind {
	case TransformArithmetic, TransformConcat:
		if t.Target == "" {
			return errs.New(errs.Validation, "transform target is required")
		}
		if !IsSafeField(t.Target) {
			return errs.Field(errs.Validation, t.Target, "transform target is not a safe field name")
		}
		if err := check(t.Left); err != nil {
			return err
		}
		if err := check(t.Right); err != nil {
			return err
		}
	}
	return nil
}
