// Package dsl implements the declarative, step-based record transformation
// pipeline: a DslProgram reads one input record through a linear chain of
// steps, each optionally transforming and re-mapping fields, and lands the
// result at one or more sinks (an encoded format, the next step, or an
// entity write).
package dsl

// DslProgram is a strictly linear chain of steps; step i's output is the
// only input step i+1 may reference via PreviousStep.
type DslProgram struct {
	Steps []Step `json:"steps"`
}

// Step pairs a source, an optional transform, and a sink.
type Step struct {
	From      FromDef      `json:"from"`
	Transform TransformDef `json:"transform"`
	To        ToDef        `json:"to"`
}

// FromKind tags which FromDef variant is populated.
type FromKind string

const (
	FromFormat       FromKind = "format"
	FromPreviousStep FromKind = "previous_step"
)

// FromDef is a tagged union; exactly one of the Format* fields or Mapping-only
// PreviousStep fields is meaningful, selected by Kind.
type FromDef struct {
	Kind FromKind `json:"kind"`

	// Format
	Source  string            `json:"source,omitempty"`
	Format  string            `json:"format,omitempty"`
	Mapping map[string]string `json:"mapping,omitempty"`

	// PreviousStep carries only Mapping, reusing the field above.
}

// ToKind tags which ToDef variant is populated.
type ToKind string

const (
	ToFormat   ToKind = "format"
	ToEntity   ToKind = "entity"
	ToNextStep ToKind = "next_step"
)

// EntityWriteMode controls how a ToDef::Entity sink resolves an existing row.
type EntityWriteMode string

const (
	ModeCreate EntityWriteMode = "create"
	ModeUpdate EntityWriteMode = "update"
	ModeUpsert EntityWriteMode = "upsert"
)

// ToDef is a tagged union over the three sink shapes a step may write to.
type ToDef struct {
	Kind ToKind `json:"kind"`

	// Format
	Output string `json:"output,omitempty"`
	Format string `json:"format,omitempty"`

	// Entity
	EntityDefinition string          `json:"entity_definition,omitempty"`
	Path             string          `json:"path,omitempty"`
	ParentFilter     map[string]any  `json:"parent_filter,omitempty"`
	FallbackPath     string          `json:"fallback_path,omitempty"`
	PathTemplate     string          `json:"path_template,omitempty"`
	Mode             EntityWriteMode `json:"mode,omitempty"`
	UpdateKey        string          `json:"update_key,omitempty"`

	// Common to all three kinds: destination field name -> source field path
	// (or @literal:<JSON>) in the step's effective input record.
	Mapping map[string]string `json:"mapping,omitempty"`
}

// TransformKind tags which TransformDef variant is populated.
type TransformKind string

const (
	TransformNone       TransformKind = "none"
	TransformArithmetic TransformKind = "arithmetic"
	TransformConcat     TransformKind = "concat"
)

// ArithmeticOp is the closed set of binary numeric operators.
type ArithmeticOp string

const (
	OpAdd ArithmeticOp = "add"
	OpSub ArithmeticOp = "sub"
	OpMul ArithmeticOp = "mul"
	OpDiv ArithmeticOp = "div"
)

// OperandKind tags whether an Operand reads a field or carries a literal
// constant.
type OperandKind string

const (
	OperandField OperandKind = "field"
	OperandConst OperandKind = "const"
)

// Operand is either a field reference into the step's effective input or an
// inline constant.
type Operand struct {
	Kind  OperandKind `json:"kind"`
	Field string      `json:"field,omitempty"`
	Value any         `json:"value,omitempty"`
}

// TransformDef is a tagged union; Target names the field the computed value
// is written to, alongside (not replacing) the step's other produced fields.
type TransformDef struct {
	Kind TransformKind `json:"kind"`

	// Arithmetic
	Op ArithmeticOp `json:"op,omitempty"`

	// Concat
	Separator string `json:"separator,omitempty"`

	Target string  `json:"target,omitempty"`
	Left   Operand `json:"left,omitempty"`
	Right  Operand `json:"right,omitempty"`
}
