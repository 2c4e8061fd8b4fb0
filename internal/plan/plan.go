// Package plan defines the closed logical operator catalog the renderer
// lowers into wired join/upsert/trace operators. A concrete
// scalar-expression language is intentionally out of scope; Mfp and
// FlatMap instead carry a Go callback, which is what an upstream
// optimizer/compiler stage would ultimately produce anyway.
package plan

// Plan is a node in the logical operator tree. It is a closed sum type:
// every implementation lives in this package and has a planNode marker
// method, so render.Render can dispatch over it exhaustively.
type Plan interface {
	planNode()
}

// RowDiff is one row of a constant collection.
type RowDiff struct {
	Row  []byte
	Diff int64
}

// Constant is a fixed multiset of rows at the minimum time, plus any
// constant errors.
type Constant struct {
	Rows   []RowDiff
	Errors []ConstError
}

// ConstError is a constant error row, carried alongside Constant.Rows.
type ConstError struct {
	Key []byte
	Err error
}

func (*Constant) planNode() {}

// Get resolves a previously bound identifier, a Let/LetRec binding or a
// global import, to its rendered collection.
type Get struct {
	Ident string
}

func (*Get) planNode() {}

// Let binds Ident to the rendered result of Value for the scope of Body.
type Let struct {
	Ident string
	Value Plan
	Body  Plan
}

func (*Let) planNode() {}

// IterLimit bounds a LetRec binding's iteration count.
type IterLimit struct {
	MaxIters      uint64
	ReturnAtLimit bool
}

// LetRec binds Idents[i] to Values[i] simultaneously, in a scope where
// each Values[i] may reference any Idents[j] via Get, including itself,
// then continues with Body once the fixed point (or iteration limit) is
// reached for every binding.
type LetRec struct {
	Idents []string
	Values []Plan
	Limits []*IterLimit // parallel to Idents; nil entry means unbounded
	Body   Plan
}

func (*LetRec) planNode() {}

// Mfp ("map-filter-project") evaluates Eval over every input row. Eval
// returns keep=false to drop a row, or a non-nil error to route it to
// the error stream instead of the ok stream.
type Mfp struct {
	Input Plan
	Eval  func(row []byte) (out []byte, keep bool, err error)
}

func (*Mfp) planNode() {}

// FlatMap evaluates Eval over every input row, emitting zero or more
// output rows per input row with the same per-row error semantics as
// Mfp.
type FlatMap struct {
	Input Plan
	Eval  func(row []byte) (out [][]byte, err error)
}

func (*FlatMap) planNode() {}

// JoinKind names the join strategy requested by the plan. Delta's
// optimized multi-way strategy is out of scope here; the renderer lowers
// it identically to Linear, and DESIGN.md documents the simplification.
type JoinKind int

const (
	JoinLinear JoinKind = iota
	JoinDelta
)

// Join lowers to the linear join core. An N-way join is expressed by
// nesting Join nodes left-to-right (Left may itself be a *Join), chaining
// pairwise linear joins for more than two inputs.
type Join struct {
	Left, Right       Plan
	LeftKey, RightKey func(row []byte) []byte
	// Logic combines one matched (leftVal, rightVal) pair under a shared
	// key into an output row, or reports an error for that pair.
	Logic func(key, leftVal, rightVal []byte) (out []byte, err error)
	Kind  JoinKind
}

func (*Join) planNode() {}

// Reduce groups Input by KeyOf and folds each group's rows with Step,
// starting from Init, finishing with Finish once a group is complete.
// This stands in for the optimizer-chosen aggregate expression, which is
// out of scope here.
type Reduce struct {
	Input  Plan
	KeyOf  func(row []byte) []byte
	Init   func() any
	Step   func(acc any, row []byte, diff int64) any
	Finish func(key []byte, acc any) (row []byte, diff int64, ok bool)
}

func (*Reduce) planNode() {}

// TopK keeps, per group (as defined by KeyOf), at most Limit rows in the
// order defined by Less, over the same arrange-by-key substrate as
// Reduce.
type TopK struct {
	Input Plan
	KeyOf func(row []byte) []byte
	Limit int
	Less  func(a, b []byte) bool
}

func (*TopK) planNode() {}

// Negate flips the sign of every diff; forwards errors unchanged.
type Negate struct {
	Input Plan
}

func (*Negate) planNode() {}

// Threshold drops rows whose cumulative diff is <= 0.
type Threshold struct {
	Input Plan
}

func (*Threshold) planNode() {}

// Union concatenates the oks and errs of every input.
type Union struct {
	Inputs []Plan
}

func (*Union) planNode() {}

// ArrangeBy re-keys each row of the collection by KeyOf without
// otherwise transforming it. Join's lowering does not read these keys: it
// builds its own traces from LeftKey and RightKey.
type ArrangeBy struct {
	Input Plan
	KeyOf func(row []byte) []byte
}

func (*ArrangeBy) planNode() {}
