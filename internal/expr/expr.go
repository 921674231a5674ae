// Package expr implements the symbolic expressions that describe the state
// transformation of an instruction. Expressions are immutable values; the
// simplification performed by Reduce is limited to constant folding and linear
// normalization, the full algebra is provided by the analysis engine.
package expr

import (
	"fmt"
	"strings"
)

// Expr is a symbolic expression.
type Expr interface {
	fmt.Stringer

	isExpr()
}

// Operator is an arithmetic, bitwise, comparison or logical operator.
type Operator int

// Supported operators. Not and Neg are unary.
const (
	Add Operator = iota
	Sub
	Mul
	Div
	Mod
	And
	Or
	Xor
	Shl
	Shr
	Eq
	Ne
	Lt
	Gt
	LogAnd
	LogOr
	Not
	Neg
)

var operatorNames = [...]string{
	Add:    "+",
	Sub:    "-",
	Mul:    "*",
	Div:    "/",
	Mod:    "%",
	And:    "&",
	Or:     "|",
	Xor:    "^",
	Shl:    "<<",
	Shr:    ">>",
	Eq:     "==",
	Ne:     "!=",
	Lt:     "<",
	Gt:     ">",
	LogAnd: "&&",
	LogOr:  "||",
	Not:    "!",
	Neg:    "-",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Unary returns whether the operator takes a single operand.
func (o Operator) Unary() bool {
	return o == Not || o == Neg
}

// Const is an integer constant.
type Const int64

// Symbol names a register, a flag or a free variable.
type Symbol string

// Placeholder is a synthetic binding key that does not denote a real location.
// It is used to signal reads to the dataflow engine.
type Placeholder string

// Op is an operator applied to one or two operands. Left is nil for unary operators.
type Op struct {
	Left  Expr
	Op    Operator
	Right Expr
}

// Indirection is a memory access of Len bytes at the address Target.
// Origin is the address of the instruction performing the access, 0 if unknown.
type Indirection struct {
	Target Expr
	Len    int
	Origin uint64
}

type unknown struct{}

// Unknown is the sentinel for a value that is modified but can not be known.
var Unknown Expr = unknown{}

func (Const) isExpr()        {}
func (Symbol) isExpr()       {}
func (Placeholder) isExpr()  {}
func (*Op) isExpr()          {}
func (*Indirection) isExpr() {}
func (unknown) isExpr()      {}

// New returns the binary expression l op r.
func New(l Expr, op Operator, r Expr) *Op {
	return &Op{Left: l, Op: op, Right: r}
}

// Unary returns the unary expression op x.
func Unary(op Operator, x Expr) *Op {
	return &Op{Op: op, Right: x}
}

// Ind returns an indirection of size bytes at target.
func Ind(target Expr, size int, origin uint64) *Indirection {
	return &Indirection{Target: target, Len: size, Origin: origin}
}

// IsUnknown returns whether e is the Unknown sentinel.
func IsUnknown(e Expr) bool {
	_, ok := e.(unknown)
	return ok
}

func (c Const) String() string {
	v := int64(c)
	if v < 0 {
		return "-" + formatUint(uint64(-v))
	}
	return formatUint(uint64(v))
}

func formatUint(v uint64) string {
	if v < 10 {
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("0x%x", v)
}

func (s Symbol) String() string {
	return string(s)
}

func (p Placeholder) String() string {
	return "<" + string(p) + ">"
}

func (unknown) String() string {
	return "unknown"
}

func (o *Op) String() string {
	if o.Left == nil {
		return o.Op.String() + operandString(o.Right)
	}
	return operandString(o.Left) + " " + o.Op.String() + " " + operandString(o.Right)
}

func operandString(e Expr) string {
	if _, ok := e.(*Op); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

var sizeNames = map[int]string{
	1:  "byte",
	2:  "word",
	4:  "dword",
	8:  "qword",
	10: "tbyte",
	16: "oword",
}

func (i *Indirection) String() string {
	name, ok := sizeNames[i.Len]
	if !ok {
		name = fmt.Sprintf("mem%d", i.Len*8)
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString(" ptr [")
	sb.WriteString(i.Target.String())
	sb.WriteString("]")
	return sb.String()
}
