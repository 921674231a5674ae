package ia32

import (
	"fmt"
	"strings"

	"github.com/retroenv/x86sem/internal/expr"
)

// Operand is a decoded instruction argument.
type Operand interface {
	fmt.Stringer

	isOperand()
}

// Reg is a general purpose register of 8, 16 or 32 bits.
type Reg struct {
	Index int
	Size  int
}

// CtrlReg is a control register.
type CtrlReg struct {
	Index int
}

// DbgReg is a debug register.
type DbgReg struct {
	Index int
}

// SegReg is a segment register.
type SegReg struct {
	Index int
}

// FpReg is a floating point stack register. Implicit marks an operand that is
// not encoded in the instruction.
type FpReg struct {
	Index    int
	Implicit bool
}

// SimdReg is a MMX (64 bit) or XMM (128 bit) register.
type SimdReg struct {
	Index int
	Size  int
}

// Memory is a memory operand decoded from a ModRM/SIB encoding.
type Memory struct {
	Segment  *SegReg
	Base     *Reg
	Index    *Reg
	Scale    int
	Disp     expr.Expr
	AddrSize int
	Size     int
}

// Immediate is a constant operand.
type Immediate struct {
	Value expr.Expr
}

// FarPtr is a segment:offset pointer operand.
type FarPtr struct {
	Segment expr.Expr
	Offset  expr.Expr
}

func (*Reg) isOperand()       {}
func (*CtrlReg) isOperand()   {}
func (*DbgReg) isOperand()    {}
func (*SegReg) isOperand()    {}
func (*FpReg) isOperand()     {}
func (*SimdReg) isOperand()   {}
func (*Memory) isOperand()    {}
func (*Immediate) isOperand() {}
func (*FarPtr) isOperand()    {}

func (r *Reg) String() string {
	switch r.Size {
	case 8:
		return regNames8[r.Index&7]
	case 16:
		return regNames16[r.Index&7]
	default:
		return string(registerSymbols[r.Index&7])
	}
}

// Symbolic returns the expression of the register value. Partial registers are
// expressed as a masked part of their 32 bit register.
func (r *Reg) Symbolic() expr.Expr {
	switch r.Size {
	case 8:
		if r.Index < 4 {
			return expr.New(registerSymbols[r.Index], expr.And, expr.Const(0xff))
		}
		high := expr.New(registerSymbols[r.Index-4], expr.Shr, expr.Const(8))
		return expr.New(high, expr.And, expr.Const(0xff))
	case 16:
		return expr.New(registerSymbols[r.Index&7], expr.And, expr.Const(0xffff))
	default:
		return registerSymbols[r.Index&7]
	}
}

func (r *CtrlReg) String() string {
	return fmt.Sprintf("cr%d", r.Index)
}

func (r *DbgReg) String() string {
	return fmt.Sprintf("dr%d", r.Index)
}

func (r *SegReg) String() string {
	return segNames[r.Index&7]
}

func (r *FpReg) String() string {
	return fmt.Sprintf("st(%d)", r.Index)
}

func (r *SimdReg) String() string {
	if r.Size == 128 {
		return fmt.Sprintf("xmm%d", r.Index)
	}
	return fmt.Sprintf("mm%d", r.Index)
}

// Target returns the address expression of the memory operand.
func (m *Memory) Target() expr.Expr {
	var parts []expr.Expr
	if m.Base != nil {
		parts = append(parts, m.Base.Symbolic())
	}
	if m.Index != nil {
		var index expr.Expr = m.Index.Symbolic()
		if m.Scale != 1 {
			index = expr.New(index, expr.Mul, expr.Const(m.Scale))
		}
		parts = append(parts, index)
	}
	if m.Disp != nil {
		parts = append(parts, m.Disp)
	}
	if len(parts) == 0 {
		return expr.Const(0)
	}

	target := parts[0]
	for _, part := range parts[1:] {
		target = expr.New(target, expr.Add, part)
	}
	return target
}

// Symbolic returns the indirection accessed by the operand. The origin is the
// address of the instruction that performs the access.
func (m *Memory) Symbolic(origin uint64) *expr.Indirection {
	size := m.Size / 8
	if size == 0 {
		size = 4
	}
	return expr.Ind(m.Target(), size, origin)
}

var ptrNames = map[int]string{
	8:   "byte",
	16:  "word",
	32:  "dword",
	64:  "qword",
	80:  "tbyte",
	128: "oword",
}

func (m *Memory) String() string {
	var sb strings.Builder
	if name, ok := ptrNames[m.Size]; ok {
		sb.WriteString(name)
		sb.WriteString(" ptr ")
	}
	if m.Segment != nil {
		sb.WriteString(m.Segment.String())
		sb.WriteString(":")
	}
	sb.WriteString("[")

	var parts []string
	if m.Base != nil {
		parts = append(parts, m.Base.String())
	}
	if m.Index != nil {
		if m.Scale != 1 {
			parts = append(parts, fmt.Sprintf("%s*%d", m.Index, m.Scale))
		} else {
			parts = append(parts, m.Index.String())
		}
	}
	disp := ""
	if m.Disp != nil {
		disp = m.Disp.String()
	}
	switch {
	case len(parts) == 0:
		sb.WriteString(disp)
	case disp == "" || disp == "0":
		sb.WriteString(strings.Join(parts, "+"))
	case strings.HasPrefix(disp, "-"):
		sb.WriteString(strings.Join(parts, "+") + disp)
	default:
		sb.WriteString(strings.Join(parts, "+") + "+" + disp)
	}

	sb.WriteString("]")
	return sb.String()
}

func (i *Immediate) String() string {
	return i.Value.String()
}

func (f *FarPtr) String() string {
	return fmt.Sprintf("%s:%s", f.Segment, f.Offset)
}
