package ia32

import (
	"strings"

	"github.com/retroenv/x86sem/internal/instruction"
)

var _ instruction.Instruction = (*Instruction)(nil)

// Instruction is a decoded instruction. It is immutable after decoding.
type Instruction struct {
	opcode   *Opcode
	address  uint64
	length   int
	bytes    []byte
	args     []Operand
	prefix   PrefixSet
	rep      Repeat
	opSize   int
	addrSize int
}

// Opcode returns the matched opcode descriptor.
func (i *Instruction) Opcode() *Opcode { return i.opcode }

// Address returns the address the instruction was decoded at.
func (i *Instruction) Address() uint64 { return i.address }

// Len returns the number of bytes consumed including prefixes.
func (i *Instruction) Len() int { return i.length }

// Bytes returns the raw instruction bytes.
func (i *Instruction) Bytes() []byte { return i.bytes }

// Args returns the decoded operands. The returned slice must not be modified.
func (i *Instruction) Args() []Operand { return i.args }

// Prefix returns the prefixes of the instruction.
func (i *Instruction) Prefix() PrefixSet { return i.prefix }

// Rep returns the repeat prefix after reinterpretation for the string instruction.
func (i *Instruction) Rep() Repeat { return i.rep }

// OpSize returns the effective operand size in bits.
func (i *Instruction) OpSize() int { return i.opSize }

// AddrSize returns the effective address size in bits.
func (i *Instruction) AddrSize() int { return i.addrSize }

// Kind returns the semantic kind of the instruction.
func (i *Instruction) Kind() Kind { return i.opcode.Kind }

// Name returns the mnemonic.
func (i *Instruction) Name() string { return i.opcode.Name }

// IsCall returns whether the instruction saves the return address.
func (i *Instruction) IsCall() bool { return i.opcode.Props.SaveIP }

// IsReturn returns whether the instruction returns from a function.
func (i *Instruction) IsReturn() bool {
	return i.opcode.Kind == KindRet || i.opcode.Kind == KindRetf
}

// IsJump returns whether the instruction is an unconditional or conditional jump.
func (i *Instruction) IsJump() bool {
	switch i.opcode.Kind {
	case KindJmp, KindJcc, KindJecxz:
		return true
	default:
		return false
	}
}

// SetsIP returns whether the instruction modifies the instruction pointer.
func (i *Instruction) SetsIP() bool { return i.opcode.Props.SetIP }

// StopsExecution returns whether execution does not continue after the instruction.
func (i *Instruction) StopsExecution() bool { return i.opcode.Props.StopExec }

// String returns the instruction in Intel syntax.
func (i *Instruction) String() string {
	var sb strings.Builder
	if i.prefix.Lock {
		sb.WriteString("lock ")
	}
	if i.rep != RepNone {
		sb.WriteString(i.rep.String())
		sb.WriteString(" ")
	}
	sb.WriteString(i.opcode.Name)

	written := 0
	for _, arg := range i.args {
		if r, ok := arg.(*FpReg); ok && r.Implicit {
			continue
		}
		if written == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
		written++
	}
	return sb.String()
}
