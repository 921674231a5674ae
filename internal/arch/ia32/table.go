package ia32

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMalformedDescriptor is the panic value wrapped when the opcode table
// contains an inconsistent descriptor.
var ErrMalformedDescriptor = errors.New("malformed opcode descriptor")

// Props contains the behavior properties of an opcode.
type Props struct {
	SetIP       bool // modifies the instruction pointer
	StopExec    bool // execution does not continue with the next instruction
	SaveIP      bool // pushes the return address
	StrOp       bool // string instruction repeatable with rep
	StrOpZ      bool // string instruction repeatable with repz/repnz
	XMMX        bool // MMX registers become XMM registers with a operand size prefix
	UnsignedImm bool // immediates are zero extended
	OpSize      int  // required effective operand size, 0 for any
	AddrSize    int  // required effective address size, 0 for any
	ArgSize     int  // fixed size of ModRM operands, 0 for operand size
	NeedPrefix  byte // required prefix byte, 0 for none
}

// Opcode describes the binary encoding of an instruction.
type Opcode struct {
	Name    string
	Kind    Kind
	Bin     []byte
	Mask    []byte // bits of Bin that are fixed, computed from the fields
	Fields  map[Field]FieldPos
	Props   Props
	Args    []ArgKind
	Cond    Cond // condition of conditional instructions
	StrSize int  // element size of string instructions in bytes
}

// Table is the opcode table with its first byte dispatch.
type Table struct {
	opcodes []*Opcode
	byFirst [256][]*Opcode
}

var (
	tableOnce sync.Once
	table     *Table
)

// OpcodeTable returns the shared opcode table. It is built once on first use
// and read only afterwards.
func OpcodeTable() *Table {
	tableOnce.Do(func() {
		table = buildTable(opcodeList())
	})
	return table
}

// Opcodes returns all descriptors in priority order.
func (t *Table) Opcodes() []*Opcode {
	return t.opcodes
}

// Candidates returns the descriptors whose first byte can match b, in priority order.
func (t *Table) Candidates(b byte) []*Opcode {
	return t.byFirst[b]
}

func buildTable(list []*Opcode) *Table {
	t := &Table{opcodes: list}
	for _, op := range list {
		buildMask(op)

		b, m := op.Bin[0], op.Mask[0]
		for i := 0; i < 256; i++ {
			if byte(i)&m == b&m {
				t.byFirst[i] = append(t.byFirst[i], op)
			}
		}
	}
	return t
}

// buildMask computes the fixed bit mask of an opcode from its fields and
// validates the descriptor.
func buildMask(op *Opcode) {
	if len(op.Bin) == 0 {
		panic(fmt.Errorf("%w: %s has no opcode bytes", ErrMalformedDescriptor, op.Name))
	}

	free := make([]byte, len(op.Bin))
	for f, pos := range op.Fields {
		if pos.Byte < 0 || pos.Byte >= len(op.Bin) {
			panic(fmt.Errorf("%w: %s field %s outside of opcode bytes", ErrMalformedDescriptor, op.Name, f))
		}
		bits := int(fieldMasks[f]) << pos.Bit
		if bits > 0xff {
			panic(fmt.Errorf("%w: %s field %s exceeds its byte", ErrMalformedDescriptor, op.Name, f))
		}
		if free[pos.Byte]&byte(bits) != 0 {
			panic(fmt.Errorf("%w: %s field %s overlaps another field", ErrMalformedDescriptor, op.Name, f))
		}
		free[pos.Byte] |= byte(bits)
	}

	op.Mask = make([]byte, len(op.Bin))
	for i, bits := range free {
		if op.Bin[i]&bits != 0 {
			panic(fmt.Errorf("%w: %s sets bits inside a field", ErrMalformedDescriptor, op.Name))
		}
		op.Mask[i] = ^bits
	}

	for _, arg := range op.Args {
		f, ok := argFields[arg]
		if !ok {
			continue
		}
		if _, ok := op.Fields[f]; !ok {
			panic(fmt.Errorf("%w: %s argument needs field %s", ErrMalformedDescriptor, op.Name, f))
		}
	}
}

// fieldValue extracts a field from the opcode bytes.
func (op *Opcode) fieldValue(f Field, bytes []byte) (byte, bool) {
	pos, ok := op.Fields[f]
	if !ok {
		return 0, false
	}
	return (bytes[pos.Byte] >> pos.Bit) & fieldMasks[f], true
}

// matches returns whether the opcode matches the bytes at the start of window
// given the prefixes seen so far.
func (op *Opcode) matches(window []byte, pfx *PrefixSet, defaultOpSize, defaultAddrSize int) bool {
	if len(window) < len(op.Bin) {
		return false
	}
	for i, b := range op.Bin {
		if window[i]&op.Mask[i] != b&op.Mask[i] {
			return false
		}
	}

	if v, ok := op.fieldValue(FieldSeg2A, window); ok && v == 1 {
		return false
	}
	if v, ok := op.fieldValue(FieldSeg3A, window); ok && v < 4 {
		return false
	}
	for _, f := range [...]Field{FieldSeg3, FieldSeg3A} {
		if v, ok := op.fieldValue(f, window); ok && v > 5 {
			return false
		}
	}
	if v, ok := op.fieldValue(FieldModRMA, window); ok && v>>6 == 3 {
		return false
	}

	if op.Props.OpSize != 0 && effectiveSize(defaultOpSize, pfx.OperandSize) != op.Props.OpSize {
		return false
	}
	if op.Props.AddrSize != 0 && effectiveSize(defaultAddrSize, pfx.AddressSize) != op.Props.AddrSize {
		return false
	}
	if op.Props.NeedPrefix != 0 && !pfx.Has(op.Props.NeedPrefix) {
		return false
	}
	return true
}

// effectiveSize toggles between 16 and 32 bits if a size override prefix is present.
func effectiveSize(size int, override bool) int {
	if override {
		return 48 - size
	}
	return size
}
