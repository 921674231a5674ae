package ia32

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/options"
)

// maxPrefixes limits the number of prefix bytes before an opcode.
const maxPrefixes = 16

var (
	// ErrNoOpcode is returned if the bytes do not match any opcode.
	ErrNoOpcode = errors.New("no matching opcode")
	// ErrTooManyPrefixes is returned if an opcode is preceded by too many prefixes.
	ErrTooManyPrefixes = errors.New("too many prefixes")
	// ErrTruncated is returned if the input ends inside an instruction.
	ErrTruncated = errors.New("instruction truncated")
)

// DecodeError is returned for bytes that can not be decoded as an instruction.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding instruction at offset %d: %s", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder decodes IA-32 instructions. It is safe for concurrent use.
type Decoder struct {
	opts  options.Decoder
	table *Table
}

// NewDecoder returns a new decoder. Unset sizes default to 32 bits and an
// unset byte order to little endian.
func NewDecoder(opts options.Decoder) *Decoder {
	if opts.AddressSize == 0 {
		opts.AddressSize = 32
	}
	if opts.OperandSize == 0 {
		opts.OperandSize = 32
	}
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.LittleEndian
	}
	return &Decoder{
		opts:  opts,
		table: OpcodeTable(),
	}
}

// Options returns the decoder options.
func (d *Decoder) Options() options.Decoder {
	return d.opts
}

// Decode decodes the instruction at position pos of data. The address is the
// virtual address of the first byte and is used for relative branch targets
// and as origin of memory operands.
func (d *Decoder) Decode(data []byte, pos int, address uint64) (*Instruction, error) {
	if pos < 0 || pos >= len(data) {
		return nil, &DecodeError{Offset: pos, Err: ErrTruncated}
	}

	var pfx PrefixSet
	ptr := pos
	var op *Opcode
	for {
		if ptr >= len(data) {
			return nil, &DecodeError{Offset: pos, Err: ErrTruncated}
		}
		op = d.match(data[ptr:], &pfx)
		if op != nil {
			break
		}
		if !pfx.add(data[ptr]) {
			if d.partialMatch(data[ptr:]) {
				return nil, &DecodeError{Offset: pos, Err: ErrTruncated}
			}
			return nil, &DecodeError{Offset: pos, Err: ErrNoOpcode}
		}
		if len(pfx.List) > maxPrefixes {
			return nil, &DecodeError{Offset: pos, Err: ErrTooManyPrefixes}
		}
		ptr++
	}

	inst, err := d.decodeInstruction(data, pos, ptr, op, pfx, address)
	if err != nil {
		return nil, &DecodeError{Offset: pos, Err: err}
	}
	return inst, nil
}

func (d *Decoder) match(window []byte, pfx *PrefixSet) *Opcode {
	for _, op := range d.table.Candidates(window[0]) {
		if op.matches(window, pfx, d.opts.OperandSize, d.opts.AddressSize) {
			return op
		}
	}
	return nil
}

// partialMatch returns whether the window ends inside the opcode bytes of a
// candidate, so that more input could complete the instruction.
func (d *Decoder) partialMatch(window []byte) bool {
	for _, op := range d.table.Candidates(window[0]) {
		if len(op.Bin) <= len(window) {
			continue
		}
		matched := true
		for i, v := range window {
			if v&op.Mask[i] != op.Bin[i]&op.Mask[i] {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// operandContext contains the sizes that apply to all operands of an instruction.
type operandContext struct {
	op       *Opcode
	opBytes  []byte
	pfx      *PrefixSet
	opSize   int
	addrSize int
	vecSize  int
}

func (d *Decoder) decodeInstruction(data []byte, pos, ptr int, op *Opcode, pfx PrefixSet, address uint64) (*Instruction, error) {
	s := &stream{
		data:  data,
		ptr:   ptr + len(op.Bin),
		order: d.opts.ByteOrder,
	}

	baseOpSize := effectiveSize(d.opts.OperandSize, pfx.OperandSize)
	ctx := &operandContext{
		op:       op,
		opBytes:  data[ptr : ptr+len(op.Bin)],
		pfx:      &pfx,
		opSize:   baseOpSize,
		addrSize: effectiveSize(d.opts.AddressSize, pfx.AddressSize),
		vecSize:  64,
	}
	if w, ok := op.fieldValue(FieldW, ctx.opBytes); ok && w == 0 {
		ctx.opSize = 8
	}
	if op.Props.XMMX && pfx.OperandSize {
		ctx.vecSize = 128
	}

	args := make([]Operand, 0, len(op.Args))
	for _, kind := range op.Args {
		arg, err := d.decodeArg(s, ctx, kind)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	inst := &Instruction{
		opcode:   op,
		address:  address,
		length:   s.ptr - pos,
		bytes:    data[pos:s.ptr],
		args:     args,
		prefix:   pfx,
		rep:      repeatFor(op, pfx.Repeat),
		opSize:   ctx.opSize,
		addrSize: ctx.addrSize,
	}

	if op.Kind == KindMovsx || op.Kind == KindMovzx {
		fixupExtension(inst, ctx, baseOpSize)
	}
	if op.Props.SetIP && !inst.IsReturn() {
		resolveRelative(inst)
	}
	return inst, nil
}

func (d *Decoder) decodeArg(s *stream, ctx *operandContext, kind ArgKind) (Operand, error) {
	fieldOf := func(k ArgKind) int {
		v, _ := ctx.op.fieldValue(argFields[k], ctx.opBytes)
		return int(v)
	}
	modrmSize := ctx.opSize
	if ctx.op.Props.ArgSize != 0 {
		modrmSize = ctx.op.Props.ArgSize
	}

	switch kind {
	case ArgReg:
		return &Reg{Index: fieldOf(kind), Size: ctx.opSize}, nil
	case ArgEEEC:
		return &CtrlReg{Index: fieldOf(kind)}, nil
	case ArgEEED:
		return &DbgReg{Index: fieldOf(kind)}, nil
	case ArgSeg2, ArgSeg2A, ArgSeg3, ArgSeg3A:
		return &SegReg{Index: fieldOf(kind)}, nil
	case ArgRegFP:
		return &FpReg{Index: fieldOf(kind)}, nil
	case ArgRegMMX:
		return &SimdReg{Index: fieldOf(kind), Size: ctx.vecSize}, nil
	case ArgRegXMM:
		return &SimdReg{Index: fieldOf(kind), Size: 128}, nil

	case ArgFarPtr:
		offset, err := s.readImm(ctx.opSize/8, false)
		if err != nil {
			return nil, err
		}
		seg, err := s.readImm(2, false)
		if err != nil {
			return nil, err
		}
		return &FarPtr{Segment: expr.Const(seg), Offset: expr.Const(offset)}, nil

	case ArgI8, ArgU8, ArgU16, ArgImm:
		size, signed := 1, kind == ArgI8
		switch kind {
		case ArgU16:
			size = 2
		case ArgImm:
			size = ctx.opSize / 8
			signed = !ctx.op.Props.UnsignedImm
		}
		v, err := s.readImm(size, signed)
		if err != nil {
			return nil, err
		}
		return &Immediate{Value: expr.Const(v)}, nil

	case ArgMrmImm:
		rm := byte(5)
		if ctx.addrSize == 16 {
			rm = 6
		}
		return decodeModRM(s, rm, ctx.addrSize, ctx.opSize, ctx.pfx.Segment, generalRegister)

	case ArgModRM, ArgModRMA:
		return decodeModRM(s, byte(fieldOf(kind)), ctx.addrSize, modrmSize, ctx.pfx.Segment, generalRegister)
	case ArgModRMMMX:
		return decodeModRM(s, byte(fieldOf(kind)), ctx.addrSize, ctx.vecSize, ctx.pfx.Segment, simdRegister)
	case ArgModRMXMM:
		return decodeModRM(s, byte(fieldOf(kind)), ctx.addrSize, 128, ctx.pfx.Segment, simdRegister)

	case ArgImmVal1:
		return &Immediate{Value: expr.Const(1)}, nil
	case ArgImmVal3:
		return &Immediate{Value: expr.Const(3)}, nil
	case ArgRegCL:
		return &Reg{Index: 1, Size: 8}, nil
	case ArgRegEAX:
		return &Reg{Index: 0, Size: ctx.opSize}, nil
	case ArgRegDX:
		return &Reg{Index: 2, Size: 16}, nil
	case ArgRegFP0:
		return &FpReg{Index: 0, Implicit: true}, nil

	default:
		return nil, fmt.Errorf("unsupported argument kind %d", kind)
	}
}

// repeatFor reinterprets a raw repeat prefix for the string instruction it precedes.
// Prefixes on instructions that are not string instructions are dropped.
func repeatFor(op *Opcode, raw Repeat) Repeat {
	switch {
	case raw == RepZ && op.Props.StrOp:
		return Rep
	case raw == RepZ && op.Props.StrOpZ:
		return RepZ
	case raw == RepNZ && op.Props.StrOpZ:
		return RepNZ
	case raw == RepNZ && op.Props.StrOp:
		return Rep
	default:
		return RepNone
	}
}

// fixupExtension sets the operand sizes of movsx and movzx: the destination has
// the operand size, the source is 8 bits wide if the width bit is clear and
// 16 bits otherwise.
func fixupExtension(inst *Instruction, ctx *operandContext, opSize int) {
	srcSize := 16
	if w, ok := ctx.op.fieldValue(FieldW, ctx.opBytes); ok && w == 0 {
		srcSize = 8
	}

	if dst, ok := inst.args[0].(*Reg); ok {
		dst.Size = opSize
	}
	switch src := inst.args[1].(type) {
	case *Reg:
		src.Size = srcSize
	case *Memory:
		src.Size = srcSize
	}
	inst.opSize = opSize
}

// resolveRelative replaces the relative displacement of a branch by the
// absolute target address, truncated to the operand size.
func resolveRelative(inst *Instruction) {
	last := len(inst.args) - 1
	if last < 0 {
		return
	}
	imm, ok := inst.args[last].(*Immediate)
	if !ok {
		return
	}
	delta, ok := imm.Value.(expr.Const)
	if !ok {
		return
	}

	target := inst.address + uint64(inst.length) + uint64(int64(delta))
	if inst.opSize < 64 {
		target &= 1<<uint(inst.opSize) - 1
	}
	inst.args[last] = &Immediate{Value: expr.Const(int64(target))}
}
