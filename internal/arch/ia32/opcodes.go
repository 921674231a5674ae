package ia32

// propFlag sets boolean opcode properties in the table builder.
type propFlag int

const (
	pSetIP propFlag = 1 << iota
	pStop
	pSaveIP
	pStrOp
	pStrOpZ
	pXMMX
	pUnsigned
)

type builder struct {
	list []*Opcode
}

func (b *builder) add(name string, kind Kind, bin []byte, args ...ArgKind) *Opcode {
	op := &Opcode{
		Name:   name,
		Kind:   kind,
		Bin:    append([]byte(nil), bin...),
		Fields: map[Field]FieldPos{},
		Args:   args,
	}
	b.list = append(b.list, op)
	return op
}

// mrm adds an opcode followed by a ModRM byte whose reg part encodes a register argument.
func (b *builder) mrm(name string, kind Kind, bin []byte, args ...ArgKind) *Opcode {
	n := len(bin)
	op := b.add(name, kind, append(bin[:n:n], 0), args...)
	for _, arg := range args {
		switch arg {
		case ArgReg, ArgSeg3, ArgEEEC, ArgEEED, ArgRegMMX, ArgRegXMM:
			op.field(argFields[arg], n, 3)
		case ArgModRM, ArgModRMA, ArgModRMMMX, ArgModRMXMM:
			op.field(argFields[arg], n, 0)
		}
	}
	return op
}

// grp adds an opcode followed by a ModRM byte whose reg part is the opcode extension.
func (b *builder) grp(name string, kind Kind, bin []byte, ext byte, args ...ArgKind) *Opcode {
	n := len(bin)
	op := b.add(name, kind, append(bin[:n:n], ext<<3), args...)
	for _, arg := range args {
		switch arg {
		case ArgModRM, ArgModRMA, ArgModRMMMX, ArgModRMXMM:
			op.field(argFields[arg], n, 0)
		}
	}
	return op
}

// mrmw is mrm with a width bit in the last opcode byte.
func (b *builder) mrmw(name string, kind Kind, bin []byte, args ...ArgKind) *Opcode {
	return b.mrm(name, kind, bin, args...).field(FieldW, len(bin)-1, 0)
}

// grpw is grp with a width bit in the last opcode byte.
func (b *builder) grpw(name string, kind Kind, bin []byte, ext byte, args ...ArgKind) *Opcode {
	return b.grp(name, kind, bin, ext, args...).field(FieldW, len(bin)-1, 0)
}

func (op *Opcode) field(f Field, byteIndex, bit int) *Opcode {
	op.Fields[f] = FieldPos{Byte: byteIndex, Bit: bit}
	return op
}

func (op *Opcode) flags(f propFlag) *Opcode {
	p := &op.Props
	p.SetIP = p.SetIP || f&pSetIP != 0
	p.StopExec = p.StopExec || f&pStop != 0
	p.SaveIP = p.SaveIP || f&pSaveIP != 0
	p.StrOp = p.StrOp || f&pStrOp != 0
	p.StrOpZ = p.StrOpZ || f&pStrOpZ != 0
	p.XMMX = p.XMMX || f&pXMMX != 0
	p.UnsignedImm = p.UnsignedImm || f&pUnsigned != 0
	return op
}

func (op *Opcode) opsize(size int) *Opcode {
	op.Props.OpSize = size
	return op
}

func (op *Opcode) adsize(size int) *Opcode {
	op.Props.AddrSize = size
	return op
}

func (op *Opcode) argsize(size int) *Opcode {
	op.Props.ArgSize = size
	return op
}

func (op *Opcode) needPrefix(b byte) *Opcode {
	op.Props.NeedPrefix = b
	return op
}

func (op *Opcode) cond(c Cond) *Opcode {
	op.Cond = c
	return op
}

func (op *Opcode) strSize(size int) *Opcode {
	op.StrSize = size
	return op
}

// opcodeList returns the opcode descriptors in priority order. When several
// descriptors match the same bytes the first one wins.
func opcodeList() []*Opcode {
	b := &builder{}
	addArithmetic(b)
	addDataTransfer(b)
	addStack(b)
	addControlFlow(b)
	addShifts(b)
	addStrings(b)
	addMisc(b)
	addSIMD(b)
	addFPU(b)
	return b.list
}

func addArithmetic(b *builder) {
	alu := []struct {
		name string
		kind Kind
	}{
		{"add", KindAdd}, {"or", KindOr}, {"adc", KindAdc}, {"sbb", KindSbb},
		{"and", KindAnd}, {"sub", KindSub}, {"xor", KindXor}, {"cmp", KindCmp},
	}
	for i, a := range alu {
		// logic operations take their immediates zero extended
		var immFlags propFlag
		switch a.kind {
		case KindAnd, KindOr, KindXor:
			immFlags = pUnsigned
		}

		base := byte(i << 3)
		b.mrmw(a.name, a.kind, []byte{base}, ArgModRM, ArgReg)
		b.mrmw(a.name, a.kind, []byte{base | 2}, ArgReg, ArgModRM)
		b.add(a.name, a.kind, []byte{base | 4}, ArgRegEAX, ArgImm).field(FieldW, 0, 0).flags(immFlags)
		b.grpw(a.name, a.kind, []byte{0x80}, byte(i), ArgModRM, ArgImm).flags(immFlags)
		b.grp(a.name, a.kind, []byte{0x83}, byte(i), ArgModRM, ArgI8)
	}

	b.add("inc", KindInc, []byte{0x40}, ArgReg).field(FieldReg, 0, 0)
	b.add("dec", KindDec, []byte{0x48}, ArgReg).field(FieldReg, 0, 0)
	b.grpw("inc", KindInc, []byte{0xfe}, 0, ArgModRM)
	b.grpw("dec", KindDec, []byte{0xfe}, 1, ArgModRM)

	b.mrmw("test", KindTest, []byte{0x84}, ArgModRM, ArgReg)
	b.add("test", KindTest, []byte{0xa8}, ArgRegEAX, ArgImm).field(FieldW, 0, 0).flags(pUnsigned)
	b.grpw("test", KindTest, []byte{0xf6}, 0, ArgModRM, ArgImm).flags(pUnsigned)
	b.grpw("not", KindNot, []byte{0xf6}, 2, ArgModRM)
	b.grpw("neg", KindNeg, []byte{0xf6}, 3, ArgModRM)
	b.grpw("mul", KindMul, []byte{0xf6}, 4, ArgModRM)
	b.grpw("imul", KindImul, []byte{0xf6}, 5, ArgModRM)
	b.grpw("div", KindDiv, []byte{0xf6}, 6, ArgModRM)
	b.grpw("idiv", KindIdiv, []byte{0xf6}, 7, ArgModRM)

	b.mrm("imul", KindImul, []byte{0x0f, 0xaf}, ArgReg, ArgModRM)
	b.mrm("imul", KindImul, []byte{0x69}, ArgReg, ArgModRM, ArgImm)
	b.mrm("imul", KindImul, []byte{0x6b}, ArgReg, ArgModRM, ArgI8)

	b.add("cbw", KindCbw, []byte{0x98}).opsize(16)
	b.add("cwde", KindCbw, []byte{0x98}).opsize(32)
	b.add("cwd", KindCwd, []byte{0x99}).opsize(16)
	b.add("cdq", KindCwd, []byte{0x99}).opsize(32)

	b.add("aaa", KindBCDAdjust, []byte{0x37})
	b.add("aas", KindBCDAdjust, []byte{0x3f})
	b.add("daa", KindBCDAdjust, []byte{0x27})
	b.add("das", KindBCDAdjust, []byte{0x2f})
}

func addDataTransfer(b *builder) {
	b.mrmw("mov", KindMov, []byte{0x88}, ArgModRM, ArgReg)
	b.mrmw("mov", KindMov, []byte{0x8a}, ArgReg, ArgModRM)
	b.mrm("mov", KindMov, []byte{0x8c}, ArgModRM, ArgSeg3).argsize(16)
	b.mrm("mov", KindMov, []byte{0x8e}, ArgSeg3, ArgModRM).argsize(16)
	b.add("mov", KindMov, []byte{0xa0}, ArgRegEAX, ArgMrmImm).field(FieldW, 0, 0)
	b.add("mov", KindMov, []byte{0xa2}, ArgMrmImm, ArgRegEAX).field(FieldW, 0, 0)
	b.add("mov", KindMov, []byte{0xb0}, ArgReg, ArgImm).field(FieldW, 0, 3).field(FieldReg, 0, 0)
	b.grpw("mov", KindMov, []byte{0xc6}, 0, ArgModRM, ArgImm)
	b.mrm("mov", KindMov, []byte{0x0f, 0x20}, ArgModRM, ArgEEEC).argsize(32)
	b.mrm("mov", KindMov, []byte{0x0f, 0x21}, ArgModRM, ArgEEED).argsize(32)
	b.mrm("mov", KindMov, []byte{0x0f, 0x22}, ArgEEEC, ArgModRM).argsize(32)
	b.mrm("mov", KindMov, []byte{0x0f, 0x23}, ArgEEED, ArgModRM).argsize(32)

	b.mrmw("movzx", KindMovzx, []byte{0x0f, 0xb6}, ArgReg, ArgModRM)
	b.mrmw("movsx", KindMovsx, []byte{0x0f, 0xbe}, ArgReg, ArgModRM)
	b.mrm("lea", KindLea, []byte{0x8d}, ArgReg, ArgModRMA)

	b.add("pause", KindPause, []byte{0x90}).needPrefix(0xf3)
	b.add("nop", KindNop, []byte{0x90})
	b.add("xchg", KindXchg, []byte{0x90}, ArgReg, ArgRegEAX).field(FieldReg, 0, 0)
	b.mrmw("xchg", KindXchg, []byte{0x86}, ArgModRM, ArgReg)

	for cc := Cond(0); cc < 16; cc++ {
		b.mrm("cmov"+cc.String(), KindCmovcc, []byte{0x0f, 0x40 | byte(cc)}, ArgReg, ArgModRM).cond(cc)
	}

	b.add("bswap", KindBswap, []byte{0x0f, 0xc8}, ArgReg).field(FieldReg, 1, 0)
	b.mrmw("xadd", KindXadd, []byte{0x0f, 0xc0}, ArgModRM, ArgReg)
	b.mrmw("cmpxchg", KindCmpxchg, []byte{0x0f, 0xb0}, ArgModRM, ArgReg)
	b.mrm("les", KindLoadFar, []byte{0xc4}, ArgReg, ArgModRMA)
	b.mrm("lds", KindLoadFar, []byte{0xc5}, ArgReg, ArgModRMA)

	b.add("in", KindIn, []byte{0xe4}, ArgRegEAX, ArgU8).field(FieldW, 0, 0)
	b.add("out", KindOut, []byte{0xe6}, ArgU8, ArgRegEAX).field(FieldW, 0, 0)
	b.add("in", KindIn, []byte{0xec}, ArgRegEAX, ArgRegDX).field(FieldW, 0, 0)
	b.add("out", KindOut, []byte{0xee}, ArgRegDX, ArgRegEAX).field(FieldW, 0, 0)
}

func addStack(b *builder) {
	b.add("push", KindPush, []byte{0x50}, ArgReg).field(FieldReg, 0, 0)
	b.add("pop", KindPop, []byte{0x58}, ArgReg).field(FieldReg, 0, 0)
	b.add("push", KindPush, []byte{0x68}, ArgImm)
	b.add("push", KindPush, []byte{0x6a}, ArgI8)
	b.grp("push", KindPush, []byte{0xff}, 6, ArgModRM)
	b.grp("pop", KindPop, []byte{0x8f}, 0, ArgModRM)

	b.add("push", KindPush, []byte{0x06}, ArgSeg2).field(FieldSeg2, 0, 3)
	b.add("pop", KindPop, []byte{0x07}, ArgSeg2A).field(FieldSeg2A, 0, 3)
	b.add("push", KindPush, []byte{0x0f, 0x80}, ArgSeg3A).field(FieldSeg3A, 1, 3)
	b.add("pop", KindPop, []byte{0x0f, 0x81}, ArgSeg3A).field(FieldSeg3A, 1, 3)

	b.add("pushf", KindPushf, []byte{0x9c}).opsize(16)
	b.add("pushfd", KindPushf, []byte{0x9c}).opsize(32)
	b.add("popf", KindPopf, []byte{0x9d}).opsize(16)
	b.add("popfd", KindPopf, []byte{0x9d}).opsize(32)
	b.add("pusha", KindPusha, []byte{0x60}).opsize(16)
	b.add("pushad", KindPusha, []byte{0x60}).opsize(32)
	b.add("popa", KindPopa, []byte{0x61}).opsize(16)
	b.add("popad", KindPopa, []byte{0x61}).opsize(32)

	b.add("enter", KindEnter, []byte{0xc8}, ArgU16, ArgU8)
	b.add("leave", KindLeave, []byte{0xc9})
}

func addControlFlow(b *builder) {
	b.add("jmp", KindJmp, []byte{0xeb}, ArgI8).flags(pSetIP | pStop)
	b.add("jmp", KindJmp, []byte{0xe9}, ArgImm).flags(pSetIP | pStop)
	b.grp("jmp", KindJmp, []byte{0xff}, 4, ArgModRM).flags(pSetIP | pStop)
	b.add("jmp", KindJmp, []byte{0xea}, ArgFarPtr).flags(pSetIP | pStop)

	b.add("call", KindCall, []byte{0xe8}, ArgImm).flags(pSetIP | pSaveIP)
	b.grp("call", KindCall, []byte{0xff}, 2, ArgModRM).flags(pSetIP | pSaveIP)
	b.add("call", KindCall, []byte{0x9a}, ArgFarPtr).flags(pSetIP | pSaveIP)

	b.add("ret", KindRet, []byte{0xc3}).flags(pSetIP | pStop)
	b.add("ret", KindRet, []byte{0xc2}, ArgU16).flags(pSetIP | pStop)
	b.add("retf", KindRetf, []byte{0xcb}).flags(pSetIP | pStop)
	b.add("retf", KindRetf, []byte{0xca}, ArgU16).flags(pSetIP | pStop)

	for cc := Cond(0); cc < 16; cc++ {
		b.add("j"+cc.String(), KindJcc, []byte{0x70 | byte(cc)}, ArgI8).flags(pSetIP).cond(cc)
		b.add("j"+cc.String(), KindJcc, []byte{0x0f, 0x80 | byte(cc)}, ArgImm).flags(pSetIP).cond(cc)
	}

	b.add("jcxz", KindJecxz, []byte{0xe3}, ArgI8).flags(pSetIP).adsize(16)
	b.add("jecxz", KindJecxz, []byte{0xe3}, ArgI8).flags(pSetIP).adsize(32)
	b.add("loop", KindLoop, []byte{0xe2}, ArgI8).flags(pSetIP)
	b.add("loopz", KindLoopz, []byte{0xe1}, ArgI8).flags(pSetIP)
	b.add("loopnz", KindLoopnz, []byte{0xe0}, ArgI8).flags(pSetIP)

	b.add("int3", KindInt3, []byte{0xcc})
	b.add("int", KindInt, []byte{0xcd}, ArgU8)
	b.add("into", KindInto, []byte{0xce})
	b.add("hlt", KindHlt, []byte{0xf4}).flags(pStop)
}

func addShifts(b *builder) {
	shifts := []struct {
		name string
		kind Kind
	}{
		{"rol", KindRol}, {"ror", KindRor}, {"rcl", KindRcl}, {"rcr", KindRcr},
		{"shl", KindShl}, {"shr", KindShr}, {"sal", KindSal}, {"sar", KindSar},
	}
	for i, s := range shifts {
		ext := byte(i)
		b.grpw(s.name, s.kind, []byte{0xd0}, ext, ArgModRM, ArgImmVal1)
		b.grpw(s.name, s.kind, []byte{0xd2}, ext, ArgModRM, ArgRegCL)
		b.grpw(s.name, s.kind, []byte{0xc0}, ext, ArgModRM, ArgU8)
	}

	bits := []struct {
		name string
		kind Kind
	}{
		{"bt", KindBt}, {"bts", KindBtModify}, {"btr", KindBtModify}, {"btc", KindBtModify},
	}
	for i, bt := range bits {
		b.mrm(bt.name, bt.kind, []byte{0x0f, 0xa3 | byte(i<<3)}, ArgModRM, ArgReg)
		b.grp(bt.name, bt.kind, []byte{0x0f, 0xba}, byte(4+i), ArgModRM, ArgU8)
	}
	b.mrm("bsf", KindBitScan, []byte{0x0f, 0xbc}, ArgReg, ArgModRM)
	b.mrm("bsr", KindBitScan, []byte{0x0f, 0xbd}, ArgReg, ArgModRM)

	b.mrm("shld", KindShld, []byte{0x0f, 0xa4}, ArgModRM, ArgReg, ArgU8)
	b.mrm("shld", KindShld, []byte{0x0f, 0xa5}, ArgModRM, ArgReg, ArgRegCL)
	b.mrm("shrd", KindShrd, []byte{0x0f, 0xac}, ArgModRM, ArgReg, ArgU8)
	b.mrm("shrd", KindShrd, []byte{0x0f, 0xad}, ArgModRM, ArgReg, ArgRegCL)
}

func addStrings(b *builder) {
	ops := []struct {
		name  string
		kind  Kind
		op    byte
		flags propFlag
	}{
		{"movs", KindMovs, 0xa4, pStrOp},
		{"cmps", KindCmps, 0xa6, pStrOpZ},
		{"stos", KindStos, 0xaa, pStrOp},
		{"lods", KindLods, 0xac, pStrOp},
		{"scas", KindScas, 0xae, pStrOpZ},
		{"ins", KindIns, 0x6c, pStrOp},
		{"outs", KindOuts, 0x6e, pStrOp},
	}
	for _, s := range ops {
		b.add(s.name+"b", s.kind, []byte{s.op}).flags(s.flags).strSize(1)
		b.add(s.name+"w", s.kind, []byte{s.op | 1}).flags(s.flags).strSize(2).opsize(16)
		b.add(s.name+"d", s.kind, []byte{s.op | 1}).flags(s.flags).strSize(4).opsize(32)
	}
}

func addMisc(b *builder) {
	fixed := []struct {
		name string
		kind Kind
		bin  []byte
	}{
		{"wait", KindWait, []byte{0x9b}},
		{"sahf", KindSahf, []byte{0x9e}},
		{"lahf", KindLahf, []byte{0x9f}},
		{"cmc", KindCmc, []byte{0xf5}},
		{"clc", KindClc, []byte{0xf8}},
		{"stc", KindStc, []byte{0xf9}},
		{"cli", KindCli, []byte{0xfa}},
		{"sti", KindSti, []byte{0xfb}},
		{"cld", KindCld, []byte{0xfc}},
		{"std", KindStd, []byte{0xfd}},
		{"setalc", KindSetalc, []byte{0xd6}},
		{"rdtsc", KindRdtsc, []byte{0x0f, 0x31}},
		{"cpuid", KindCpuid, []byte{0x0f, 0xa2}},
	}
	for _, f := range fixed {
		b.add(f.name, f.kind, f.bin)
	}

	for cc := Cond(0); cc < 16; cc++ {
		b.grp("set"+cc.String(), KindSetcc, []byte{0x0f, 0x90 | byte(cc)}, 0, ArgModRM).argsize(8).cond(cc)
	}
}

func addSIMD(b *builder) {
	b.mrm("movd", KindMovd, []byte{0x0f, 0x6e}, ArgRegMMX, ArgModRM).flags(pXMMX).argsize(32)
	b.mrm("movd", KindMovd, []byte{0x0f, 0x7e}, ArgModRM, ArgRegMMX).flags(pXMMX).argsize(32)
	b.mrm("movq", KindMovq, []byte{0x0f, 0x6f}, ArgRegMMX, ArgModRMMMX).flags(pXMMX)
	b.mrm("movq", KindMovq, []byte{0x0f, 0x7f}, ArgModRMMMX, ArgRegMMX).flags(pXMMX)
	b.mrm("pxor", KindPxor, []byte{0x0f, 0xef}, ArgRegMMX, ArgModRMMMX).flags(pXMMX)
}

func addFPU(b *builder) {
	b.grp("fld", KindFPU, []byte{0xd9}, 0, ArgModRMA).argsize(32)
	b.grp("fst", KindFPU, []byte{0xd9}, 2, ArgModRMA).argsize(32)
	b.grp("fstp", KindFPU, []byte{0xd9}, 3, ArgModRMA).argsize(32)
	b.grp("fild", KindFPU, []byte{0xdb}, 0, ArgModRMA).argsize(32)
	b.grp("fistp", KindFPU, []byte{0xdb}, 3, ArgModRMA).argsize(32)
	b.add("fld", KindFPU, []byte{0xd9, 0xc0}, ArgRegFP).field(FieldRegFP, 1, 0)
	b.add("fxch", KindFPU, []byte{0xd9, 0xc8}, ArgRegFP).field(FieldRegFP, 1, 0)
	b.add("fadd", KindFPU, []byte{0xd8, 0xc0}, ArgRegFP0, ArgRegFP).field(FieldRegFP, 1, 0)
	b.add("fmul", KindFPU, []byte{0xd8, 0xc8}, ArgRegFP0, ArgRegFP).field(FieldRegFP, 1, 0)
	b.add("fld1", KindFPU, []byte{0xd9, 0xe8})
	b.add("fldz", KindFPU, []byte{0xd9, 0xee})
	b.add("fninit", KindFPU, []byte{0xdb, 0xe3})
}
