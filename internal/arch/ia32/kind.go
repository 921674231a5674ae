package ia32

// Kind classifies instructions for the semantic dispatch. Several mnemonics
// can share a kind, like the operand size variants cwd and cdq.
type Kind int

// Instruction kinds.
const (
	KindUnknown Kind = iota
	KindMov
	KindMovsx
	KindMovzx
	KindMovd
	KindMovq
	KindLea
	KindXchg
	KindAdd
	KindOr
	KindAdc
	KindSbb
	KindAnd
	KindSub
	KindXor
	KindCmp
	KindPxor
	KindTest
	KindInc
	KindDec
	KindNot
	KindNeg
	KindMul
	KindImul
	KindDiv
	KindIdiv
	KindRol
	KindRor
	KindRcl
	KindRcr
	KindShl
	KindSal
	KindShr
	KindSar
	KindShld
	KindShrd
	KindCbw
	KindCwd
	KindPush
	KindPop
	KindPushf
	KindPopf
	KindPusha
	KindPopa
	KindSahf
	KindLahf
	KindCall
	KindRet
	KindRetf
	KindJmp
	KindJcc
	KindJecxz
	KindLoop
	KindLoopz
	KindLoopnz
	KindEnter
	KindLeave
	KindBCDAdjust
	KindRdtsc
	KindCpuid
	KindMovs
	KindStos
	KindLods
	KindScas
	KindCmps
	KindIns
	KindOuts
	KindClc
	KindStc
	KindCmc
	KindCld
	KindStd
	KindCli
	KindSti
	KindSetalc
	KindSetcc
	KindCmovcc
	KindNop
	KindPause
	KindWait
	KindHlt
	KindInt
	KindInt3
	KindInto
	KindIn
	KindOut
	KindBswap
	KindBt
	KindBtModify // bts, btr, btc
	KindBitScan  // bsf, bsr
	KindXadd
	KindCmpxchg
	KindLoadFar // les, lds
	KindFPU
	kindCount
)
