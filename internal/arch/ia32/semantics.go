package ia32

import (
	"sync"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/expr"
)

// coreFunc returns the register and memory effect of an instruction.
type coreFunc func(c *bindContext) *expr.Binding

// flagFunc adds the flag effect of an instruction to the core binding.
type flagFunc func(c *bindContext, b *expr.Binding)

type semantic struct {
	core  coreFunc
	flags flagFunc
}

var (
	semanticsOnce sync.Once
	semanticTable [kindCount]semantic
)

// bindContext contains the decoded instruction and its symbolic arguments.
type bindContext struct {
	inst  *Instruction
	block arch.Block
	args  []expr.Expr
	width int
}

func (c *bindContext) arg(i int) expr.Expr {
	if i < len(c.args) {
		return c.args[i]
	}
	return expr.Unknown
}

// mask returns the all ones value of the operand width.
func (c *bindContext) mask() expr.Const {
	return expr.Const(int64(widthMask(c.width)))
}

// slot returns the size of a stack slot in bytes.
func (c *bindContext) slot() expr.Const {
	return expr.Const(c.width / 8)
}

func widthMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(width) - 1
}

// sign returns an expression that is true if the sign bit of v is set.
func (c *bindContext) sign(v expr.Expr) expr.Expr {
	masked := expr.New(v, expr.And, c.mask())
	bit := expr.New(masked, expr.Shr, expr.Const(c.width-1))
	return expr.New(bit, expr.Ne, expr.Const(0))
}

// Semantics computes the symbolic effect of decoded instructions.
type Semantics struct {
	logger        *log.Logger
	warnUnhandled bool
}

// NewSemantics returns a new semantics instance.
func NewSemantics(logger *log.Logger, warnUnhandled bool) *Semantics {
	return &Semantics{
		logger:        logger,
		warnUnhandled: warnUnhandled,
	}
}

// Effect returns the binding that describes the state transformation of the
// instruction. The block is used to determine the string direction flag and
// can be nil. Instructions without a registered semantic are assumed to
// modify only their first argument.
func (s *Semantics) Effect(inst *Instruction, block arch.Block) *expr.Binding {
	semanticsOnce.Do(initSemantics)

	c := &bindContext{
		inst:  inst,
		block: block,
		args:  symbolicArgs(inst),
		width: inst.OpSize(),
	}

	sem := semanticTable[inst.Kind()]
	if sem.core == nil {
		if s.warnUnhandled && s.logger != nil {
			s.logger.Warn("Unhandled instruction to backtrace",
				log.Hex("address", inst.Address()),
				log.String("instruction", inst.String()))
		}
		return fallbackBinding(inst, c.args)
	}

	b := sem.core(c)
	if sem.flags != nil {
		sem.flags(c, b)
	}
	return b
}

// symbolicArgs converts the operands to expressions. Memory operands become
// indirections originating at the instruction.
func symbolicArgs(inst *Instruction) []expr.Expr {
	args := make([]expr.Expr, 0, len(inst.args))
	for _, arg := range inst.args {
		args = append(args, operandExpr(arg, inst.Address()))
	}
	return args
}

func operandExpr(arg Operand, origin uint64) expr.Expr {
	switch a := arg.(type) {
	case *Memory:
		return a.Symbolic(origin)
	case *Reg:
		return a.Symbolic()
	case *Immediate:
		return a.Value
	case *FarPtr:
		return a.Offset
	default:
		return expr.Symbol(arg.String())
	}
}

// fallbackBinding marks the first argument as modified to an unknown value if
// it is a register or memory location.
func fallbackBinding(inst *Instruction, args []expr.Expr) *expr.Binding {
	b := expr.NewBinding()
	if len(inst.args) == 0 {
		return b
	}
	switch inst.args[0].(type) {
	case *Immediate, *FarPtr:
		return b
	}
	b.Set(args[0], expr.Unknown)
	return b
}

func binding(pairs ...expr.Expr) *expr.Binding {
	b := expr.NewBinding()
	for i := 0; i+1 < len(pairs); i += 2 {
		b.Set(pairs[i], pairs[i+1])
	}
	return b
}

func initSemantics() {
	t := &semanticTable
	set := func(core coreFunc, flags flagFunc, kinds ...Kind) {
		for _, k := range kinds {
			t[k] = semantic{core: core, flags: flags}
		}
	}

	set(bindMove, nil, KindMov, KindMovsx, KindMovzx, KindMovd, KindMovq)
	set(bindLea, nil, KindLea)
	set(bindXchg, nil, KindXchg)

	set(bindArithmetic(expr.Add, false), arithmeticFlags(expr.Add, false), KindAdd)
	set(bindArithmetic(expr.Add, true), arithmeticFlags(expr.Add, true), KindAdc)
	set(bindArithmetic(expr.Sub, false), arithmeticFlags(expr.Sub, false), KindSub)
	set(bindArithmetic(expr.Sub, true), arithmeticFlags(expr.Sub, true), KindSbb)
	set(bindArithmetic(expr.And, false), arithmeticFlags(expr.And, false), KindAnd)
	set(bindArithmetic(expr.Or, false), arithmeticFlags(expr.Or, false), KindOr)
	set(bindArithmetic(expr.Xor, false), arithmeticFlags(expr.Xor, false), KindXor)
	set(bindArithmetic(expr.Xor, false), nil, KindPxor)
	set(bindNothing, arithmeticFlags(expr.Sub, false), KindCmp)
	set(bindNothing, arithmeticFlags(expr.And, false), KindTest)

	set(bindIncDec(expr.Add), unaryFlags(KindInc), KindInc)
	set(bindIncDec(expr.Sub), unaryFlags(KindDec), KindDec)
	set(bindNot, nil, KindNot)
	set(bindNeg, unaryFlags(KindNeg), KindNeg)
	set(bindRotate(expr.Shl), unaryFlags(KindRol), KindRol)
	set(bindRotate(expr.Shr), unaryFlags(KindRor), KindRor)
	set(bindShift(expr.Shl), unaryFlags(KindShl), KindShl, KindSal)
	set(bindShift(expr.Shr), unaryFlags(KindSar), KindSar)
	set(bindShr, unaryFlags(KindShr), KindShr)
	set(bindUnknownFirst, unaryFlags(KindRcl), KindRcl, KindRcr, KindShld, KindShrd)
	set(bindNothing, unknownFlags, KindBt)
	set(bindUnknownFirst, unknownFlags, KindBtModify, KindBitScan)
	set(bindXadd, arithmeticFlags(expr.Add, false), KindXadd)
	set(bindCmpxchg, cmpxchgFlags, KindCmpxchg)
	set(bindMove, nil, KindLoadFar)

	set(bindMulDiv, unknownFlags, KindMul, KindDiv, KindIdiv)
	set(bindImul, unknownFlags, KindImul)
	set(bindSignExtendAcc, nil, KindCbw)
	set(bindSignExtendData, nil, KindCwd)
	set(bindUnknown(EAX), nil, KindBCDAdjust)
	set(bindUnknown(EAX, EDX), nil, KindRdtsc)
	set(bindUnknown(EAX, EBX, ECX, EDX), nil, KindCpuid)

	set(bindPush, nil, KindPush)
	set(bindPop, nil, KindPop)
	set(bindPushFlags, nil, KindPushf)
	set(bindPopFlags, nil, KindPopf)
	set(bindPushAll, nil, KindPusha)
	set(bindPopAll, nil, KindPopa)
	set(bindSahf, nil, KindSahf)
	set(bindLahf, nil, KindLahf)
	set(bindCall, nil, KindCall)
	set(bindReturn(1), nil, KindRet)
	set(bindReturn(2), nil, KindRetf)
	set(bindEnter, nil, KindEnter)
	set(bindLeave, nil, KindLeave)

	set(bindJump, nil, KindJmp, KindJcc, KindJecxz)
	set(bindLoop, nil, KindLoop, KindLoopz, KindLoopnz)

	set(bindMovs, nil, KindMovs)
	set(bindStos, nil, KindStos)
	set(bindLods, nil, KindLods)
	set(bindScas, stringCompareFlags, KindScas)
	set(bindCmps, stringCompareFlags, KindCmps)

	set(bindConst(FlagC, expr.Const(0)), nil, KindClc)
	set(bindConst(FlagC, expr.Const(1)), nil, KindStc)
	set(bindConst(FlagC, expr.Unary(expr.Not, FlagC)), nil, KindCmc)
	set(bindConst(FlagD, expr.Const(0)), nil, KindCld)
	set(bindConst(FlagD, expr.Const(1)), nil, KindStd)
	set(bindConst(EAX, expr.New(
		expr.New(EAX, expr.And, expr.Const(int64(0xffffff00))), expr.Or,
		expr.New(FlagC, expr.Mul, expr.Const(0xff)))), nil, KindSetalc)
	set(bindSetcc, nil, KindSetcc)
	set(bindNothing, nil, KindNop, KindPause, KindWait)
}

func bindNothing(*bindContext) *expr.Binding {
	return expr.NewBinding()
}

func bindMove(c *bindContext) *expr.Binding {
	return binding(c.arg(0), c.arg(1))
}

func bindLea(c *bindContext) *expr.Binding {
	if ind, ok := c.arg(1).(*expr.Indirection); ok {
		return binding(c.arg(0), ind.Target)
	}
	return binding(c.arg(0), expr.Unknown)
}

func bindXchg(c *bindContext) *expr.Binding {
	return binding(c.arg(0), c.arg(1), c.arg(1), c.arg(0))
}

// bindArithmetic returns the binding of a two operand arithmetic instruction.
// Results with a register destination are reduced, memory destinations keep
// the full expression so that the access stays visible.
func bindArithmetic(op expr.Operator, withCarry bool) coreFunc {
	return func(c *bindContext) *expr.Binding {
		a0 := c.arg(0)
		var res expr.Expr = expr.New(a0, op, c.arg(1))
		if withCarry {
			res = expr.New(res, op, FlagC)
		}
		if _, ok := a0.(*expr.Indirection); !ok {
			res = expr.Reduce(res)
		}
		return binding(a0, res)
	}
}

func bindIncDec(op expr.Operator) coreFunc {
	return func(c *bindContext) *expr.Binding {
		return binding(c.arg(0), expr.New(c.arg(0), op, expr.Const(1)))
	}
}

func bindNot(c *bindContext) *expr.Binding {
	return binding(c.arg(0), expr.New(c.arg(0), expr.Xor, c.mask()))
}

func bindNeg(c *bindContext) *expr.Binding {
	return binding(c.arg(0), expr.Unary(expr.Neg, c.arg(0)))
}

// bindRotate returns the binding of rol (Shl) and ror (Shr).
func bindRotate(op expr.Operator) coreFunc {
	inverse := expr.Shr
	if op == expr.Shr {
		inverse = expr.Shl
	}
	return func(c *bindContext) *expr.Binding {
		a0, a1 := c.arg(0), c.arg(1)
		width := expr.Const(c.width)
		count := expr.New(a1, expr.Mod, width)
		inverseCount := expr.New(expr.New(width, expr.Sub, a1), expr.Mod, width)
		rotated := expr.New(expr.New(a0, op, count), expr.Or, expr.New(a0, inverse, inverseCount))
		return binding(a0, expr.New(rotated, expr.And, c.mask()))
	}
}

// bindShift returns the binding of shl, sal and sar. The arithmetic shift is
// modeled as a logical shift.
func bindShift(op expr.Operator) coreFunc {
	return func(c *bindContext) *expr.Binding {
		a0 := c.arg(0)
		return binding(a0, expr.New(a0, op, expr.New(c.arg(1), expr.Mod, expr.Const(c.width))))
	}
}

func bindShr(c *bindContext) *expr.Binding {
	a0 := c.arg(0)
	masked := expr.New(a0, expr.And, c.mask())
	return binding(a0, expr.New(masked, expr.Shr, expr.New(c.arg(1), expr.Mod, expr.Const(c.width))))
}

func bindUnknownFirst(c *bindContext) *expr.Binding {
	return binding(c.arg(0), expr.Unknown)
}

// bindXadd exchanges both operands and stores their sum in the first.
func bindXadd(c *bindContext) *expr.Binding {
	a0, a1 := c.arg(0), c.arg(1)
	var sum expr.Expr = expr.New(a0, expr.Add, a1)
	if _, ok := a0.(*expr.Indirection); !ok {
		sum = expr.Reduce(sum)
	}
	return binding(a0, sum, a1, a0)
}

// bindCmpxchg marks the destination and the accumulator as modified, which of
// both is written depends on the comparison.
func bindCmpxchg(c *bindContext) *expr.Binding {
	return binding(c.arg(0), expr.Unknown, EAX, expr.Unknown)
}

func cmpxchgFlags(c *bindContext, b *expr.Binding) {
	compare := &bindContext{
		inst:  c.inst,
		block: c.block,
		args:  []expr.Expr{EAX, c.arg(0)},
		width: c.width,
	}
	arithmeticFlags(expr.Sub, false)(compare, b)
}

func bindUnknown(locs ...expr.Expr) coreFunc {
	return func(*bindContext) *expr.Binding {
		b := expr.NewBinding()
		for _, loc := range locs {
			b.Set(loc, expr.Unknown)
		}
		return b
	}
}

// bindMulDiv returns the binding of the one operand multiplications and
// divisions that write the accumulator and for wider operands edx.
func bindMulDiv(c *bindContext) *expr.Binding {
	if c.width == 8 {
		return binding(EAX, expr.Unknown)
	}
	return binding(EAX, expr.Unknown, EDX, expr.Unknown)
}

func bindImul(c *bindContext) *expr.Binding {
	switch len(c.args) {
	case 1:
		return bindMulDiv(c)
	case 2:
		product := expr.New(c.arg(0), expr.Mul, c.arg(1))
		return binding(c.arg(0), expr.New(product, expr.And, c.mask()))
	default:
		return binding(c.arg(0), expr.New(c.arg(1), expr.Mul, c.arg(2)))
	}
}

// bindSignExtendAcc returns the binding of cbw and cwde, sign extending the
// lower half of the accumulator to the operand size.
func bindSignExtendAcc(c *bindContext) *expr.Binding {
	half := c.width / 2
	signBit := expr.Const(int64(1) << uint(half-1))
	low := expr.New(EAX, expr.And, expr.Const(int64(widthMask(half))))
	extended := expr.New(expr.New(expr.New(low, expr.Xor, signBit), expr.Sub, signBit), expr.And, c.mask())
	if c.width >= 32 {
		return binding(EAX, extended)
	}
	upper := expr.New(EAX, expr.And, expr.Const(int64(widthMask(32)&^widthMask(c.width))))
	return binding(EAX, expr.New(upper, expr.Or, extended))
}

// bindSignExtendData returns the binding of cwd and cdq, filling edx with the
// sign of the accumulator.
func bindSignExtendData(c *bindContext) *expr.Binding {
	signBit := expr.New(expr.New(EAX, expr.Shr, expr.Const(c.width-1)), expr.And, expr.Const(1))
	return binding(EDX, expr.New(c.mask(), expr.Mul, signBit))
}

// bindJump marks the target and the condition flags as read.
func bindJump(c *bindContext) *expr.Binding {
	b := binding(ReadsTarget, c.arg(0))
	if c.inst.Kind() == KindJecxz {
		b.Set(ReadsFlags, expr.New(counter(c.inst), expr.Eq, expr.Const(0)))
		return b
	}
	if cond := conditionExpr(c.inst.Name(), "j"); cond != nil && !expr.IsUnknown(cond) {
		b.Set(ReadsFlags, cond)
	}
	return b
}

// counter returns the count register selected by the address size.
func counter(inst *Instruction) expr.Expr {
	if inst.AddrSize() == 16 {
		return expr.New(ECX, expr.And, expr.Const(0xffff))
	}
	return ECX
}

func bindLoop(*bindContext) *expr.Binding {
	return binding(ECX, expr.New(ECX, expr.Sub, expr.Const(1)))
}

func bindConst(loc, value expr.Expr) coreFunc {
	return func(*bindContext) *expr.Binding {
		return binding(loc, value)
	}
}

func bindSetcc(c *bindContext) *expr.Binding {
	cond := c.inst.Opcode().Cond.Expr()
	return binding(c.arg(0), cond)
}
