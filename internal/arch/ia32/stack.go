package ia32

import (
	"github.com/retroenv/x86sem/internal/expr"
)

// Bit positions of the modeled flags in the flags register.
var flagBits = []struct {
	flag expr.Symbol
	bit  int64
}{
	{FlagC, 0},
	{FlagZ, 6},
	{FlagS, 7},
	{FlagO, 11},
}

// stackTop returns the stack slot at esp+offset.
func (c *bindContext) stackTop(offset int64) *expr.Indirection {
	var target expr.Expr = ESP
	if offset != 0 {
		target = expr.New(ESP, expr.Add, expr.Const(offset))
	}
	return expr.Ind(target, c.width/8, c.inst.Address())
}

func bindPush(c *bindContext) *expr.Binding {
	return binding(
		ESP, expr.New(ESP, expr.Sub, c.slot()),
		c.stackTop(0), c.arg(0),
	)
}

// bindPop sets esp before the destination so that pop esp loads the stack value.
func bindPop(c *bindContext) *expr.Binding {
	return binding(
		ESP, expr.New(ESP, expr.Add, c.slot()),
		c.arg(0), c.stackTop(0),
	)
}

// packFlags returns the flags register value built from base and the modeled flags.
func packFlags(base int64, bits int) expr.Expr {
	var v expr.Expr = expr.Const(base)
	for _, f := range flagBits {
		if f.bit >= int64(bits) {
			continue
		}
		bit := expr.New(expr.New(f.flag, expr.And, expr.Const(1)), expr.Shl, expr.Const(f.bit))
		v = expr.New(v, expr.Or, bit)
	}
	return v
}

func bindPushFlags(c *bindContext) *expr.Binding {
	return binding(
		ESP, expr.New(ESP, expr.Sub, c.slot()),
		c.stackTop(0), packFlags(0x202, 16),
	)
}

func bindPopFlags(c *bindContext) *expr.Binding {
	b := binding(ESP, expr.New(ESP, expr.Add, c.slot()))
	top := c.stackTop(0)
	for _, f := range flagBits {
		b.Set(f.flag, expr.New(expr.New(top, expr.Shr, expr.Const(f.bit)), expr.And, expr.Const(1)))
	}
	return b
}

// bindSahf loads the low flags from ah.
func bindSahf(*bindContext) *expr.Binding {
	b := expr.NewBinding()
	for _, f := range flagBits {
		if f.bit >= 8 {
			continue
		}
		b.Set(f.flag, expr.New(expr.New(EAX, expr.Shr, expr.Const(f.bit+8)), expr.And, expr.Const(1)))
	}
	return b
}

// bindLahf loads the low flags into ah. The other bits of eax are preserved.
func bindLahf(*bindContext) *expr.Binding {
	flags := expr.New(packFlags(2, 8), expr.Shl, expr.Const(8))
	keep := expr.New(EAX, expr.And, expr.Const(int64(0xffff00ff)))
	return binding(EAX, expr.New(keep, expr.Or, flags))
}

// bindPushAll stores the registers below the stack pointer, the last pushed
// register ends up at the new stack top.
func bindPushAll(c *bindContext) *expr.Binding {
	b := expr.NewBinding()
	slot := int64(c.width / 8)
	var offset int64
	for i := len(pushAllOrder) - 1; i >= 0; i-- {
		b.Set(c.stackTop(offset), pushAllOrder[i])
		offset += slot
	}
	b.Set(ESP, expr.New(ESP, expr.Sub, expr.Const(offset)))
	return b
}

// bindPopAll restores the registers stored by pusha. The saved stack pointer
// is skipped, esp is advanced past all slots.
func bindPopAll(c *bindContext) *expr.Binding {
	b := expr.NewBinding()
	slot := int64(c.width / 8)
	var offset int64
	for i := len(pushAllOrder) - 1; i >= 0; i-- {
		if reg := pushAllOrder[i]; reg != ESP {
			b.Set(reg, c.stackTop(offset))
		}
		offset += slot
	}
	b.Set(ESP, expr.New(ESP, expr.Add, expr.Const(offset)))
	return b
}

func bindCall(c *bindContext) *expr.Binding {
	ret := expr.Const(int64(c.inst.Address()) + int64(c.inst.Len()))
	return binding(
		ESP, expr.New(ESP, expr.Sub, c.slot()),
		c.stackTop(0), ret,
	)
}

// bindReturn returns the binding of ret and retf, popping the given number of
// slots and the bytes of the optional immediate.
func bindReturn(slots int64) coreFunc {
	return func(c *bindContext) *expr.Binding {
		var imm expr.Expr = expr.Const(0)
		if len(c.args) > 0 {
			imm = c.args[0]
		}
		popped := expr.New(expr.Const(slots*int64(c.width/8)), expr.Add, imm)
		return binding(ESP, expr.New(ESP, expr.Add, popped))
	}
}

// bindEnter returns the binding of enter with a frame size and a nesting depth.
func bindEnter(c *bindContext) *expr.Binding {
	slot := int64(c.width / 8)
	size, _ := expr.ConstValue(c.arg(0))
	depth, _ := expr.ConstValue(c.arg(1))
	depth %= 32

	// the saved ebp is bound at [esp], the new ebp is one slot below the incoming esp
	b := binding(
		c.stackTop(0), EBP,
		EBP, expr.New(ESP, expr.Sub, expr.Const(slot)),
		ESP, expr.New(ESP, expr.Sub, expr.Const(size+slot*depth)),
	)
	for i := int64(1); i <= depth; i++ {
		b.Set(c.stackTop(-i*slot), expr.Ind(expr.New(EBP, expr.Sub, expr.Const(i*slot)), int(slot), c.inst.Address()))
	}
	return b
}

func bindLeave(c *bindContext) *expr.Binding {
	return binding(
		EBP, expr.Ind(EBP, c.width/8, c.inst.Address()),
		ESP, expr.New(EBP, expr.Add, c.slot()),
	)
}
