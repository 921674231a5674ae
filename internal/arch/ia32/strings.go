package ia32

import (
	"github.com/retroenv/x86sem/internal/expr"
)

// direction returns the operator applied to the string pointers. The latest std
// or cld earlier in the block decides, without one the direction is upward.
func (c *bindContext) direction() expr.Operator {
	dir := expr.Add
	if c.block == nil {
		return dir
	}
	for _, inst := range c.block.Instructions() {
		if inst.Address() == c.inst.Address() {
			break
		}
		switch inst.Name() {
		case "std":
			dir = expr.Sub
		case "cld":
			dir = expr.Add
		}
	}
	return dir
}

// stringOp contains the common values of string instruction bindings.
type stringOp struct {
	size     int
	dir      expr.Operator
	repeated bool
	src      *expr.Indirection // element at esi
	dst      *expr.Indirection // element at edi
}

func newStringOp(c *bindContext) stringOp {
	size := c.inst.Opcode().StrSize
	return stringOp{
		size:     size,
		dir:      c.direction(),
		repeated: c.inst.Rep() != RepNone,
		src:      expr.Ind(ESI, size, c.inst.Address()),
		dst:      expr.Ind(EDI, size, c.inst.Address()),
	}
}

// step returns the pointer reg advanced by one element.
func (s stringOp) step(reg expr.Symbol) expr.Expr {
	return expr.New(reg, s.dir, expr.Const(s.size))
}

// stepAll returns the pointer reg advanced by ecx elements.
func (s stringOp) stepAll(reg expr.Symbol) expr.Expr {
	return expr.New(reg, s.dir, expr.New(expr.Const(s.size), expr.Mul, ECX))
}

func bindMovs(c *bindContext) *expr.Binding {
	s := newStringOp(c)
	if !s.repeated {
		return binding(s.dst, s.src, ESI, s.step(ESI), EDI, s.step(EDI))
	}
	return binding(s.dst, s.src, ESI, s.stepAll(ESI), EDI, s.stepAll(EDI), ECX, expr.Const(0))
}

func bindStos(c *bindContext) *expr.Binding {
	s := newStringOp(c)
	var value expr.Expr = EAX
	if s.size < 4 {
		value = expr.New(EAX, expr.And, expr.Const(int64(widthMask(s.size*8))))
	}
	if !s.repeated {
		return binding(s.dst, value, EDI, s.step(EDI))
	}
	return binding(s.dst, value, EDI, s.stepAll(EDI), ECX, expr.Const(0))
}

func bindLods(c *bindContext) *expr.Binding {
	s := newStringOp(c)
	if !s.repeated {
		return binding(EAX, s.src, ESI, s.step(ESI))
	}
	last := expr.New(expr.Const(s.size), expr.Mul, expr.New(ECX, expr.Sub, expr.Const(1)))
	lastElement := expr.Ind(expr.New(ESI, s.dir, last), s.size, c.inst.Address())
	return binding(EAX, lastElement, ESI, s.stepAll(ESI), ECX, expr.Const(0))
}

func bindScas(c *bindContext) *expr.Binding {
	s := newStringOp(c)
	if !s.repeated {
		return binding(EDI, s.step(EDI))
	}
	return binding(EDI, expr.Unknown, ECX, expr.Unknown)
}

func bindCmps(c *bindContext) *expr.Binding {
	s := newStringOp(c)
	if !s.repeated {
		return binding(EDI, s.step(EDI), ESI, s.step(ESI))
	}
	return binding(EDI, expr.Unknown, ESI, expr.Unknown, ECX, expr.Unknown)
}

// stringCompareFlags sets the flags of scas and cmps. A single comparison
// behaves like cmp, the result of a repeated comparison is unknown.
func stringCompareFlags(c *bindContext, b *expr.Binding) {
	s := newStringOp(c)
	if s.repeated {
		unknownFlags(c, b)
		return
	}

	compare := &bindContext{
		inst:  c.inst,
		block: c.block,
		args:  []expr.Expr{s.src, s.dst},
		width: s.size * 8,
	}
	if c.inst.Kind() == KindScas {
		compare.args[0] = expr.New(EAX, expr.And, compare.mask())
	}
	arithmeticFlags(expr.Sub, false)(compare, b)
}
