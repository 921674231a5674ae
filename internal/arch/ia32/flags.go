package ia32

import (
	"github.com/retroenv/x86sem/internal/expr"
)

// arithmeticFlags returns the flag effect of the two operand arithmetic and
// logic instructions. Carry and overflow are cleared for logic operations.
func arithmeticFlags(op expr.Operator, withCarry bool) flagFunc {
	return func(c *bindContext, b *expr.Binding) {
		a0, a1 := c.arg(0), c.arg(1)
		m := c.mask()
		left := expr.New(a0, expr.And, m)
		right := expr.New(a1, expr.And, m)

		var res expr.Expr = expr.New(left, op, right)
		if withCarry {
			res = expr.New(res, op, FlagC)
		}
		setResultFlags(c, b, res)

		switch op {
		case expr.Add:
			b.Set(FlagC, expr.New(res, expr.Gt, m))
			sameSign := expr.New(c.sign(a0), expr.Eq, c.sign(a1))
			b.Set(FlagO, expr.New(sameSign, expr.LogAnd, expr.New(c.sign(a0), expr.Ne, c.sign(res))))
		case expr.Sub:
			b.Set(FlagC, expr.New(left, expr.Lt, right))
			differentSign := expr.New(c.sign(a0), expr.Eq, expr.Unary(expr.Not, c.sign(a1)))
			b.Set(FlagO, expr.New(differentSign, expr.LogAnd, expr.New(c.sign(a0), expr.Ne, c.sign(res))))
		default:
			b.Set(FlagC, expr.Const(0))
			b.Set(FlagO, expr.Const(0))
		}
	}
}

// setResultFlags sets the zero and sign flag for a result.
func setResultFlags(c *bindContext, b *expr.Binding, res expr.Expr) {
	b.Set(FlagZ, expr.New(expr.New(res, expr.And, c.mask()), expr.Eq, expr.Const(0)))
	b.Set(FlagS, c.sign(res))
}

// unaryFlags returns the flag effect of the single destination instructions.
// The result is taken from the core binding of the destination.
func unaryFlags(kind Kind) flagFunc {
	return func(c *bindContext, b *expr.Binding) {
		a0 := c.arg(0)
		res, ok := b.Get(a0)
		if !ok {
			res = expr.Unknown
		}
		m := c.mask()
		setResultFlags(c, b, res)

		switch kind {
		case KindNeg:
			b.Set(FlagC, expr.New(expr.New(res, expr.And, m), expr.Ne, expr.Const(0)))
		case KindInc, KindDec:
		default:
			b.Set(FlagC, expr.Unknown)
		}

		half := expr.Const(int64(widthMask(c.width) >> 1))
		switch kind {
		case KindInc:
			b.Set(FlagO, expr.New(expr.New(a0, expr.And, m), expr.Eq, half))
		case KindDec:
			b.Set(FlagO, expr.New(expr.New(res, expr.And, m), expr.Eq, half))
		case KindNeg:
			signBit := expr.Const(int64((widthMask(c.width) + 1) >> 1))
			b.Set(FlagO, expr.New(expr.New(a0, expr.And, m), expr.Eq, signBit))
		default:
			b.Set(FlagO, expr.Unknown)
		}
	}
}

// unknownFlags marks all modeled flags as unknown.
func unknownFlags(_ *bindContext, b *expr.Binding) {
	for _, f := range [...]expr.Symbol{FlagZ, FlagS, FlagC, FlagO} {
		b.Set(f, expr.Unknown)
	}
}
