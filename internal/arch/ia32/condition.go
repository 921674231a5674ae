package ia32

import (
	"github.com/retroenv/x86sem/internal/expr"
)

// Cond is a condition code of conditional instructions, in encoding order.
type Cond uint8

// Condition codes.
const (
	CondO Cond = iota
	CondNO
	CondB
	CondNB
	CondZ
	CondNZ
	CondBE
	CondNBE
	CondS
	CondNS
	CondP
	CondNP
	CondL
	CondNL
	CondLE
	CondNLE
)

var condNames = [16]string{
	"o", "no", "b", "nb", "z", "nz", "be", "nbe",
	"s", "ns", "p", "np", "l", "nl", "le", "nle",
}

// condAliases contains the alternate mnemonic suffixes.
var condAliases = map[string]Cond{
	"c":   CondB,
	"nae": CondB,
	"nc":  CondNB,
	"ae":  CondNB,
	"e":   CondZ,
	"ne":  CondNZ,
	"na":  CondBE,
	"a":   CondNBE,
	"pe":  CondP,
	"po":  CondNP,
	"nge": CondL,
	"ge":  CondNL,
	"ng":  CondLE,
	"g":   CondNLE,
}

func (c Cond) String() string {
	return condNames[c&15]
}

// ParseCond returns the condition of a mnemonic suffix like "z" or "nae".
func ParseCond(s string) (Cond, bool) {
	for i, name := range condNames {
		if name == s {
			return Cond(i), true
		}
	}
	c, ok := condAliases[s]
	return c, ok
}

// Expr returns the boolean expression over the flag symbols that is true when
// the condition holds. The parity conditions return Unknown as the parity flag
// is not modeled.
func (c Cond) Expr() expr.Expr {
	notEq := func(a, b expr.Expr) expr.Expr { return expr.New(a, expr.Ne, b) }
	eq := func(a, b expr.Expr) expr.Expr { return expr.New(a, expr.Eq, b) }
	not := func(a expr.Expr) expr.Expr { return expr.Unary(expr.Not, a) }

	switch c & 15 {
	case CondO:
		return FlagO
	case CondNO:
		return not(FlagO)
	case CondB:
		return FlagC
	case CondNB:
		return not(FlagC)
	case CondZ:
		return FlagZ
	case CondNZ:
		return not(FlagZ)
	case CondBE:
		return expr.New(FlagC, expr.LogOr, FlagZ)
	case CondNBE:
		return not(expr.New(FlagC, expr.LogOr, FlagZ))
	case CondS:
		return FlagS
	case CondNS:
		return not(FlagS)
	case CondL:
		return notEq(FlagS, FlagO)
	case CondNL:
		return eq(FlagS, FlagO)
	case CondLE:
		return expr.New(notEq(FlagS, FlagO), expr.LogOr, FlagZ)
	case CondNLE:
		return expr.New(eq(FlagS, FlagO), expr.LogAnd, not(FlagZ))
	default:
		return expr.Unknown
	}
}

// conditionExpr maps a conditional mnemonic like "jnae" or "setg" to its
// condition expression. It returns nil for mnemonics without a known suffix.
func conditionExpr(name, prefix string) expr.Expr {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return nil
	}
	c, ok := ParseCond(name[len(prefix):])
	if !ok {
		return nil
	}
	return c.Expr()
}
