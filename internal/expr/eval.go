package expr

// Env resolves the value of a leaf expression (symbol, placeholder or indirection)
// during evaluation.
type Env func(e Expr) (uint64, bool)

// Eval computes the concrete value of e using modular 64 bit arithmetic.
// Comparison and logical operators yield 1 or 0. It returns false if a leaf
// can not be resolved, e contains Unknown or a division by zero occurs.
func Eval(e Expr, env Env) (uint64, bool) {
	switch x := e.(type) {
	case Const:
		return uint64(x), true
	case Symbol, Placeholder, *Indirection:
		if env == nil {
			return 0, false
		}
		return env(e)
	case *Op:
		return evalOp(x, env)
	default:
		return 0, false
	}
}

func evalOp(o *Op, env Env) (uint64, bool) {
	r, ok := Eval(o.Right, env)
	if !ok {
		return 0, false
	}
	if o.Left == nil {
		switch o.Op {
		case Not:
			return boolValue(r == 0), true
		case Neg:
			return -r, true
		default:
			return 0, false
		}
	}

	l, ok := Eval(o.Left, env)
	if !ok {
		return 0, false
	}
	return apply(l, o.Op, r)
}

func apply(l uint64, op Operator, r uint64) (uint64, bool) {
	switch op {
	case Add:
		return l + r, true
	case Sub:
		return l - r, true
	case Mul:
		return l * r, true
	case Div:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case Mod:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case And:
		return l & r, true
	case Or:
		return l | r, true
	case Xor:
		return l ^ r, true
	case Shl:
		if r >= 64 {
			return 0, true
		}
		return l << r, true
	case Shr:
		if r >= 64 {
			return 0, true
		}
		return l >> r, true
	case Eq:
		return boolValue(l == r), true
	case Ne:
		return boolValue(l != r), true
	case Lt:
		return boolValue(l < r), true
	case Gt:
		return boolValue(l > r), true
	case LogAnd:
		return boolValue(l != 0 && r != 0), true
	case LogOr:
		return boolValue(l != 0 || r != 0), true
	default:
		return 0, false
	}
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
