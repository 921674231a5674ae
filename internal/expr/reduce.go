package expr

import (
	"sort"
)

// Reduce returns a simplified form of e. Constant subexpressions are folded and
// sums are normalized to a canonical ordering of their terms, so that two
// expressions differing only by the order of additions reduce to the same value.
// Any expression containing Unknown reduces to Unknown.
func Reduce(e Expr) Expr {
	if e == nil {
		return nil
	}
	if containsUnknown(e) {
		return Unknown
	}
	return reduce(e)
}

// Equal returns whether a and b reduce to the same expression.
// Unknown is only equal to itself.
func Equal(a, b Expr) bool {
	if IsUnknown(a) || IsUnknown(b) {
		return IsUnknown(a) && IsUnknown(b)
	}
	diff := Reduce(New(a, Sub, b))
	c, ok := diff.(Const)
	return ok && c == 0
}

// ConstValue returns the constant value of e after reduction.
func ConstValue(e Expr) (int64, bool) {
	c, ok := Reduce(e).(Const)
	return int64(c), ok
}

func containsUnknown(e Expr) bool {
	switch x := e.(type) {
	case unknown:
		return true
	case *Op:
		if x.Left != nil && containsUnknown(x.Left) {
			return true
		}
		return containsUnknown(x.Right)
	case *Indirection:
		return containsUnknown(x.Target)
	default:
		return false
	}
}

func reduce(e Expr) Expr {
	switch x := e.(type) {
	case *Indirection:
		return Ind(reduce(x.Target), x.Len, x.Origin)
	case *Op:
		return reduceOp(x)
	default:
		return e
	}
}

func reduceOp(o *Op) Expr {
	r := reduce(o.Right)
	if o.Left == nil {
		if rc, ok := r.(Const); ok {
			if v, ok := evalOp(Unary(o.Op, rc), nil); ok {
				return Const(int64(v))
			}
		}
		if o.Op == Neg {
			return linearize(Unary(Neg, r)).expr()
		}
		return Unary(o.Op, r)
	}

	l := reduce(o.Left)
	lc, lok := l.(Const)
	rc, rok := r.(Const)
	if lok && rok {
		if v, ok := apply(uint64(lc), o.Op, uint64(rc)); ok {
			return Const(int64(v))
		}
	}

	switch o.Op {
	case Add, Sub:
		return linearize(New(l, o.Op, r)).expr()
	case Mul:
		if lok || rok {
			return linearize(New(l, o.Op, r)).expr()
		}
	case Xor:
		if l.String() == r.String() {
			return Const(0)
		}
	case And:
		if (lok && lc == 0) || (rok && rc == 0) {
			return Const(0)
		}
	case Shl, Shr:
		if rok && rc == 0 {
			return l
		}
	}
	return New(l, o.Op, r)
}

type term struct {
	key  string
	expr Expr
	k    int64
}

// linear is a sum of scaled atoms plus a constant.
type linear struct {
	terms map[string]*term
	c     int64
}

func newLinear() linear {
	return linear{terms: map[string]*term{}}
}

func (l linear) addTerm(e Expr, k int64) {
	key := e.String()
	t, ok := l.terms[key]
	if !ok {
		t = &term{key: key, expr: e}
		l.terms[key] = t
	}
	t.k += k
}

func (l *linear) merge(o linear, k int64) {
	for _, t := range o.terms {
		l.addTerm(t.expr, t.k*k)
	}
	l.c += o.c * k
}

// linearize decomposes a reduced expression into its linear form. Subexpressions
// that are not additions, subtractions, negations or constant multiplications
// are treated as atoms.
func linearize(e Expr) linear {
	res := newLinear()
	switch x := e.(type) {
	case Const:
		res.c = int64(x)
	case *Op:
		switch {
		case x.Left == nil && x.Op == Neg:
			res.merge(linearize(x.Right), -1)
		case x.Op == Add:
			res.merge(linearize(x.Left), 1)
			res.merge(linearize(x.Right), 1)
		case x.Op == Sub:
			res.merge(linearize(x.Left), 1)
			res.merge(linearize(x.Right), -1)
		case x.Op == Mul && isConst(x.Left):
			res.merge(linearize(x.Right), int64(x.Left.(Const)))
		case x.Op == Mul && isConst(x.Right):
			res.merge(linearize(x.Left), int64(x.Right.(Const)))
		default:
			res.addTerm(x, 1)
		}
	default:
		res.addTerm(e, 1)
	}
	return res
}

func isConst(e Expr) bool {
	_, ok := e.(Const)
	return ok
}

// expr rebuilds a canonical expression from the linear form.
func (l linear) expr() Expr {
	terms := make([]*term, 0, len(l.terms))
	for _, t := range l.terms {
		if t.k != 0 {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		return terms[i].key < terms[j].key
	})

	var acc Expr
	for _, t := range terms {
		k := t.k
		if k < 0 {
			k = -k
		}
		var scaled Expr = t.expr
		if k != 1 {
			scaled = New(t.expr, Mul, Const(k))
		}

		switch {
		case acc == nil && t.k < 0:
			acc = Unary(Neg, scaled)
		case acc == nil:
			acc = scaled
		case t.k < 0:
			acc = New(acc, Sub, scaled)
		default:
			acc = New(acc, Add, scaled)
		}
	}

	switch {
	case acc == nil:
		return Const(l.c)
	case l.c > 0:
		return New(acc, Add, Const(l.c))
	case l.c < 0:
		return New(acc, Sub, Const(-l.c))
	default:
		return acc
	}
}

// Bind substitutes symbols of e by the expressions of the given map.
func Bind(e Expr, m map[Symbol]Expr) Expr {
	switch x := e.(type) {
	case Symbol:
		if v, ok := m[x]; ok {
			return v
		}
		return x
	case *Op:
		var l Expr
		if x.Left != nil {
			l = Bind(x.Left, m)
		}
		return &Op{Left: l, Op: x.Op, Right: Bind(x.Right, m)}
	case *Indirection:
		return Ind(Bind(x.Target, m), x.Len, x.Origin)
	default:
		return e
	}
}

// Externals returns the distinct symbols referenced by e in order of appearance.
func Externals(e Expr) []Symbol {
	var res []Symbol
	seen := map[Symbol]struct{}{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case Symbol:
			if _, ok := seen[x]; !ok {
				seen[x] = struct{}{}
				res = append(res, x)
			}
		case *Op:
			if x.Left != nil {
				walk(x.Left)
			}
			walk(x.Right)
		case *Indirection:
			walk(x.Target)
		}
	}
	walk(e)
	return res
}

// Replace returns e with every subexpression equal to old replaced by repl.
func Replace(e, old, repl Expr) Expr {
	if e == nil {
		return nil
	}
	if !IsUnknown(e) && Equal(e, old) {
		return repl
	}
	switch x := e.(type) {
	case *Op:
		var l Expr
		if x.Left != nil {
			l = Replace(x.Left, old, repl)
		}
		return &Op{Left: l, Op: x.Op, Right: Replace(x.Right, old, repl)}
	case *Indirection:
		return Ind(Replace(x.Target, old, repl), x.Len, x.Origin)
	default:
		return e
	}
}
