package expr

import (
	"strings"
)

// Binding maps locations (registers, flags, memory indirections or placeholders)
// to the expressions describing their new value. Locations are compared by their
// reduced form, the origin of an indirection does not take part in the comparison.
// A location absent from the binding is unmodified.
type Binding struct {
	order []string
	locs  map[string]Expr
	vals  map[string]Expr
}

// NewBinding returns an empty binding.
func NewBinding() *Binding {
	return &Binding{
		locs: map[string]Expr{},
		vals: map[string]Expr{},
	}
}

func locationKey(loc Expr) string {
	return Reduce(loc).String()
}

// Set sets the value of a location, replacing a previous value.
func (b *Binding) Set(loc, val Expr) {
	key := locationKey(loc)
	if _, ok := b.vals[key]; !ok {
		b.order = append(b.order, key)
		b.locs[key] = loc
	}
	b.vals[key] = val
}

// Get returns the value bound to a location.
func (b *Binding) Get(loc Expr) (Expr, bool) {
	v, ok := b.vals[locationKey(loc)]
	return v, ok
}

// Has returns whether the location is bound.
func (b *Binding) Has(loc Expr) bool {
	_, ok := b.vals[locationKey(loc)]
	return ok
}

// Delete removes a location from the binding.
func (b *Binding) Delete(loc Expr) {
	key := locationKey(loc)
	if _, ok := b.vals[key]; !ok {
		return
	}
	delete(b.vals, key)
	delete(b.locs, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of bound locations.
func (b *Binding) Len() int {
	return len(b.order)
}

// Locations returns the bound locations in insertion order.
func (b *Binding) Locations() []Expr {
	res := make([]Expr, 0, len(b.order))
	for _, key := range b.order {
		res = append(res, b.locs[key])
	}
	return res
}

// Each calls fn for every location in insertion order.
func (b *Binding) Each(fn func(loc, val Expr)) {
	for _, key := range b.order {
		fn(b.locs[key], b.vals[key])
	}
}

// Clone returns a copy of the binding.
func (b *Binding) Clone() *Binding {
	c := NewBinding()
	b.Each(c.Set)
	return c
}

// Merge returns a copy of b updated with all locations of o.
func (b *Binding) Merge(o *Binding) *Binding {
	c := b.Clone()
	if o != nil {
		o.Each(c.Set)
	}
	return c
}

func (b *Binding) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, key := range b.order {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.locs[key].String())
		sb.WriteString(" => ")
		sb.WriteString(b.vals[key].String())
	}
	sb.WriteString("}")
	return sb.String()
}
