package abi

import (
	"github.com/retroenv/x86sem/internal/arch/ia32"
	"github.com/retroenv/x86sem/internal/expr"
)

// thunkSignature recognizes a compiler generated helper function by its effect.
type thunkSignature struct {
	name  string
	match func(b *expr.Binding, entry uint64, sz int64) bool
}

// thunkSignatures is checked in order, the first matching signature names
// the function.
var thunkSignatures = []thunkSignature{
	{
		// returns its own address in eax
		name: "geteip",
		match: func(b *expr.Binding, entry uint64, _ int64) bool {
			return expr.Equal(valueOf(b, ia32.EAX), expr.Const(int64(entry)))
		},
	},
	{
		// loads the return address into ebx
		name: "get_pc_thunk_ebx",
		match: func(b *expr.Binding, _ uint64, sz int64) bool {
			return expr.Equal(valueOf(b, ia32.EAX), ia32.EAX) &&
				expr.Equal(valueOf(b, ia32.EBX), expr.Ind(ia32.ESP, int(sz), 0))
		},
	},
	{
		// allocates the frame size passed in the third stack slot
		name: "__SEH_prolog",
		match: func(b *expr.Binding, _ uint64, sz int64) bool {
			frame := expr.Ind(expr.New(ia32.ESP, expr.Add, expr.Const(2*sz)), int(sz), 0)
			allocated := expr.New(frame, expr.Add, expr.Const(0x18))
			return expr.Equal(valueOf(b, ia32.ESP), expr.New(ia32.ESP, expr.Sub, allocated))
		},
	},
	{
		name: "__SEH_epilog",
		match: func(b *expr.Binding, _ uint64, sz int64) bool {
			saved := expr.Ind(expr.New(ia32.ESP, expr.Add, expr.Const(4*sz)), int(sz), 0)
			return expr.Equal(valueOf(b, ia32.ESP), expr.New(ia32.EBP, expr.Add, expr.Const(sz))) &&
				expr.Equal(valueOf(b, ia32.EBX), saved)
		},
	},
}

// matchThunk returns the name of the first thunk signature matching the
// inferred binding, or an empty string.
func matchThunk(b *expr.Binding, entry uint64, pointerSize int) string {
	for _, sig := range thunkSignatures {
		if sig.match(b, entry, int64(pointerSize)) {
			return sig.name
		}
	}
	return ""
}
