package ia32

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/arch/mocks"
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/instruction"
)

func decodeAt(t *testing.T, address uint64, data ...byte) *Instruction {
	t.Helper()
	inst, err := newTestDecoder(32).Decode(data, 0, address)
	assert.NoError(t, err)
	return inst
}

func effectOf(t *testing.T, inst *Instruction, block arch.Block) *expr.Binding {
	t.Helper()
	return NewSemantics(log.NewTestLogger(t), true).Effect(inst, block)
}

// symbolEnv returns an evaluation environment resolving symbols from values.
func symbolEnv(values map[expr.Symbol]uint64) expr.Env {
	return func(e expr.Expr) (uint64, bool) {
		sym, ok := e.(expr.Symbol)
		if !ok {
			return 0, false
		}
		v, ok := values[sym]
		return v, ok
	}
}

func boundString(t *testing.T, b *expr.Binding, loc expr.Expr) string {
	t.Helper()
	v, ok := b.Get(loc)
	assert.True(t, ok, loc)
	if !ok {
		return ""
	}
	return expr.Reduce(v).String()
}

// TestEffect_Push verifies the effect of a one byte push at 0x1000.
func TestEffect_Push(t *testing.T) {
	inst := decodeAt(t, 0x1000, 0x53)
	assert.Equal(t, "push", inst.Name())
	assert.Len(t, inst.Args(), 1)

	b := effectOf(t, inst, nil)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, "esp - 4", boundString(t, b, ESP))
	assert.Equal(t, "ebx", boundString(t, b, expr.Ind(ESP, 4, 0x1000)))
}

func TestEffect_Arithmetic(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		loc      expr.Expr
		expected string
	}{
		{"add register", []byte{0x01, 0xd8}, EAX, "eax + ebx"},
		{"sub immediate", []byte{0x83, 0xec, 0x10}, ESP, "esp - 0x10"},
		{"xor self", []byte{0x31, 0xc0}, EAX, "0"},
		{"adc", []byte{0x11, 0xd8}, EAX, "(eax + ebx) + eflag_c"},
		{"inc", []byte{0x40}, EAX, "eax + 1"},
		{"dec", []byte{0x4b}, EBX, "ebx - 1"},
		{"not", []byte{0xf7, 0xd0}, EAX, "eax ^ 0xffffffff"},
		{"neg", []byte{0xf7, 0xd8}, EAX, "-eax"},
		{"mov", []byte{0x89, 0xd8}, EAX, "ebx"},
		{"lea", []byte{0x8d, 0x44, 0x24, 0x08}, EAX, "esp + 8"},
		{"imul two operands", []byte{0x0f, 0xaf, 0xc3}, EAX, "(eax * ebx) & 0xffffffff"},
		{"mul", []byte{0xf7, 0xe3}, EDX, "unknown"},
		{"rcl", []byte{0xd1, 0xd0}, EAX, "unknown"},
		{"loop", []byte{0xe2, 0xfe}, ECX, "ecx - 1"},
		{"setalc", []byte{0xd6}, EAX, "(eax & 0xffffff00) | (eflag_c * 0xff)"},
		{"rdtsc", []byte{0x0f, 0x31}, EDX, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := effectOf(t, decodeAt(t, 0, tt.data...), nil)
			assert.Equal(t, tt.expected, boundString(t, b, tt.loc))
		})
	}
}

func TestEffect_Xchg(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0x87, 0xd8), nil)
	assert.Equal(t, "ebx", boundString(t, b, EAX))
	assert.Equal(t, "eax", boundString(t, b, EBX))
}

// TestEffect_ZeroFlag verifies that the zero flag is set exactly when the
// masked result is zero, for all operand widths.
func TestEffect_ZeroFlag(t *testing.T) {
	ops := []struct {
		name  string
		op    byte
		apply func(a, b, c uint64) uint64
	}{
		{"add", 0x00, func(a, b, _ uint64) uint64 { return a + b }},
		{"or", 0x08, func(a, b, _ uint64) uint64 { return a | b }},
		{"adc", 0x10, func(a, b, c uint64) uint64 { return a + b + c }},
		{"sbb", 0x18, func(a, b, c uint64) uint64 { return a - b - c }},
		{"and", 0x20, func(a, b, _ uint64) uint64 { return a & b }},
		{"sub", 0x28, func(a, b, _ uint64) uint64 { return a - b }},
		{"xor", 0x30, func(a, b, _ uint64) uint64 { return a ^ b }},
	}
	widths := []struct {
		width  int
		prefix []byte
		w      byte
	}{
		{8, nil, 0},
		{16, []byte{0x66}, 1},
		{32, nil, 1},
	}
	samples := [][3]uint64{
		{0, 0, 0},
		{1, 0xffffffff, 0},
		{0x80, 0x80, 0},
		{0xffffffff, 1, 0},
		{0x1234, 0x1234, 0},
		{5, 3, 1},
		{0xff, 0, 1},
		{0x10000, 0x10000, 0},
	}

	for _, op := range ops {
		for _, w := range widths {
			data := append(append([]byte(nil), w.prefix...), op.op|w.w, 0xd8)
			inst := decodeAt(t, 0, data...)
			b := effectOf(t, inst, nil)
			zf, ok := b.Get(FlagZ)
			assert.True(t, ok)
			mask := widthMask(w.width)

			for _, s := range samples {
				env := symbolEnv(map[expr.Symbol]uint64{EAX: s[0], EBX: s[1], FlagC: s[2]})
				expected := op.apply(s[0]&mask, s[1]&mask, s[2])&mask == 0

				v, ok := expr.Eval(zf, env)
				assert.True(t, ok, inst.String())
				assert.Equal(t, expected, v == 1, inst.String(), s)
			}
		}
	}
}

func TestEffect_CarryFlag(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		eax, ebx uint64
		expected uint64
	}{
		{"add 8 bit overflow", []byte{0x00, 0xd8}, 0xff, 1, 1},
		{"add 8 bit", []byte{0x00, 0xd8}, 0xfe, 1, 0},
		{"add 32 bit overflow", []byte{0x01, 0xd8}, 0xffffffff, 2, 1},
		{"sub borrow", []byte{0x29, 0xd8}, 0, 1, 1},
		{"sub", []byte{0x29, 0xd8}, 2, 1, 0},
		{"cmp borrow", []byte{0x39, 0xd8}, 1, 2, 1},
		{"and clears", []byte{0x21, 0xd8}, 0xffffffff, 0xffffffff, 0},
		{"neg zero", []byte{0xf7, 0xd8}, 0, 0, 0},
		{"neg non zero", []byte{0xf7, 0xd8}, 5, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := effectOf(t, decodeAt(t, 0, tt.data...), nil)
			cf, ok := b.Get(FlagC)
			assert.True(t, ok)
			v, ok := expr.Eval(cf, symbolEnv(map[expr.Symbol]uint64{EAX: tt.eax, EBX: tt.ebx}))
			assert.True(t, ok)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestEffect_IncDecFlags(t *testing.T) {
	inc := effectOf(t, decodeAt(t, 0, 0x40), nil)
	assert.False(t, inc.Has(FlagC))
	of, _ := inc.Get(FlagO)
	v, ok := expr.Eval(of, symbolEnv(map[expr.Symbol]uint64{EAX: 0x7fffffff}))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)

	dec := effectOf(t, decodeAt(t, 0, 0x48), nil)
	assert.False(t, dec.Has(FlagC))
	of, _ = dec.Get(FlagO)
	v, ok = expr.Eval(of, symbolEnv(map[expr.Symbol]uint64{EAX: 0x80000000}))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)
}

// TestEffect_RotateIdentity verifies that rotating left and then right by the
// same count restores the value.
func TestEffect_RotateIdentity(t *testing.T) {
	widths := []struct {
		width int
		rol   []byte
		ror   []byte
	}{
		{8, []byte{0xd2, 0xc0}, []byte{0xd2, 0xc8}},
		{16, []byte{0x66, 0xd3, 0xc0}, []byte{0x66, 0xd3, 0xc8}},
		{32, []byte{0xd3, 0xc0}, []byte{0xd3, 0xc8}},
	}
	values := []uint64{0, 1, 0x81, 0x8001, 0x12345678, 0xffffffff}

	for _, w := range widths {
		rol := decodeAt(t, 0, w.rol...)
		ror := decodeAt(t, 0, w.ror...)
		loc := rol.Args()[0].(*Reg).Symbolic()

		rolled, ok := effectOf(t, rol, nil).Get(loc)
		assert.True(t, ok)
		restored, ok := effectOf(t, ror, nil).Get(loc)
		assert.True(t, ok)
		composed := expr.Bind(restored, map[expr.Symbol]expr.Expr{EAX: rolled})
		mask := widthMask(w.width)

		for k := uint64(0); k < uint64(2*w.width); k++ {
			for _, x := range values {
				env := symbolEnv(map[expr.Symbol]uint64{EAX: x, ECX: k})
				v, ok := expr.Eval(composed, env)
				assert.True(t, ok)
				assert.Equal(t, x&mask, v, rol.String(), k)
			}
		}
	}
}

func TestEffect_StringDirection(t *testing.T) {
	std := decodeAt(t, 0x0ffe, 0xfd)
	cld := decodeAt(t, 0x0fff, 0xfc)
	stos := decodeAt(t, 0x1000, 0xab)

	tests := []struct {
		name     string
		block    arch.Block
		expected string
	}{
		{"no block", nil, "edi + 4"},
		{"no direction instruction", &mocks.Block{Insts: []instruction.Instruction{stos}}, "edi + 4"},
		{"std", &mocks.Block{Insts: []instruction.Instruction{std, stos}}, "edi - 4"},
		{"std then cld", &mocks.Block{Insts: []instruction.Instruction{std, cld, stos}}, "edi + 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := effectOf(t, stos, tt.block)
			assert.Equal(t, tt.expected, boundString(t, b, EDI))
			assert.Equal(t, "eax", boundString(t, b, expr.Ind(EDI, 4, 0)))
		})
	}
}

func TestEffect_StringRepeat(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0xf3, 0xa5), nil)
	assert.Equal(t, "0", boundString(t, b, ECX))
	assert.Equal(t, "(ecx * 4) + esi", boundString(t, b, ESI))
	assert.Equal(t, "(ecx * 4) + edi", boundString(t, b, EDI))
	assert.Equal(t, "dword ptr [esi]", boundString(t, b, expr.Ind(EDI, 4, 0)))

	b = effectOf(t, decodeAt(t, 0, 0xf3, 0xac), nil)
	assert.Equal(t, "byte ptr [(ecx + esi) - 1]", boundString(t, b, EAX))

	b = effectOf(t, decodeAt(t, 0, 0xf2, 0xae), nil)
	assert.Equal(t, "unknown", boundString(t, b, EDI))
	assert.Equal(t, "unknown", boundString(t, b, FlagZ))

	b = effectOf(t, decodeAt(t, 0, 0xaa), nil)
	assert.Equal(t, "eax & 0xff", boundString(t, b, expr.Ind(EDI, 1, 0)))
	assert.Equal(t, "edi + 1", boundString(t, b, EDI))
}

func TestEffect_ScasFlags(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0xae), nil)
	zf, ok := b.Get(FlagZ)
	assert.True(t, ok)

	env := func(value uint64) expr.Env {
		return func(e expr.Expr) (uint64, bool) {
			switch x := e.(type) {
			case expr.Symbol:
				if x == EAX {
					return 0x41, true
				}
			case *expr.Indirection:
				return value, true
			}
			return 0, false
		}
	}

	v, ok := expr.Eval(zf, env(0x41))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)
	v, ok = expr.Eval(zf, env(0x42))
	assert.True(t, ok)
	assert.Equal(t, uint64(0), v)
}

func TestEffect_PushPopAll(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0x60), nil)
	assert.Equal(t, "esp - 0x20", boundString(t, b, ESP))
	assert.Equal(t, "edi", boundString(t, b, expr.Ind(ESP, 4, 0)))
	assert.Equal(t, "eax", boundString(t, b, expr.Ind(expr.New(ESP, expr.Add, expr.Const(0x1c)), 4, 0)))

	b = effectOf(t, decodeAt(t, 0, 0x61), nil)
	assert.Equal(t, "esp + 0x20", boundString(t, b, ESP))
	assert.Equal(t, "dword ptr [esp]", boundString(t, b, EDI))
	assert.Equal(t, "dword ptr [esp + 0x1c]", boundString(t, b, EAX))
	assert.Equal(t, 8, b.Len())
}

func TestEffect_ControlTransfer(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0x1000, 0xe8, 0x10, 0x00, 0x00, 0x00), nil)
	assert.Equal(t, "esp - 4", boundString(t, b, ESP))
	assert.Equal(t, "0x1005", boundString(t, b, expr.Ind(ESP, 4, 0)))

	b = effectOf(t, decodeAt(t, 0, 0xc2, 0x08, 0x00), nil)
	assert.Equal(t, "esp + 0xc", boundString(t, b, ESP))

	b = effectOf(t, decodeAt(t, 0x2000, 0x74, 0xfe), nil)
	assert.Equal(t, "0x2000", boundString(t, b, ReadsTarget))
	assert.Equal(t, "eflag_z", boundString(t, b, ReadsFlags))

	b = effectOf(t, decodeAt(t, 0, 0xc9), nil)
	assert.Equal(t, "dword ptr [ebp]", boundString(t, b, EBP))
	assert.Equal(t, "ebp + 4", boundString(t, b, ESP))
}

func TestEffect_SignExtend(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		loc      expr.Expr
		eax      uint64
		expected uint64
	}{
		{"cwde negative", []byte{0x98}, EAX, 0x1234ffff, 0xffffffff},
		{"cwde positive", []byte{0x98}, EAX, 0xffff1234, 0x1234},
		{"cbw keeps upper half", []byte{0x66, 0x98}, EAX, 0x12345680, 0x1234ff80},
		{"cdq negative", []byte{0x99}, EDX, 0x80000000, 0xffffffff},
		{"cdq positive", []byte{0x99}, EDX, 0x7fffffff, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := effectOf(t, decodeAt(t, 0, tt.data...), nil)
			value, ok := b.Get(tt.loc)
			assert.True(t, ok)
			v, ok := expr.Eval(value, symbolEnv(map[expr.Symbol]uint64{EAX: tt.eax}))
			assert.True(t, ok)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestEffect_Fallback(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0x0f, 0x44, 0xc3), nil)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, "unknown", boundString(t, b, EAX))

	b = effectOf(t, decodeAt(t, 0, 0xcd, 0x80), nil)
	assert.Equal(t, 0, b.Len())

	b = effectOf(t, decodeAt(t, 0, 0xfa), nil)
	assert.Equal(t, 0, b.Len())
}

func TestEffect_Enter(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0xc8, 0x08, 0x00, 0x00), nil)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, "esp - 8", boundString(t, b, ESP))
	assert.Equal(t, "esp - 4", boundString(t, b, EBP))
	assert.Equal(t, "ebp", boundString(t, b, expr.Ind(ESP, 4, 0)))

	// the nesting depth is taken modulo 32
	b = effectOf(t, decodeAt(t, 0, 0xc8, 0x08, 0x00, 0x21), nil)
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, "esp - 0xc", boundString(t, b, ESP))
	assert.Equal(t, "esp - 4", boundString(t, b, EBP))
	nested := expr.Ind(expr.New(ESP, expr.Add, expr.Const(-4)), 4, 0)
	assert.Equal(t, "dword ptr [ebp - 4]", boundString(t, b, nested))
}

func TestEffect_PushPopFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags map[expr.Symbol]uint64
	}{
		{"all clear", map[expr.Symbol]uint64{FlagC: 0, FlagZ: 0, FlagS: 0, FlagO: 0}},
		{"all set", map[expr.Symbol]uint64{FlagC: 1, FlagZ: 1, FlagS: 1, FlagO: 1}},
		{"carry and sign", map[expr.Symbol]uint64{FlagC: 1, FlagZ: 0, FlagS: 1, FlagO: 0}},
		{"zero and overflow", map[expr.Symbol]uint64{FlagC: 0, FlagZ: 1, FlagS: 0, FlagO: 1}},
	}

	push := effectOf(t, decodeAt(t, 0, 0x9c), nil)
	pop := effectOf(t, decodeAt(t, 0, 0x9d), nil)
	assert.Equal(t, "esp - 4", boundString(t, push, ESP))
	assert.Equal(t, "esp + 4", boundString(t, pop, ESP))

	pushed, ok := push.Get(expr.Ind(ESP, 4, 0))
	assert.True(t, ok)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, ok := expr.Eval(pushed, symbolEnv(tt.flags))
			assert.True(t, ok)
			assert.Equal(t, uint64(0x202), stored&0x202)

			stack := func(e expr.Expr) (uint64, bool) {
				_, ok := e.(*expr.Indirection)
				return stored, ok
			}
			for flag, expected := range tt.flags {
				value, ok := pop.Get(flag)
				assert.True(t, ok)
				v, ok := expr.Eval(value, stack)
				assert.True(t, ok)
				assert.Equal(t, expected, v, string(flag))
			}
		})
	}
}

func TestEffect_Sahf(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0x9e), nil)
	assert.Equal(t, 3, b.Len())
	assert.False(t, b.Has(FlagO))

	env := symbolEnv(map[expr.Symbol]uint64{EAX: 0x12344100})
	expected := map[expr.Symbol]uint64{FlagC: 1, FlagZ: 1, FlagS: 0}
	for flag, want := range expected {
		value, ok := b.Get(flag)
		assert.True(t, ok)
		v, ok := expr.Eval(value, env)
		assert.True(t, ok)
		assert.Equal(t, want, v, string(flag))
	}
}

func TestEffect_LahfSahf(t *testing.T) {
	lahf, ok := effectOf(t, decodeAt(t, 0, 0x9f), nil).Get(EAX)
	assert.True(t, ok)
	sahf := effectOf(t, decodeAt(t, 0, 0x9e), nil)

	flags := map[expr.Symbol]uint64{EAX: 0, FlagC: 1, FlagZ: 0, FlagS: 1}
	eax, ok := expr.Eval(lahf, symbolEnv(flags))
	assert.True(t, ok)

	env := symbolEnv(map[expr.Symbol]uint64{EAX: eax})
	for _, flag := range []expr.Symbol{FlagC, FlagZ, FlagS} {
		value, ok := sahf.Get(flag)
		assert.True(t, ok)
		v, ok := expr.Eval(value, env)
		assert.True(t, ok)
		assert.Equal(t, flags[flag], v, string(flag))
	}
}

func TestEffect_Lahf(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0x9f), nil)
	value, ok := b.Get(EAX)
	assert.True(t, ok)

	env := symbolEnv(map[expr.Symbol]uint64{
		EAX:   0x12345678,
		FlagC: 1,
		FlagZ: 0,
		FlagS: 1,
		FlagO: 1,
	})
	v, ok := expr.Eval(value, env)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x12348378), v)
}

func TestEffect_RepLodsDirection(t *testing.T) {
	cld := decodeAt(t, 0x0fff, 0xfc)
	std := decodeAt(t, 0x0fff, 0xfd)
	lods := decodeAt(t, 0x1000, 0xf3, 0xad)
	assert.Equal(t, "rep lodsd", lods.String())

	tests := []struct {
		name    string
		block   arch.Block
		element uint64
		esi     uint64
	}{
		{"direction clear", &mocks.Block{Insts: []instruction.Instruction{cld, lods}}, 0x2008, 0x200c},
		{"direction set", &mocks.Block{Insts: []instruction.Instruction{std, lods}}, 0x1ff8, 0x1ff4},
	}

	env := symbolEnv(map[expr.Symbol]uint64{ESI: 0x2000, ECX: 3})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := effectOf(t, lods, tt.block)
			assert.Equal(t, "0", boundString(t, b, ECX))

			value, ok := b.Get(EAX)
			assert.True(t, ok)
			last, ok := value.(*expr.Indirection)
			assert.True(t, ok)
			assert.Equal(t, 4, last.Len)
			address, ok := expr.Eval(last.Target, env)
			assert.True(t, ok)
			assert.Equal(t, tt.element, address)

			value, ok = b.Get(ESI)
			assert.True(t, ok)
			esi, ok := expr.Eval(value, env)
			assert.True(t, ok)
			assert.Equal(t, tt.esi, esi)
		})
	}
}

func TestEffect_CounterJump(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		ecx      uint64
		expected uint64
	}{
		{"jecxz zero", []byte{0xe3, 0xfe}, 0, 1},
		{"jecxz upper bits", []byte{0xe3, 0xfe}, 0x10000, 0},
		{"jcxz upper bits", []byte{0x67, 0xe3, 0xfe}, 0x10000, 1},
		{"jcxz low bits", []byte{0x67, 0xe3, 0xfe}, 0x10001, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := effectOf(t, decodeAt(t, 0x100, tt.data...), nil)
			assert.True(t, b.Has(ReadsTarget))
			cond, ok := b.Get(ReadsFlags)
			assert.True(t, ok)
			v, ok := expr.Eval(cond, symbolEnv(map[expr.Symbol]uint64{ECX: tt.ecx}))
			assert.True(t, ok)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestEffect_BitAndExchange(t *testing.T) {
	// bt only changes flags
	b := effectOf(t, decodeAt(t, 0, 0x0f, 0xa3, 0xd8), nil)
	assert.False(t, b.Has(EAX))
	assert.Equal(t, "unknown", boundString(t, b, FlagC))

	b = effectOf(t, decodeAt(t, 0, 0x0f, 0xba, 0xe8, 0x03), nil)
	assert.Equal(t, "bts eax, 3", decodeAt(t, 0, 0x0f, 0xba, 0xe8, 0x03).String())
	assert.Equal(t, "unknown", boundString(t, b, EAX))

	b = effectOf(t, decodeAt(t, 0, 0x0f, 0xbd, 0xc1), nil)
	assert.Equal(t, "unknown", boundString(t, b, EAX))
	assert.False(t, b.Has(ECX))

	b = effectOf(t, decodeAt(t, 0, 0x0f, 0xc1, 0xc8), nil)
	assert.Equal(t, "eax + ecx", boundString(t, b, EAX))
	assert.Equal(t, "eax", boundString(t, b, ECX))

	b = effectOf(t, decodeAt(t, 0, 0xc4, 0x03), nil)
	assert.Equal(t, "dword ptr [ebx]", boundString(t, b, EAX))
}

func TestEffect_Cmpxchg(t *testing.T) {
	b := effectOf(t, decodeAt(t, 0, 0x0f, 0xb1, 0x0e), nil)
	assert.Equal(t, "unknown", boundString(t, b, EAX))
	assert.Equal(t, "unknown", boundString(t, b, expr.Ind(ESI, 4, 0)))

	zf, ok := b.Get(FlagZ)
	assert.True(t, ok)
	env := func(memory uint64) expr.Env {
		return func(e expr.Expr) (uint64, bool) {
			switch x := e.(type) {
			case expr.Symbol:
				if x == EAX {
					return 5, true
				}
			case *expr.Indirection:
				return memory, true
			}
			return 0, false
		}
	}

	v, ok := expr.Eval(zf, env(5))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)
	v, ok = expr.Eval(zf, env(6))
	assert.True(t, ok)
	assert.Equal(t, uint64(0), v)
}
