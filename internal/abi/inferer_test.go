package abi

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/arch/ia32"
	"github.com/retroenv/x86sem/internal/arch/mocks"
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/instruction"
	"github.com/retroenv/x86sem/internal/options"
)

const (
	entry     = 0x1000
	retSite   = 0x1010
	retSite2  = 0x1020
	callSite  = 0x2000
	retOrigin = 0x2100
)

func decode(t *testing.T, address uint64, data ...byte) instruction.Instruction {
	t.Helper()
	inst, err := ia32.NewDecoder(options.NewDecoder()).Decode(data, 0, address)
	assert.NoError(t, err)
	return inst
}

func newTestInferer(t *testing.T, stdABI bool) (*Inferer, *mocks.Engine) {
	t.Helper()
	engine := mocks.NewEngine(nil)
	engine.AddInstruction(decode(t, entry, 0x90))
	engine.AddInstruction(decode(t, retSite, 0xc3))
	engine.AddInstruction(decode(t, retSite2, 0xc3))
	engine.Functions[entry] = &mocks.Function{}

	opts := options.NewAnalysis()
	opts.StdABI = stdABI
	return New(log.NewTestLogger(t), engine, opts), engine
}

// TestFunctionBinding_Unmodified verifies that a function returning with all
// registers unmodified gets an identity binding.
func TestFunctionBinding_Unmodified(t *testing.T) {
	inf, engine := newTestInferer(t, true)

	res := inf.FunctionBinding(entry, ReturnSites{Addresses: []uint64{retSite}})

	for _, reg := range ia32.GeneralRegisters {
		value, ok := res.Binding.Get(reg)
		assert.True(t, ok, reg)
		assert.True(t, expr.Equal(reg, value), reg)
	}
	assert.Equal(t, "", res.Name)
	assert.Len(t, engine.Labels, 0)

	static, ok := engine.Functions[entry].Binding().(arch.StaticBinding)
	assert.True(t, ok)
	assert.Equal(t, res.Binding, static.Binding)

	cached, ok := inf.Result(entry)
	assert.True(t, ok)
	assert.Equal(t, res.Binding, cached.Binding)

	call := engine.TraceCalls[0]
	assert.Equal(t, uint64(retSite), call.From)
	assert.True(t, call.Opts.IncludeStart)
	assert.Equal(t, uint64(entry), call.Opts.SnapshotAddress)
	assert.Equal(t, uint64(retSite), call.Opts.Origin)
}

func TestFunctionBinding_Divergent(t *testing.T) {
	inf, engine := newTestInferer(t, false)
	engine.SetTrace(ia32.EBX, retSite, expr.Const(1))
	engine.SetTrace(ia32.EBX, retSite2, expr.Const(2))
	engine.SetTrace(ia32.ESI, retSite, expr.Const(1))
	engine.SetTrace(ia32.ESI, retSite2, expr.Const(1))

	res := inf.FunctionBinding(entry, ReturnSites{Addresses: []uint64{retSite, retSite2}})

	ebx, _ := res.Binding.Get(ia32.EBX)
	assert.True(t, expr.IsUnknown(ebx))
	esi, _ := res.Binding.Get(ia32.ESI)
	assert.Equal(t, "1", esi.String())
}

func TestFunctionBinding_StdABI(t *testing.T) {
	inf, engine := newTestInferer(t, true)
	engine.SetTrace(ia32.EBX, retSite, expr.Unknown)
	engine.SetTrace(ia32.EAX, retSite, expr.Unknown)
	engine.SetTrace(ia32.ESP, retSite, expr.Unknown)

	res := inf.FunctionBinding(entry, ReturnSites{Addresses: []uint64{retSite}})

	ebx, _ := res.Binding.Get(ia32.EBX)
	assert.True(t, expr.Equal(ia32.EBX, ebx))
	eax, _ := res.Binding.Get(ia32.EAX)
	assert.True(t, expr.IsUnknown(eax))

	dynamic, ok := res.Effect.(arch.DynamicCallback)
	assert.True(t, ok)
	assert.NotNil(t, dynamic.Handler)
	_, ok = engine.Functions[entry].Binding().(arch.DynamicCallback)
	assert.True(t, ok)
}

func TestFunctionBinding_Thunks(t *testing.T) {
	sz := 4
	tests := []struct {
		name   string
		traces map[expr.Symbol]expr.Expr
		thunk  string
	}{
		{
			name:   "geteip",
			traces: map[expr.Symbol]expr.Expr{ia32.EAX: expr.Const(entry)},
			thunk:  "geteip",
		},
		{
			name:   "get_pc_thunk_ebx",
			traces: map[expr.Symbol]expr.Expr{ia32.EBX: expr.Ind(ia32.ESP, sz, entry)},
			thunk:  "get_pc_thunk_ebx",
		},
		{
			name: "__SEH_prolog",
			traces: map[expr.Symbol]expr.Expr{
				ia32.ESP: expr.New(expr.New(ia32.ESP, expr.Sub, expr.Const(0x18)), expr.Sub,
					expr.Ind(expr.New(ia32.ESP, expr.Add, expr.Const(8)), sz, entry)),
			},
			thunk: "__SEH_prolog",
		},
		{
			name: "__SEH_epilog",
			traces: map[expr.Symbol]expr.Expr{
				ia32.ESP: expr.New(ia32.EBP, expr.Add, expr.Const(4)),
				ia32.EBX: expr.Ind(expr.New(ia32.ESP, expr.Add, expr.Const(16)), sz, entry),
			},
			thunk: "__SEH_epilog",
		},
		{
			name: "geteip has priority",
			traces: map[expr.Symbol]expr.Expr{
				ia32.EAX: expr.Const(entry),
				ia32.EBX: expr.Ind(ia32.ESP, sz, entry),
			},
			thunk: "geteip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf, engine := newTestInferer(t, false)
			for reg, value := range tt.traces {
				engine.SetTrace(reg, retSite, value)
			}

			res := inf.FunctionBinding(entry, ReturnSites{Addresses: []uint64{retSite}})

			assert.Equal(t, tt.thunk, res.Name)
			assert.Equal(t, tt.thunk, engine.Labels[entry])
		})
	}
}

// TestFunctionBinding_FrameProbe verifies that the frame slots are only kept
// when they contain a saved register.
func TestFunctionBinding_FrameProbe(t *testing.T) {
	inf, engine := newTestInferer(t, false)
	engine.SetTrace(ia32.EBP, retSite, expr.New(ia32.ESP, expr.Sub, expr.Const(4)))
	slot1 := expr.Ind(expr.New(ia32.ESP, expr.Add, expr.Const(4)), 4, entry)
	slot2 := expr.Ind(expr.New(ia32.ESP, expr.Add, expr.Const(8)), 4, entry)
	engine.SetTrace(slot1, retSite, ia32.ESI)
	engine.SetTrace(slot2, retSite, expr.Const(5))

	res := inf.FunctionBinding(entry, ReturnSites{Addresses: []uint64{retSite}})

	assert.True(t, res.Binding.Has(slot1))
	assert.False(t, res.Binding.Has(slot2))
	assert.False(t, res.Binding.Has(expr.Ind(ia32.EBP, 4, entry)))
}

// TestFunctionBinding_ThunkReturn verifies that a function ending in a jump
// to an external function is traced from its last instruction.
func TestFunctionBinding_ThunkReturn(t *testing.T) {
	inf, engine := newTestInferer(t, true)
	last := decode(t, 0x1005, 0xff, 0xe0) // jmp eax
	engine.AddInstruction(last)
	engine.Blocks[entry] = &mocks.Block{
		Insts:  []instruction.Instruction{engine.Decoded(entry)},
		Normal: []uint64{0x1005},
	}
	engine.Blocks[0x1005] = &mocks.Block{
		Insts:  []instruction.Instruction{last},
		Normal: []uint64{0x3000, 0x3010},
	}

	inf.FunctionBinding(entry, ReturnSites{External: "ExitProcess"})

	assert.Len(t, engine.TraceCalls, len(ia32.GeneralRegisters))
	call := engine.TraceCalls[0]
	assert.Equal(t, uint64(0x1005), call.From)
	assert.True(t, call.Opts.FromReturnThunk)
}

// TestFunctionBinding_ThunkWithoutEnd verifies that a thunk without a
// branching last block is not traced.
func TestFunctionBinding_ThunkWithoutEnd(t *testing.T) {
	inf, engine := newTestInferer(t, true)
	engine.Blocks[entry] = &mocks.Block{
		Insts:  []instruction.Instruction{engine.Decoded(entry)},
		Normal: []uint64{0x3000},
	}

	res := inf.FunctionBinding(entry, ReturnSites{External: "ExitProcess"})

	assert.Len(t, engine.TraceCalls, 0)
	assert.Equal(t, 0, res.Binding.Len())
}

func TestFunctionBinding_Overwrite(t *testing.T) {
	inf, engine := newTestInferer(t, false)
	inf.FunctionBinding(entry, ReturnSites{Addresses: []uint64{retSite}})

	engine.SetTrace(ia32.EAX, retSite, expr.Const(7))
	inf.FunctionBinding(entry, ReturnSites{Addresses: []uint64{retSite}})

	res, ok := inf.Result(entry)
	assert.True(t, ok)
	eax, _ := res.Binding.Get(ia32.EAX)
	assert.Equal(t, "7", eax.String())
}
