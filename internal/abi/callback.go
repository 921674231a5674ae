package abi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/arch/ia32"
	"github.com/retroenv/x86sem/internal/expr"
)

const (
	stackOffsetPrefix = "autostackoffset_"
	maxStackSlots     = 10
	stackOffsetKey    = "stackoff"
)

// DefaultFunction returns the effect used for calls to functions that were not
// analyzed. The scratch registers are clobbered and the stack pointer
// adjustment is resolved per call site.
func (i *Inferer) DefaultFunction() arch.DynamicCallback {
	base := expr.NewBinding()
	base.Set(ia32.EAX, expr.Unknown)
	base.Set(ia32.ECX, expr.Unknown)
	base.Set(ia32.EDX, expr.Unknown)
	base.Set(ia32.ESP, expr.New(ia32.ESP, expr.Add, expr.Unknown))
	return arch.DynamicCallback{
		Base:    base,
		Handler: i.StackOffsetCallback(),
	}
}

// BacktrackFilter filters the expressions tracked through a call. Traces are
// only continued through known functions or through calls and jumps to
// unknown functions.
func (i *Inferer) BacktrackFilter(engine arch.Engine, tracked []expr.Expr, isDefault bool, callSite uint64) []expr.Expr {
	if !isDefault {
		return tracked
	}
	inst := engine.Decoded(callSite)
	if inst != nil && (inst.Name() == "call" || inst.Name() == "jmp") {
		return tracked
	}
	return nil
}

// StackOffsetCallback returns the callback that determines the stack pointer
// adjustment of a call from the way the caller accesses its return address.
func (i *Inferer) StackOffsetCallback() arch.Callback {
	return i.stackOffset
}

func (i *Inferer) stackOffset(req arch.CallbackRequest) *expr.Binding {
	sz := int64(i.opts.PointerSize)
	bind := req.Binding
	if bind == nil {
		bind = expr.NewBinding()
	}

	if off, ok := i.offsets.get(req.Engine, req.CallSite); ok {
		return bind.Merge(stackAdjust(off))
	}

	ind, ok := i.returnAddressAccess(req)
	if !ok {
		return bind
	}

	funcStart, ok := findFunctionStart(req.Engine, req.CallSite, req.MaxDepth)
	if !ok {
		return bind
	}

	variable := stackOffsetVariable(req)
	shifted := expr.Bind(ind, map[expr.Symbol]expr.Expr{
		ia32.ESP: expr.New(ia32.ESP, expr.Add, variable),
	})
	list := req.Engine.Backtrace(shifted, req.CallSite, arch.TraceOptions{
		IncludeStart:    true,
		SnapshotAddress: funcStart,
		Origin:          req.Origin,
		MaxDepth:        req.MaxDepth,
	})

	off, ok := i.selectOffset(list, variable)
	if !ok {
		i.logger.Debug("Stack offset not found",
			log.Hex("function", req.Function),
			log.Hex("call", req.CallSite),
			log.Hex("start", funcStart))
		return bind
	}

	bind = bind.Merge(stackAdjust(off))
	if !req.Default {
		i.logger.Debug("Stack offset found for function",
			log.Hex("function", req.Function),
			log.Hex("call", req.CallSite),
			log.Int("offset", int(off)))
		if fn := req.Engine.Function(req.Function); fn != nil {
			fn.SetBinding(arch.StaticBinding{Binding: bind})
		}
		i.retrace(req)
		return bind
	}

	if req.Engine.Decoded(req.CallSite) == nil {
		return bind
	}
	i.logger.Debug("Stack offset found for call",
		log.Hex("call", req.CallSite),
		log.Int("offset", int(off-sz)))
	req.Engine.Annotate(req.CallSite, stackOffsetKey, strconv.FormatInt(off-sz, 10))
	i.offsets.set(req.Engine, req.CallSite, off)
	i.retrace(req)
	return bind
}

// returnAddressAccess returns the traced expression if it is the access of
// the return address by a return instruction.
func (i *Inferer) returnAddressAccess(req arch.CallbackRequest) (*expr.Indirection, bool) {
	origin := req.Engine.Decoded(req.Origin)
	if origin == nil || !origin.IsReturn() || req.Expr == nil {
		return nil, false
	}

	ind, ok := expr.Reduce(req.Expr).(*expr.Indirection)
	if !ok || ind.Origin != req.Origin {
		return nil, false
	}

	for _, sym := range expr.Externals(ind) {
		if sym != ia32.ESP && !strings.HasPrefix(string(sym), stackOffsetPrefix) {
			return nil, false
		}
	}
	if !usesStackPointer(ind) {
		return nil, false
	}
	return ind, true
}

func usesStackPointer(e expr.Expr) bool {
	for _, sym := range expr.Externals(e) {
		if sym == ia32.ESP {
			return true
		}
	}
	return false
}

// findFunctionStart walks backward from the call site to the entry of the
// enclosing function, which is either reached through a call or has no
// predecessor.
func findFunctionStart(engine arch.Engine, callSite uint64, maxDepth int) (uint64, bool) {
	var start uint64
	found := false
	engine.WalkBackward(callSite, maxDepth, func(ev arch.WalkEvent) bool {
		switch ev.Kind {
		case arch.WalkUp:
			if ev.SubFuncReturn {
				return true
			}
			inst := engine.Decoded(ev.To)
			if inst == nil || inst.Name() != "call" {
				return true
			}
			start = ev.From
		case arch.WalkEnd:
			start = ev.Address
		default:
			return true
		}
		found = true
		return false
	})
	return start, found
}

// stackOffsetVariable returns the symbolic stack offset of a call site.
func stackOffsetVariable(req arch.CallbackRequest) expr.Symbol {
	function := fmt.Sprintf("0x%x", req.Function)
	if req.Default {
		function = "default"
	}
	return expr.Symbol(fmt.Sprintf("%s%s_0x%x", stackOffsetPrefix, function, req.CallSite))
}

// selectOffset returns the stack adjustment of the call from the traced
// return address accesses. The access is expressed relative to the stack
// pointer shifted by variable.
func (i *Inferer) selectOffset(list []expr.Expr, variable expr.Symbol) (int64, bool) {
	if len(list) == 0 {
		return 0, false
	}

	shifted := expr.New(ia32.ESP, expr.Add, variable)
	offsetOf := func(e expr.Expr) (expr.Expr, bool) {
		ind, ok := expr.Reduce(e).(*expr.Indirection)
		if !ok {
			return nil, false
		}
		return expr.Reduce(expr.New(shifted, expr.Sub, ind.Target)), true
	}

	chosen := list[0]
	for _, e := range list {
		off, ok := offsetOf(e)
		if !ok {
			continue
		}
		if v, ok := off.(expr.Const); ok && i.validOffset(int64(v)) {
			chosen = e
			break
		}
	}

	off, ok := offsetOf(chosen)
	if !ok {
		return 0, false
	}

	switch v := off.(type) {
	case expr.Const:
		if !i.validOffset(int64(v)) {
			i.logger.Debug("Ignoring stack offset",
				log.Int("offset", int(v)))
			return 0, false
		}
		return int64(v), true
	default:
		return i.cdeclOffset(off, variable)
	}
}

// cdeclOffset resolves an offset that depends on the stack offsets of other
// unknown calls by assuming they only pop their return address.
func (i *Inferer) cdeclOffset(off expr.Expr, variable expr.Symbol) (int64, bool) {
	sz := int64(i.opts.PointerSize)
	others := map[expr.Symbol]expr.Expr{}
	for _, sym := range expr.Externals(off) {
		if sym != variable && strings.HasPrefix(string(sym), stackOffsetPrefix) {
			others[sym] = expr.Const(sz)
		}
	}
	if v, ok := expr.ConstValue(expr.Bind(off, others)); ok && v == sz {
		return sz, true
	}
	return 0, false
}

// validOffset returns whether off is a plausible stack adjustment of a call,
// a positive multiple of the pointer size of at most maxStackSlots slots.
func (i *Inferer) validOffset(off int64) bool {
	sz := int64(i.opts.PointerSize)
	return off >= sz && off <= maxStackSlots*sz && off%sz == 0
}

// retrace backtraces the return address again so that analyses depending on
// the call are updated.
func (i *Inferer) retrace(req arch.CallbackRequest) {
	ret := expr.Ind(ia32.ESP, i.opts.PointerSize, req.Origin)
	req.Engine.Backtrace(ret, req.Origin, arch.TraceOptions{Origin: req.Origin})
}

func stackAdjust(off int64) *expr.Binding {
	b := expr.NewBinding()
	b.Set(ia32.ESP, expr.New(ia32.ESP, expr.Add, expr.Const(off)))
	return b
}
