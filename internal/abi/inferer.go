// Package abi infers the calling convention effects of functions without a
// known prototype by backtracing register values from their return points.
package abi

import (
	"slices"
	"sync"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/arch/ia32"
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/options"
)

// savedRegisters are the registers a function that sets up a frame pointer
// is expected to save in its frame.
var savedRegisters = []expr.Symbol{ia32.EBX, ia32.EDX, ia32.ESI, ia32.EDI, ia32.EBP}

// preservedRegisters are presumed preserved by the standard calling
// convention when their trace is inconclusive.
var preservedRegisters = []expr.Symbol{ia32.EBP, ia32.EBX, ia32.ESI, ia32.EDI}

// ReturnSites describes how a function returns to its caller. Either the
// addresses of its return instructions are known or the function ends in a
// thunk jumping to an external function.
type ReturnSites struct {
	Addresses []uint64
	External  string
}

// Result is the outcome of inferring the effect of a function.
type Result struct {
	Binding *expr.Binding        // inferred register and stack slot values
	Effect  arch.FunctionBinding // effect installed into the function entity
	Name    string               // recognized thunk name, empty if none
}

// Inferer infers the effect of calling unprototyped functions.
type Inferer struct {
	logger *log.Logger
	engine arch.Engine
	opts   options.Analysis

	mu      sync.Mutex
	results map[uint64]Result
	offsets *offsetCache
}

// New returns a new inferer that uses the engine as backtrace oracle.
func New(logger *log.Logger, engine arch.Engine, opts options.Analysis) *Inferer {
	if opts.PointerSize == 0 {
		opts.PointerSize = 4
	}
	return &Inferer{
		logger:  logger,
		engine:  engine,
		opts:    opts,
		results: map[uint64]Result{},
		offsets: newOffsetCache(),
	}
}

// Result returns the cached inference result of the function at entry.
func (i *Inferer) Result(entry uint64) (Result, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	res, ok := i.results[entry]
	return res, ok
}

// FunctionBinding infers the effect of the function at entry and installs it
// into the function entity of the engine. A previous result of the function
// is replaced.
func (i *Inferer) FunctionBinding(entry uint64, sites ReturnSites) Result {
	b := expr.NewBinding()

	var thunkLast uint64
	fromThunk := false
	traceable := len(sites.Addresses) > 0
	if i.isThunk(sites) {
		thunkLast, fromThunk = i.thunkLast(entry)
		traceable = fromThunk
	}

	trace := func(loc expr.Expr) {
		if !traceable {
			return
		}
		b.Set(loc, i.traceReturns(loc, entry, sites, thunkLast, fromThunk))
	}

	for _, reg := range ia32.GeneralRegisters {
		trace(reg)
	}

	i.probeFrame(b, entry, trace)

	var effect arch.FunctionBinding = arch.StaticBinding{Binding: b}
	if i.opts.StdABI {
		effect = i.applyStdABI(b, entry)
	} else if esp := valueOf(b, ia32.ESP); !expr.IsUnknown(esp) {
		if _, ok := expr.ConstValue(expr.New(esp, expr.Sub, ia32.ESP)); !ok {
			i.logger.Debug("Function has a variable stack pointer effect",
				log.Hex("address", entry),
				log.Stringer("esp", esp))
		}
	}

	name := matchThunk(b, entry, i.opts.PointerSize)
	if name != "" {
		i.logger.Debug("Recognized thunk",
			log.Hex("address", entry),
			log.String("name", name))
		i.engine.Label(entry, name)
	}

	if fn := i.engine.Function(entry); fn != nil {
		fn.SetBinding(effect)
	}

	res := Result{
		Binding: b,
		Effect:  effect,
		Name:    name,
	}
	i.mu.Lock()
	i.results[entry] = res
	i.mu.Unlock()
	return res
}

// isThunk returns whether the function does not end in a decoded return
// instruction.
func (i *Inferer) isThunk(sites ReturnSites) bool {
	if sites.External != "" {
		return true
	}
	return len(sites.Addresses) > 0 && i.engine.Decoded(sites.Addresses[0]) == nil
}

// thunkLast follows the successors of the function entry, preferring the
// return of called subfunctions, and returns the last instruction of the final
// block if it branches to more than one destination.
func (i *Inferer) thunkLast(entry uint64) (uint64, bool) {
	if i.engine.Decoded(entry) == nil {
		return 0, false
	}
	block := i.engine.Block(entry)
	if block == nil {
		return 0, false
	}

	visited := set.New[uint64]()
	for {
		next, ok := firstSuccessor(block)
		if !ok || i.engine.Decoded(next) == nil || visited.Contains(next) {
			break
		}
		visited.Add(next)

		nextBlock := i.engine.Block(next)
		if nextBlock == nil {
			break
		}
		block = nextBlock
	}

	insts := block.Instructions()
	if len(block.ReturnSuccessors()) != 0 || len(block.NormalSuccessors()) <= 1 || len(insts) == 0 {
		return 0, false
	}
	return insts[len(insts)-1].Address(), true
}

func firstSuccessor(block arch.Block) (uint64, bool) {
	if ret := block.ReturnSuccessors(); len(ret) > 0 {
		return ret[0], true
	}
	if normal := block.NormalSuccessors(); len(normal) > 0 {
		return normal[0], true
	}
	return 0, false
}

// traceReturns backtraces the location from every return point to the entry
// of the function. Divergent results yield Unknown.
func (i *Inferer) traceReturns(loc expr.Expr, entry uint64, sites ReturnSites,
	thunkLast uint64, fromThunk bool) expr.Expr {

	starts := sites.Addresses
	if fromThunk {
		starts = []uint64{thunkLast}
	}

	var results []expr.Expr
	seen := set.New[string]()
	for _, start := range starts {
		opts := arch.TraceOptions{
			IncludeStart:    true,
			SnapshotAddress: entry,
			Origin:          start,
			MaxDepth:        i.opts.MaxDepth,
			FromReturnThunk: fromThunk,
		}
		for _, value := range i.engine.Backtrace(loc, start, opts) {
			value = expr.Reduce(value)
			key := value.String()
			if seen.Contains(key) {
				continue
			}
			seen.Add(key)
			results = append(results, value)
		}
	}

	if len(results) != 1 {
		return expr.Unknown
	}
	return results[0]
}

// probeFrame traces the canonical frame slots of a function that does not
// preserve ebp, as done by custom prologue helpers. Only slots holding a saved
// register are kept.
func (i *Inferer) probeFrame(b *expr.Binding, entry uint64, trace func(expr.Expr)) {
	if ebp, ok := b.Get(ia32.EBP); !ok || expr.Equal(ebp, ia32.EBP) {
		return
	}

	sz := int64(i.opts.PointerSize)
	slots := []expr.Expr{
		ia32.EBP,
		expr.New(ia32.ESP, expr.Add, expr.Const(sz)),
		expr.New(ia32.ESP, expr.Add, expr.Const(2*sz)),
		expr.New(ia32.ESP, expr.Add, expr.Const(3*sz)),
	}
	for _, slot := range slots {
		ind := expr.Ind(slot, i.opts.PointerSize, entry)
		trace(ind)
		value, ok := b.Get(ind)
		if ok && !isSavedRegister(value) {
			b.Delete(ind)
		}
	}
}

func isSavedRegister(e expr.Expr) bool {
	sym, ok := expr.Reduce(e).(expr.Symbol)
	return ok && slices.Contains(savedRegisters, sym)
}

// applyStdABI presumes the standard calling convention for inconclusive
// traces and returns the effect to install for the function.
func (i *Inferer) applyStdABI(b *expr.Binding, entry uint64) arch.FunctionBinding {
	for _, reg := range preservedRegisters {
		if value, ok := b.Get(reg); ok && expr.IsUnknown(value) {
			i.logger.Debug("Presuming register is preserved",
				log.Hex("address", entry),
				log.Stringer("register", reg))
			b.Set(reg, reg)
		}
	}

	if esp, ok := b.Get(ia32.ESP); ok && expr.IsUnknown(esp) {
		i.logger.Debug("Unknown stack pointer effect, using dynamic callback",
			log.Hex("address", entry))
		return arch.DynamicCallback{
			Base:    b,
			Handler: i.StackOffsetCallback(),
		}
	}
	return arch.StaticBinding{Binding: b}
}

// valueOf returns the value of a location, absent locations are unmodified.
func valueOf(b *expr.Binding, loc expr.Expr) expr.Expr {
	if value, ok := b.Get(loc); ok {
		return value
	}
	return loc
}
