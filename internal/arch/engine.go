package arch

import (
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/instruction"
)

// TraceOptions controls a backtrace of the engine.
type TraceOptions struct {
	IncludeStart    bool   // include the effect of the start instruction
	SnapshotAddress uint64 // stop at this address and express values relative to it, 0 for none
	Origin          uint64 // address of the instruction that requested the trace
	MaxDepth        int    // maximum backtrace depth, 0 for the engine default
	FromReturnThunk bool   // the trace starts inside a thunk reached by a return
}

// WalkEventKind is the kind of an event of a backward walk.
type WalkEventKind int

// Backward walk events.
const (
	// WalkUp is emitted when the walk moves from a block to a predecessor.
	WalkUp WalkEventKind = iota
	// WalkEnd is emitted when the walk reaches an address without predecessor.
	WalkEnd
)

// WalkEvent is an event of a backward walk over the control flow graph.
type WalkEvent struct {
	Kind          WalkEventKind
	From          uint64 // start of the block that is left, for WalkUp
	To            uint64 // last instruction of the predecessor, for WalkUp
	SubFuncReturn bool   // the edge is the return of a called subfunction, for WalkUp
	Address       uint64 // address without predecessor, for WalkEnd
}

// WalkFunc receives backward walk events. Returning false stops the walk.
type WalkFunc func(ev WalkEvent) bool

// Engine is the dataflow engine that drives the instruction semantics.
type Engine interface {
	Memory

	// Annotate attaches a key=value comment to the instruction at address.
	Annotate(address uint64, key, value string)
	// Backtrace returns the possible values of e before the instruction at from.
	Backtrace(e expr.Expr, from uint64, opts TraceOptions) []expr.Expr
	// Block returns the basic block containing address, nil if not decoded.
	Block(address uint64) Block
	// Decoded returns the instruction decoded at address, nil if none.
	Decoded(address uint64) instruction.Instruction
	// Function returns the function entity starting at address, nil if none.
	Function(address uint64) Function
	// Label names the given address.
	Label(address uint64, name string)
	// WalkBackward walks the control flow graph backward from the given address.
	WalkBackward(from uint64, maxDepth int, fn WalkFunc)
}
