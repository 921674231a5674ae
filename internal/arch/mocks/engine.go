package mocks

import (
	"fmt"

	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/instruction"
)

var _ arch.Engine = &Engine{}

// TraceCall records a Backtrace invocation.
type TraceCall struct {
	Expr expr.Expr
	From uint64
	Opts arch.TraceOptions
}

// Engine is a programmable mock of the dataflow engine. Backtrace results are
// looked up by the reduced expression and the start address, expressions
// without a programmed result are returned unchanged.
type Engine struct {
	*Memory

	Traces       map[string][]expr.Expr
	Instructions map[uint64]instruction.Instruction
	Blocks       map[uint64]arch.Block
	Functions    map[uint64]arch.Function
	Walks        map[uint64][]arch.WalkEvent
	Annotations  map[uint64]map[string]string
	Labels       map[uint64]string

	TraceCalls []TraceCall
}

// NewEngine creates a new mock engine using the given memory.
func NewEngine(mem *Memory) *Engine {
	if mem == nil {
		mem = NewMemory(0, 0)
	}
	return &Engine{
		Memory:       mem,
		Traces:       map[string][]expr.Expr{},
		Instructions: map[uint64]instruction.Instruction{},
		Blocks:       map[uint64]arch.Block{},
		Functions:    map[uint64]arch.Function{},
		Walks:        map[uint64][]arch.WalkEvent{},
		Annotations:  map[uint64]map[string]string{},
		Labels:       map[uint64]string{},
	}
}

func traceKey(e expr.Expr, from uint64) string {
	return fmt.Sprintf("%s@0x%x", expr.Reduce(e), from)
}

// SetTrace programs the result of backtracing e from the given address.
func (m *Engine) SetTrace(e expr.Expr, from uint64, results ...expr.Expr) {
	m.Traces[traceKey(e, from)] = results
}

// Backtrace returns the programmed results for the expression.
func (m *Engine) Backtrace(e expr.Expr, from uint64, opts arch.TraceOptions) []expr.Expr {
	m.TraceCalls = append(m.TraceCalls, TraceCall{Expr: e, From: from, Opts: opts})
	if results, ok := m.Traces[traceKey(e, from)]; ok {
		return results
	}
	return []expr.Expr{e}
}

// AddInstruction registers a decoded instruction at its address.
func (m *Engine) AddInstruction(inst instruction.Instruction) {
	m.Instructions[inst.Address()] = inst
}

func (m *Engine) Decoded(address uint64) instruction.Instruction {
	inst, ok := m.Instructions[address]
	if !ok {
		return nil
	}
	return inst
}

func (m *Engine) Block(address uint64) arch.Block {
	block, ok := m.Blocks[address]
	if !ok {
		return nil
	}
	return block
}

func (m *Engine) Function(address uint64) arch.Function {
	fn, ok := m.Functions[address]
	if !ok {
		return nil
	}
	return fn
}

func (m *Engine) Annotate(address uint64, key, value string) {
	comments, ok := m.Annotations[address]
	if !ok {
		comments = map[string]string{}
		m.Annotations[address] = comments
	}
	comments[key] = value
}

func (m *Engine) Label(address uint64, name string) {
	m.Labels[address] = name
}

// WalkBackward replays the programmed events of the start address.
func (m *Engine) WalkBackward(from uint64, _ int, fn arch.WalkFunc) {
	for _, ev := range m.Walks[from] {
		if !fn(ev) {
			return
		}
	}
}
