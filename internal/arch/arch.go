// Package arch contains the interfaces used for multi architecture support.
// It acts as a bridge between the dataflow engine and the architecture specific
// instruction decoding and semantics.
package arch

import (
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/instruction"
)

// Architecture contains architecture specific decoding and semantics.
type Architecture interface {
	// Decode decodes the instruction at position pos of data that is mapped at address.
	Decode(data []byte, pos int, address uint64) (instruction.Instruction, error)
	// Effect returns the state transformation of an instruction. The block
	// contains the instructions preceding it, it can be nil.
	Effect(inst instruction.Instruction, block Block) *expr.Binding
	// ControlFlowTargets returns the possible destination expressions of a
	// control transfer instruction. It returns false if the targets can not
	// be expressed.
	ControlFlowTargets(inst instruction.Instruction, mem Memory) ([]expr.Expr, bool)
}

// Memory provides read access to the memory of the analyzed program.
type Memory interface {
	// ReadMemory reads size bytes at the given address.
	ReadMemory(address uint64, size int) ([]byte, error)
}

// Block is a basic block of the analyzed program.
type Block interface {
	// Instructions returns the instructions of the block in address order.
	Instructions() []instruction.Instruction
	// NormalSuccessors returns the addresses reached by falling through or jumping.
	NormalSuccessors() []uint64
	// ReturnSuccessors returns the addresses reached by returning from a called subfunction.
	ReturnSuccessors() []uint64
}

// JumpTable is the result of a jump table scan.
type JumpTable struct {
	Address uint64   // address of the scanned table
	Entries []uint64 // addresses of the accepted table cells in ascending order
	Targets []uint64 // destinations stored in the accepted cells
}

// JumpTableScanner detects the entries of a jump table used by an indirect jump.
type JumpTableScanner interface {
	// Scan scans the table at tableAddress for entries plausibly reachable by
	// the jump at jumpAddress.
	Scan(mem Memory, tableAddress, jumpAddress uint64) JumpTable
}
