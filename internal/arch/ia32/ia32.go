// Package ia32 implements the IA-32 architecture: instruction decoding,
// symbolic instruction semantics and control flow target resolution.
package ia32

import (
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/instruction"
	"github.com/retroenv/x86sem/internal/options"
)

var _ arch.Architecture = (*Arch)(nil)

// Arch implements the IA-32 architecture.
type Arch struct {
	logger    *log.Logger
	decoder   *Decoder
	semantics *Semantics
	scanner   arch.JumpTableScanner
	ptrSize   int
}

// New returns a new IA-32 architecture. The scanner is used to detect jump
// tables and can be nil to disable the detection.
func New(logger *log.Logger, opts options.Decoder, scanner arch.JumpTableScanner) *Arch {
	decoder := NewDecoder(opts)
	return &Arch{
		logger:    logger,
		decoder:   decoder,
		semantics: NewSemantics(logger, opts.WarnUnhandled),
		scanner:   scanner,
		ptrSize:   decoder.Options().OperandSize / 8,
	}
}

// Decoder returns the instruction decoder.
func (a *Arch) Decoder() *Decoder {
	return a.decoder
}

// PointerSize returns the size of a code pointer in bytes.
func (a *Arch) PointerSize() int {
	return a.ptrSize
}

// Decode decodes the instruction at position pos of data that is mapped at address.
func (a *Arch) Decode(data []byte, pos int, address uint64) (instruction.Instruction, error) {
	inst, err := a.decoder.Decode(data, pos, address)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Effect returns the state transformation of an instruction decoded by this architecture.
func (a *Arch) Effect(inst instruction.Instruction, block arch.Block) *expr.Binding {
	i, ok := inst.(*Instruction)
	if !ok {
		return expr.NewBinding()
	}
	return a.semantics.Effect(i, block)
}

// ControlFlowTargets returns the possible destinations of a control transfer.
func (a *Arch) ControlFlowTargets(inst instruction.Instruction, mem arch.Memory) ([]expr.Expr, bool) {
	i, ok := inst.(*Instruction)
	if !ok {
		return nil, false
	}
	return a.controlFlowTargets(i, mem)
}
