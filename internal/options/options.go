// Package options contains the program options.
package options

import (
	"encoding/binary"
)

// Parameters contains file path and address options.
type Parameters struct {
	Input  string `flag:"i" usage:"input binary file"`
	Output string `flag:"o" usage:"output listing file (default: stdout)"`
	Base   uint64 `flag:"base" usage:"virtual address of the first byte of the input"`
	Offset int    `flag:"offset" usage:"file offset to start decoding at"`
	Count  int    `flag:"n" usage:"maximum number of instructions to decode, 0 for all"`
}

// Flags contains behavior options.
type Flags struct {
	Mode16    bool `flag:"16" usage:"decode with 16 bit default operand and address size"`
	Semantics bool `flag:"sem" usage:"print the semantic binding of every instruction"`
	Xrefs     bool `flag:"xrefs" usage:"print the control flow targets of branches"`
	Compare   bool `flag:"compare" usage:"compare every instruction with the x86asm decoder"`
	Dump      bool `flag:"dump" usage:"dump the decoded instruction structures"`
	Debug     bool `flag:"debug" usage:"enable debug logging"`
	Quiet     bool `flag:"q" usage:"quiet mode"`
}

// Program options of the listing tool.
type Program struct {
	Parameters
	Flags
}

// Decoder defines options to control the instruction decoder.
type Decoder struct {
	AddressSize int              // default address size in bits, 16 or 32
	OperandSize int              // default operand size in bits, 16 or 32
	ByteOrder   binary.ByteOrder // byte order of immediates and displacements

	WarnUnhandled bool // log instructions without a semantic binding
}

// NewDecoder returns decoder options for 32 bit protected mode code.
func NewDecoder() Decoder {
	return Decoder{
		AddressSize: 32,
		OperandSize: 32,
		ByteOrder:   binary.LittleEndian,
	}
}

// Analysis defines options of the control flow and calling convention analysis.
type Analysis struct {
	PointerSize int  // size of a stack slot and code pointer in bytes
	StdABI      bool // assume the standard calling convention for inferred functions
	MaxDepth    int  // maximum backtrace depth passed to the engine, 0 for the engine default

	JumpTableWindow     int64 // maximum distance of jump table entries to the jump
	JumpTableMaxEntries int   // maximum number of entries scanned per direction
}

// NewAnalysis returns the default analysis options.
func NewAnalysis() Analysis {
	return Analysis{
		PointerSize:         4,
		StdABI:              true,
		JumpTableWindow:     4096,
		JumpTableMaxEntries: 1024,
	}
}
