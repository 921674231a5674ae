// Package instruction contains fundamental types for decoded CPU instructions.
package instruction

// Instruction represents a decoded CPU instruction.
type Instruction interface {
	// Address returns the address the instruction was decoded at.
	Address() uint64
	// IsCall returns true if the instruction is a call.
	IsCall() bool
	// IsJump returns true if the instruction is a conditional or unconditional jump.
	IsJump() bool
	// IsReturn returns true if the instruction returns from a function.
	IsReturn() bool
	// Len returns the encoded length of the instruction in bytes.
	Len() int
	// Name returns the instruction name.
	Name() string
	// SetsIP returns true if the instruction modifies the instruction pointer.
	SetsIP() bool
}
