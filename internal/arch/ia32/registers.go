package ia32

import (
	"github.com/retroenv/x86sem/internal/expr"
)

// Register symbols as used in semantic bindings.
var (
	EAX = expr.Symbol("eax")
	ECX = expr.Symbol("ecx")
	EDX = expr.Symbol("edx")
	EBX = expr.Symbol("ebx")
	ESP = expr.Symbol("esp")
	EBP = expr.Symbol("ebp")
	ESI = expr.Symbol("esi")
	EDI = expr.Symbol("edi")
)

// Flag symbols. The parity and adjust flags are never modeled.
var (
	FlagC = expr.Symbol("eflag_c")
	FlagZ = expr.Symbol("eflag_z")
	FlagS = expr.Symbol("eflag_s")
	FlagO = expr.Symbol("eflag_o")
	FlagD = expr.Symbol("eflag_d")
)

// Placeholder keys marking reads for the dataflow engine.
var (
	ReadsTarget = expr.Placeholder("reads_target")
	ReadsFlags  = expr.Placeholder("reads_flags")
)

// GeneralRegisters lists the registers traced by the function ABI inference.
var GeneralRegisters = []expr.Symbol{EAX, EBX, ECX, EDX, ESI, EDI, EBP, ESP}

// registerSymbols is indexed by the 3 bit register encoding.
var registerSymbols = [8]expr.Symbol{EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI}

// pushAllOrder is the order in which pusha stores the registers.
var pushAllOrder = registerSymbols

var (
	regNames8  = [8]string{"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"}
	regNames16 = [8]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}
	segNames   = [8]string{"es", "cs", "ss", "ds", "fs", "gs", "seg6", "seg7"}
)

// RegisterSymbol returns the symbol of the 32 bit register with the given encoding.
func RegisterSymbol(index int) expr.Symbol {
	return registerSymbols[index&7]
}
