package ia32

// Field is a named bit field inside the opcode bytes of an instruction.
type Field int

// Opcode bit fields.
const (
	FieldW      Field = iota // operand width, 0 selects 8 bit operands
	FieldD                   // direction
	FieldS                   // sign extension of immediates
	FieldReg                 // general register
	FieldEEEC                // control register
	FieldEEED                // debug register
	FieldSeg2                // es, cs, ss, ds
	FieldSeg2A               // es, ss, ds; cs is not allowed
	FieldSeg3                // any segment register
	FieldSeg3A               // fs, gs
	FieldModRM               // mode and r/m parts of a ModRM byte
	FieldModRMA              // memory only ModRM
	FieldRegFP               // floating point stack register
	FieldRegMMX              // MMX register
	FieldRegXMM              // XMM register
	fieldCount
)

// fieldMasks contains the unshifted bit mask of each field.
var fieldMasks = [fieldCount]byte{
	FieldW:      1,
	FieldD:      1,
	FieldS:      1,
	FieldReg:    7,
	FieldEEEC:   7,
	FieldEEED:   7,
	FieldSeg2:   3,
	FieldSeg2A:  3,
	FieldSeg3:   7,
	FieldSeg3A:  7,
	FieldModRM:  0xc7,
	FieldModRMA: 0xc7,
	FieldRegFP:  7,
	FieldRegMMX: 7,
	FieldRegXMM: 7,
}

var fieldNames = [fieldCount]string{
	"w", "d", "s", "reg", "eeec", "eeed", "seg2", "seg2A", "seg3", "seg3A",
	"modrm", "modrmA", "regfp", "regmmx", "regxmm",
}

func (f Field) String() string {
	if f >= 0 && f < fieldCount {
		return fieldNames[f]
	}
	return "invalid"
}

// FieldPos locates a field by byte index and bit shift inside the opcode bytes.
type FieldPos struct {
	Byte int
	Bit  int
}

// ArgKind is the kind of an instruction argument.
type ArgKind int

// Argument kinds.
const (
	ArgReg      ArgKind = iota // general register from the reg field
	ArgEEEC                    // control register
	ArgEEED                    // debug register
	ArgSeg2                    // segment register from a 2 bit field
	ArgSeg2A                   // segment register from a 2 bit field, cs excluded
	ArgSeg3                    // segment register from a 3 bit field
	ArgSeg3A                   // fs or gs
	ArgRegFP                   // floating point stack register
	ArgRegMMX                  // MMX register, XMM with a operand size prefix
	ArgRegXMM                  // XMM register
	ArgFarPtr                  // segment:offset immediate
	ArgI8                      // signed 8 bit immediate
	ArgU8                      // unsigned 8 bit immediate
	ArgU16                     // unsigned 16 bit immediate
	ArgImm                     // immediate of operand size
	ArgMrmImm                  // memory operand with a direct address
	ArgModRM                   // register or memory from a ModRM byte
	ArgModRMA                  // memory from a ModRM byte
	ArgModRMMMX                // MMX register or memory from a ModRM byte
	ArgModRMXMM                // XMM register or memory from a ModRM byte
	ArgImmVal1                 // implicit constant 1
	ArgImmVal3                 // implicit constant 3
	ArgRegCL                   // implicit cl
	ArgRegEAX                  // implicit accumulator of operand size
	ArgRegDX                   // implicit dx
	ArgRegFP0                  // implicit st(0)
)

// argFields maps argument kinds to the field they are decoded from.
var argFields = map[ArgKind]Field{
	ArgReg:      FieldReg,
	ArgEEEC:     FieldEEEC,
	ArgEEED:     FieldEEED,
	ArgSeg2:     FieldSeg2,
	ArgSeg2A:    FieldSeg2A,
	ArgSeg3:     FieldSeg3,
	ArgSeg3A:    FieldSeg3A,
	ArgRegFP:    FieldRegFP,
	ArgRegMMX:   FieldRegMMX,
	ArgRegXMM:   FieldRegXMM,
	ArgModRM:    FieldModRM,
	ArgModRMA:   FieldModRMA,
	ArgModRMMMX: FieldModRM,
	ArgModRMXMM: FieldModRM,
}
