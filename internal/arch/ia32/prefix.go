package ia32

// Repeat is the repeat prefix of a string instruction.
type Repeat int

// Repeat prefixes. A raw 0xf3 prefix is recorded as RepZ and a raw 0xf2 prefix
// as RepNZ, the decoder reinterprets them based on the string instruction.
const (
	RepNone Repeat = iota
	Rep
	RepZ
	RepNZ
)

var repeatNames = [...]string{"", "rep", "repz", "repnz"}

func (r Repeat) String() string {
	return repeatNames[r]
}

// Hint is a branch hint derived from a segment override prefix.
type Hint int

// Branch hints.
const (
	HintNone Hint = iota
	HintTaken
	HintNotTaken
)

// PrefixSet contains the legacy prefixes seen before an opcode.
type PrefixSet struct {
	List        []byte // raw prefix bytes in order
	Lock        bool
	Repeat      Repeat
	Segment     *SegReg
	JumpHint    Hint
	OperandSize bool
	AddressSize bool
}

// Has returns whether the prefix byte was seen.
func (p *PrefixSet) Has(b byte) bool {
	for _, v := range p.List {
		if v == b {
			return true
		}
	}
	return false
}

// add records b if it is a prefix byte and returns whether it was one.
// Later prefixes of the same group override earlier ones.
func (p *PrefixSet) add(b byte) bool {
	switch b {
	case 0xf0:
		p.Lock = true
	case 0xf2:
		p.Repeat = RepNZ
	case 0xf3:
		p.Repeat = RepZ
	case 0x26, 0x2e, 0x36, 0x3e, 0x64, 0x65:
		index := int(b>>3) & 3
		if b&0x40 != 0 {
			index = int(b) & 7
		}
		p.Segment = &SegReg{Index: index}
		if b&0x10 != 0 {
			p.JumpHint = HintTaken
		} else {
			p.JumpHint = HintNotTaken
		}
	case 0x66:
		p.OperandSize = true
	case 0x67:
		p.AddressSize = true
	default:
		return false
	}

	p.List = append(p.List, b)
	return true
}
