package ia32

import (
	"github.com/retroenv/x86sem/internal/expr"
)

// Components of an addressing template. Non negative values are register encodings.
const (
	compSIB    = -1
	compDisp8  = -2
	compDisp16 = -3
	compDisp32 = -4
)

// addressing templates indexed by mode (0 to 2) and r/m.
var (
	addressing16 = buildAddressing16()
	addressing32 = buildAddressing32()
)

func buildAddressing16() [3][8][]int {
	const bx, bp, si, di = 3, 5, 6, 7
	base := [8][]int{{bx, si}, {bx, di}, {bp, si}, {bp, di}, {si}, {di}, {bp}, {bx}}

	var t [3][8][]int
	for rm := 0; rm < 8; rm++ {
		t[0][rm] = base[rm]
		t[1][rm] = append(append([]int(nil), base[rm]...), compDisp8)
		t[2][rm] = append(append([]int(nil), base[rm]...), compDisp16)
	}
	t[0][6] = []int{compDisp16}
	return t
}

func buildAddressing32() [3][8][]int {
	var t [3][8][]int
	for rm := 0; rm < 8; rm++ {
		first := rm
		if rm == 4 {
			first = compSIB
		}
		t[0][rm] = []int{first}
		t[1][rm] = []int{first, compDisp8}
		t[2][rm] = []int{first, compDisp32}
	}
	t[0][5] = []int{compDisp32}
	return t
}

// registerFactory creates the register operand for a ModRM byte with mode 3.
type registerFactory func(index, size int) Operand

func generalRegister(index, size int) Operand {
	return &Reg{Index: index, Size: size}
}

func simdRegister(index, size int) Operand {
	return &SimdReg{Index: index, Size: size}
}

// decodeModRM decodes the operand of a ModRM byte, reading the SIB byte and
// displacement from the stream as needed.
func decodeModRM(s *stream, modrm byte, addrSize, size int, seg *SegReg, regs registerFactory) (Operand, error) {
	mode := int(modrm>>6) & 3
	rm := int(modrm) & 7
	if mode == 3 {
		return regs(rm, size), nil
	}

	template := addressing32[mode][rm]
	if addrSize == 16 {
		template = addressing16[mode][rm]
	}

	m := &Memory{
		Segment:  seg,
		AddrSize: addrSize,
		Size:     size,
	}
	for _, comp := range template {
		switch comp {
		case compSIB:
			if err := decodeSIB(s, m, mode, addrSize); err != nil {
				return nil, err
			}

		case compDisp8, compDisp16, compDisp32:
			width := 1
			switch comp {
			case compDisp16:
				width = 2
			case compDisp32:
				width = 4
			}
			v, err := s.readImm(width, true)
			if err != nil {
				return nil, err
			}
			m.Disp = expr.Const(v)

		default:
			reg := &Reg{Index: comp, Size: addrSize}
			if m.Base == nil {
				m.Base = reg
			} else {
				m.Index = reg
				m.Scale = 1
			}
		}
	}
	return m, nil
}

func decodeSIB(s *stream, m *Memory, mode, addrSize int) error {
	sib, err := s.readByte()
	if err != nil {
		return err
	}

	index := int(sib>>3) & 7
	if index != 4 {
		m.Index = &Reg{Index: index, Size: addrSize}
		m.Scale = 1 << (sib >> 6)
	}

	base := int(sib) & 7
	if base == 5 && mode == 0 {
		v, err := s.readImm(addrSize/8, true)
		if err != nil {
			return err
		}
		m.Disp = expr.Const(v)
		return nil
	}
	m.Base = &Reg{Index: base, Size: addrSize}
	return nil
}
