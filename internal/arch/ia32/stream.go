package ia32

import (
	"encoding/binary"
)

// stream reads the bytes following the opcode of an instruction.
type stream struct {
	data  []byte
	ptr   int
	order binary.ByteOrder
}

func (s *stream) readByte() (byte, error) {
	if s.ptr >= len(s.data) {
		return 0, ErrTruncated
	}
	b := s.data[s.ptr]
	s.ptr++
	return b, nil
}

// readImm reads an immediate of size bytes, sign extending it if signed is set.
func (s *stream) readImm(size int, signed bool) (int64, error) {
	if s.ptr+size > len(s.data) {
		return 0, ErrTruncated
	}
	buf := s.data[s.ptr : s.ptr+size]
	s.ptr += size

	switch size {
	case 1:
		if signed {
			return int64(int8(buf[0])), nil
		}
		return int64(buf[0]), nil
	case 2:
		v := s.order.Uint16(buf)
		if signed {
			return int64(int16(v)), nil
		}
		return int64(v), nil
	case 4:
		v := s.order.Uint32(buf)
		if signed {
			return int64(int32(v)), nil
		}
		return int64(v), nil
	default:
		return int64(s.order.Uint64(buf)), nil
	}
}
