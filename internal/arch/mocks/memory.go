// Package mocks provides mock implementations of arch interfaces for testing.
package mocks

import (
	"errors"
	"fmt"

	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/instruction"
)

var _ arch.Memory = &Memory{}

var errOutOfRange = errors.New("address out of range")

// Memory is a flat memory image mapped at a base address.
type Memory struct {
	Base uint64
	Data []byte
}

// NewMemory creates a new mock memory of the given size mapped at base.
func NewMemory(base uint64, size int) *Memory {
	return &Memory{
		Base: base,
		Data: make([]byte, size),
	}
}

// ReadMemory reads size bytes at the given address.
func (m *Memory) ReadMemory(address uint64, size int) ([]byte, error) {
	if address < m.Base || address-m.Base+uint64(size) > uint64(len(m.Data)) {
		return nil, fmt.Errorf("reading %d bytes at 0x%x: %w", size, address, errOutOfRange)
	}
	start := address - m.Base
	return m.Data[start : start+uint64(size)], nil
}

// PutUint32 stores a little endian 32 bit value at the given address.
func (m *Memory) PutUint32(address uint64, value uint32) {
	start := address - m.Base
	m.Data[start] = byte(value)
	m.Data[start+1] = byte(value >> 8)
	m.Data[start+2] = byte(value >> 16)
	m.Data[start+3] = byte(value >> 24)
}

var _ arch.Block = &Block{}

// Block is a mock basic block.
type Block struct {
	Insts   []instruction.Instruction
	Normal  []uint64
	Returns []uint64
}

func (b *Block) Instructions() []instruction.Instruction {
	return b.Insts
}

func (b *Block) NormalSuccessors() []uint64 {
	return b.Normal
}

func (b *Block) ReturnSuccessors() []uint64 {
	return b.Returns
}

var _ arch.Function = &Function{}

// Function is a mock function entity.
type Function struct {
	Current arch.FunctionBinding
}

func (f *Function) Binding() arch.FunctionBinding {
	return f.Current
}

func (f *Function) SetBinding(b arch.FunctionBinding) {
	f.Current = b
}
