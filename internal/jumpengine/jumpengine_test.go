package jumpengine

import (
	"encoding/binary"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch/mocks"
	"github.com/retroenv/x86sem/internal/options"
)

func newScanner(t *testing.T) *Scanner {
	t.Helper()
	return New(log.NewTestLogger(t), 4, binary.LittleEndian, options.NewAnalysis())
}

// TestScan_ConsecutiveEntries verifies that a table of addresses close to the
// jump is detected up to the first cell that points too far away.
func TestScan_ConsecutiveEntries(t *testing.T) {
	mem := mocks.NewMemory(0x1000, 0x1000)
	targets := []uint32{0x1100, 0x1120, 0x1140, 0x1160}
	for i, target := range targets {
		mem.PutUint32(0x1800+uint64(i*4), target)
	}
	mem.PutUint32(0x1810, 0x90000000)
	mem.PutUint32(0x17fc, 0xffffffff)

	table := newScanner(t).Scan(mem, 0x1800, 0x1050)

	assert.Equal(t, uint64(0x1800), table.Address)
	assert.Equal(t, []uint64{0x1800, 0x1804, 0x1808, 0x180c}, table.Entries)
	assert.Equal(t, []uint64{0x1100, 0x1120, 0x1140, 0x1160}, table.Targets)
}

// TestScan_BackwardEntries verifies that cells before the indexed start are
// accepted when the index is biased.
func TestScan_BackwardEntries(t *testing.T) {
	mem := mocks.NewMemory(0x1000, 0x1000)
	mem.PutUint32(0x17f8, 0x90000000)
	mem.PutUint32(0x17fc, 0x1200)
	mem.PutUint32(0x1800, 0x1210)
	mem.PutUint32(0x1804, 0x90000000)

	table := newScanner(t).Scan(mem, 0x1800, 0x1050)

	assert.Equal(t, []uint64{0x17fc, 0x1800}, table.Entries)
	assert.Equal(t, []uint64{0x1200, 0x1210}, table.Targets)
}

// TestScan_MemoryEnd verifies that the scan terminates at the end of the
// readable memory.
func TestScan_MemoryEnd(t *testing.T) {
	mem := mocks.NewMemory(0x1000, 0x10)
	for i := range 4 {
		mem.PutUint32(0x1000+uint64(i*4), 0x1000)
	}

	table := newScanner(t).Scan(mem, 0x1000, 0x1000)

	assert.Len(t, table.Entries, 4)
	assert.Equal(t, uint64(0x100c), table.Entries[3])
}

// TestScan_MaxEntries verifies that the number of entries per direction is limited.
func TestScan_MaxEntries(t *testing.T) {
	mem := mocks.NewMemory(0x1000, 0x100)
	for i := range 0x40 {
		mem.PutUint32(0x1000+uint64(i*4), 0x1000)
	}

	opts := options.NewAnalysis()
	opts.JumpTableMaxEntries = 3
	s := New(log.NewTestLogger(t), 4, binary.LittleEndian, opts)

	table := s.Scan(mem, 0x1080, 0x1000)

	assert.Equal(t, []uint64{0x1074, 0x1078, 0x107c, 0x1080, 0x1084, 0x1088}, table.Entries)
}

// recordingMemory records the addresses of all reads.
type recordingMemory struct {
	*mocks.Memory
	reads []uint64
}

func (m *recordingMemory) ReadMemory(address uint64, size int) ([]byte, error) {
	m.reads = append(m.reads, address)
	return m.Memory.ReadMemory(address, size)
}

// TestScan_TableAtAddressZero verifies that the backward scan does not wrap
// around the start of the address space.
func TestScan_TableAtAddressZero(t *testing.T) {
	mem := &recordingMemory{Memory: mocks.NewMemory(0, 0x10)}
	mem.PutUint32(0, 0x10)
	mem.PutUint32(4, 0x20)
	mem.PutUint32(8, 0x90000000)

	table := newScanner(t).Scan(mem, 0, 0)

	assert.Equal(t, []uint64{0, 4}, table.Entries)
	for _, address := range mem.reads {
		assert.True(t, address < 0x10)
	}
}

func TestTableScan_Address(t *testing.T) {
	tests := []struct {
		name     string
		scan     tableScan
		expected uint64
		ok       bool
	}{
		{"forward", tableScan{start: 0x100, step: 4, entries: 2}, 0x108, true},
		{"backward", tableScan{start: 0x100, step: -4, entries: 2}, 0xf8, true},
		{"backward to zero", tableScan{start: 8, step: -4, entries: 2}, 0, true},
		{"backward below zero", tableScan{start: 4, step: -4, entries: 2}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			address, ok := tt.scan.address()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, address)
		})
	}
}

// TestNew_DefaultLimits verifies that unset limits use the default options
// instead of disabling the scan.
func TestNew_DefaultLimits(t *testing.T) {
	s := New(log.NewTestLogger(t), 4, nil, options.Analysis{})
	defaults := options.NewAnalysis()
	assert.Equal(t, defaults.JumpTableWindow, s.window)
	assert.Equal(t, defaults.JumpTableMaxEntries, s.maxEntries)

	mem := mocks.NewMemory(0x1000, 0x1000)
	mem.PutUint32(0x1800, 0x1100)
	mem.PutUint32(0x1804, 0x1120)
	mem.PutUint32(0x1808, 0x90000000)
	mem.PutUint32(0x17fc, 0x90000000)

	table := s.Scan(mem, 0x1800, 0x1050)
	assert.Equal(t, []uint64{0x1800, 0x1804}, table.Entries)
}

func TestProcessEntry(t *testing.T) {
	mem := mocks.NewMemory(0x1000, 0x10)
	mem.PutUint32(0x1000, 0x2000)
	mem.PutUint32(0x1004, 0x1000)
	s := newScanner(t)

	tests := []struct {
		name     string
		address  uint64
		jump     uint64
		expected uint64
		ok       bool
		err      bool
	}{
		{"destination after jump", 0x1000, 0x1800, 0x2000, true, false},
		{"destination before jump", 0x1004, 0x1800, 0x1000, true, false},
		{"destination too far", 0x1000, 0x4000, 0x2000, false, false},
		{"unreadable", 0x2000, 0x1800, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			destination, ok, err := s.processEntry(mem, tt.address, tt.jump)
			if tt.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, destination)
		})
	}
}
