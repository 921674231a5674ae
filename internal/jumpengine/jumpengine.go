// Package jumpengine provides jump table detection for indirect jumps.
package jumpengine

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/options"
)

var _ arch.JumpTableScanner = &Scanner{}

// tableScan stores the state of scanning a jump table in one direction from
// the indexed table start.
type tableScan struct {
	entries    int    // count of accepted entries
	terminated bool   // marks whether the end of the table has been found
	start      uint64 // address of the first cell scanned in this direction
	step       int64  // distance between cells, negative when scanning backward
}

// Scanner detects jump table entries by checking that the stored destinations
// are close to the jump that uses the table.
type Scanner struct {
	logger     *log.Logger
	entrySize  int
	order      binary.ByteOrder
	window     int64
	maxEntries int
}

// New returns a new jump table scanner. Limits that are not set fall back to
// the default analysis options.
func New(logger *log.Logger, entrySize int, order binary.ByteOrder, opts options.Analysis) *Scanner {
	if order == nil {
		order = binary.LittleEndian
	}
	defaults := options.NewAnalysis()
	if opts.JumpTableWindow <= 0 {
		opts.JumpTableWindow = defaults.JumpTableWindow
	}
	if opts.JumpTableMaxEntries <= 0 {
		opts.JumpTableMaxEntries = defaults.JumpTableMaxEntries
	}
	return &Scanner{
		logger:     logger,
		entrySize:  entrySize,
		order:      order,
		window:     opts.JumpTableWindow,
		maxEntries: opts.JumpTableMaxEntries,
	}
}

// address returns the address of the next cell to scan and false if it lies
// outside of the address space.
func (sc *tableScan) address() (uint64, bool) {
	offset := sc.step * int64(sc.entries)
	if offset < 0 && uint64(-offset) > sc.start {
		return 0, false
	}
	return sc.start + uint64(offset), true
}

// Scan scans the table at tableAddress in both directions. Cells are accepted
// while the stored destination is within the window distance of the jump.
// The direction with fewer accepted entries is advanced first, so that a table
// bordering code is not extended into it by a long run in the other direction.
func (s *Scanner) Scan(mem arch.Memory, tableAddress, jumpAddress uint64) arch.JumpTable {
	size := int64(s.entrySize)
	scans := []*tableScan{
		{start: tableAddress, step: size},
	}
	if tableAddress >= uint64(size) {
		scans = append(scans, &tableScan{start: tableAddress - uint64(size), step: -size})
	}

	accepted := set.New[uint64]()
	table := arch.JumpTable{Address: tableAddress}

	for len(scans) != 0 {
		// Remove all terminated directions
		scans = slices.DeleteFunc(scans, func(sc *tableScan) bool {
			return sc.terminated || sc.entries >= s.maxEntries
		})

		minEntries := -1
		for _, sc := range scans {
			if sc.entries < minEntries || minEntries == -1 {
				minEntries = sc.entries
			}
		}

		for _, sc := range scans {
			if sc.entries != minEntries {
				continue
			}

			address, ok := sc.address()
			if !ok {
				sc.terminated = true
				continue
			}
			destination, ok, err := s.processEntry(mem, address, jumpAddress)
			if err != nil {
				s.logger.Debug("Jump table scan stopped",
					log.Hex("address", address),
					log.Err(err))
			}
			if !ok {
				sc.terminated = true
				continue
			}

			sc.entries++
			if accepted.Contains(address) {
				continue
			}
			accepted.Add(address)
			table.Entries = append(table.Entries, address)
			table.Targets = append(table.Targets, destination)
		}
	}

	sortTable(&table)

	s.logger.Debug("Jump table",
		log.String("address", fmt.Sprintf("0x%08X", tableAddress)),
		log.Int("entries", len(table.Entries)),
	)
	return table
}

// processEntry reads a potential table cell and returns its destination and
// whether it is plausible for the jump.
func (s *Scanner) processEntry(mem arch.Memory, address, jumpAddress uint64) (uint64, bool, error) {
	data, err := mem.ReadMemory(address, s.entrySize)
	if err != nil {
		return 0, false, fmt.Errorf("reading table entry: %w", err)
	}
	if len(data) < s.entrySize {
		return 0, false, nil
	}

	var destination uint64
	switch s.entrySize {
	case 2:
		destination = uint64(s.order.Uint16(data))
	case 4:
		destination = uint64(s.order.Uint32(data))
	default:
		destination = s.order.Uint64(data)
	}

	distance := int64(destination - jumpAddress)
	if distance < 0 {
		distance = -distance
	}
	return destination, distance < s.window, nil
}

// sortTable sorts the entries and their targets by ascending cell address.
func sortTable(table *arch.JumpTable) {
	indexes := make([]int, len(table.Entries))
	for i := range indexes {
		indexes[i] = i
	}
	slices.SortFunc(indexes, func(a, b int) int {
		switch {
		case table.Entries[a] < table.Entries[b]:
			return -1
		case table.Entries[a] > table.Entries[b]:
			return 1
		default:
			return 0
		}
	})

	entries := make([]uint64, len(indexes))
	targets := make([]uint64, len(indexes))
	for i, idx := range indexes {
		entries[i] = table.Entries[idx]
		targets[i] = table.Targets[idx]
	}
	table.Entries = entries
	table.Targets = targets
}
