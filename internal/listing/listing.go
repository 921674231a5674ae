// Package listing implements a linear sweep listing of raw IA-32 code.
package listing

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch/ia32"
	"github.com/retroenv/x86sem/internal/cli"
	"github.com/retroenv/x86sem/internal/expr"
	"github.com/retroenv/x86sem/internal/jumpengine"
	"github.com/retroenv/x86sem/internal/options"
	"golang.org/x/arch/x86/x86asm"
)

var errOutOfImage = errors.New("address outside of image")

// Image is a raw file mapped at a base address. It provides the memory view
// used to resolve jump tables.
type Image struct {
	Base uint64
	Data []byte
}

// ReadMemory reads size bytes at the given address.
func (m *Image) ReadMemory(address uint64, size int) ([]byte, error) {
	if address < m.Base || address-m.Base+uint64(size) > uint64(len(m.Data)) {
		return nil, fmt.Errorf("reading %d bytes at 0x%x: %w", size, address, errOutOfImage)
	}
	start := address - m.Base
	return m.Data[start : start+uint64(size)], nil
}

// Stats contains the counters of a listing run.
type Stats struct {
	Instructions int // decoded instructions
	Undecoded    int // bytes emitted as data
	Mismatches   int // instructions whose length differs from x86asm
}

// Lister writes the listing of an image.
type Lister struct {
	logger *log.Logger
	opts   options.Program
	arch   *ia32.Arch
	image  *Image
	mode   int
}

// New returns a new lister for the file contents in data.
func New(logger *log.Logger, opts options.Program, data []byte) *Lister {
	decoderOptions := cli.DecoderOptions(opts)
	ptrSize := decoderOptions.OperandSize / 8
	scanner := jumpengine.New(logger, ptrSize, binary.LittleEndian, options.NewAnalysis())

	return &Lister{
		logger: logger,
		opts:   opts,
		arch:   ia32.New(logger, decoderOptions, scanner),
		image:  &Image{Base: opts.Base, Data: data},
		mode:   decoderOptions.OperandSize,
	}
}

// Write decodes the image starting at the configured offset and writes one
// line per instruction. Bytes that can not be decoded are written as data and
// the sweep continues with the next byte.
func (l *Lister) Write(ctx context.Context, w io.Writer) (Stats, error) {
	var stats Stats
	data := l.image.Data
	if l.opts.Offset > len(data) {
		return stats, fmt.Errorf("start offset %d exceeds file size %d", l.opts.Offset, len(data))
	}

	for pos := l.opts.Offset; pos < len(data); {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("listing interrupted at offset %d: %w", pos, err)
		}
		if l.opts.Count > 0 && stats.Instructions >= l.opts.Count {
			break
		}

		address := l.image.Base + uint64(pos)
		inst, err := l.arch.Decoder().Decode(data, pos, address)
		if err != nil {
			l.logger.Debug("Decoding failed", log.Hex("address", address), log.Err(err))
			if _, err := fmt.Fprintf(w, "%08x  %-20s db 0x%02x\n", address, fmt.Sprintf("%02x", data[pos]), data[pos]); err != nil {
				return stats, fmt.Errorf("writing listing: %w", err)
			}
			stats.Undecoded++
			pos++
			continue
		}

		if err := l.writeInstruction(w, inst, &stats); err != nil {
			return stats, fmt.Errorf("writing listing: %w", err)
		}
		stats.Instructions++
		pos += inst.Len()
	}

	return stats, nil
}

func (l *Lister) writeInstruction(w io.Writer, inst *ia32.Instruction, stats *Stats) error {
	line := fmt.Sprintf("%08x  %-20s %s", inst.Address(), hexBytes(inst.Bytes()), inst.String())
	if l.opts.Compare {
		line += l.compare(inst, stats)
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}

	if l.opts.Semantics {
		if err := l.writeSemantics(w, inst); err != nil {
			return err
		}
	}
	if l.opts.Xrefs && inst.SetsIP() {
		if err := l.writeTargets(w, inst); err != nil {
			return err
		}
	}
	if l.opts.Dump {
		spew.Fdump(w, inst)
	}
	return nil
}

// compare decodes the instruction bytes with x86asm and returns the comment
// that is appended to the listing line.
func (l *Lister) compare(inst *ia32.Instruction, stats *Stats) string {
	data := l.image.Data[inst.Address()-l.image.Base:]
	ref, err := x86asm.Decode(data, l.mode)
	if err != nil {
		return "  ; x86asm: " + err.Error()
	}

	comment := "  ; x86asm: " + x86asm.IntelSyntax(ref, inst.Address(), nil)
	if ref.Len != inst.Len() {
		stats.Mismatches++
		l.logger.Warn("Instruction length mismatch",
			log.Hex("address", inst.Address()),
			log.Int("length", inst.Len()),
			log.Int("x86asm", ref.Len))
		comment += fmt.Sprintf(" (length %d)", ref.Len)
	}
	return comment
}

func (l *Lister) writeSemantics(w io.Writer, inst *ia32.Instruction) error {
	var err error
	b := l.arch.Effect(inst, nil)
	b.Each(func(loc, val expr.Expr) {
		if err == nil {
			_, err = fmt.Fprintf(w, "%30s %s = %s\n", "", loc, expr.Reduce(val))
		}
	})
	return err
}

func (l *Lister) writeTargets(w io.Writer, inst *ia32.Instruction) error {
	targets, ok := l.arch.ControlFlowTargets(inst, l.image)
	if !ok {
		_, err := fmt.Fprintf(w, "%30s -> unknown\n", "")
		return err
	}
	for _, target := range targets {
		if _, err := fmt.Fprintf(w, "%30s -> %s\n", "", formatTarget(target)); err != nil {
			return err
		}
	}
	return nil
}

func formatTarget(e expr.Expr) string {
	if v, ok := expr.ConstValue(e); ok {
		return fmt.Sprintf("0x%08x", uint64(v))
	}
	return expr.Reduce(e).String()
}

func hexBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
