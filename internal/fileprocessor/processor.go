// Package fileprocessor handles file loading and processing operations
package fileprocessor

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/listing"
	"github.com/retroenv/x86sem/internal/options"
)

// ProcessFile handles the complete file processing workflow
func ProcessFile(ctx context.Context, logger *log.Logger, opts options.Program) error {
	data, err := os.ReadFile(opts.Input)
	if err != nil {
		return fmt.Errorf("reading file %s: %w", opts.Input, err)
	}

	writer, err := createWriter(opts)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	stats, err := listing.New(logger, opts, data).Write(ctx, writer)
	if closer, ok := writer.(io.Closer); ok && writer != os.Stdout {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output file %s: %w", opts.Output, cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("listing: %w", err)
	}

	logger.Info("Listing finished",
		log.String("file", opts.Input),
		log.Int("instructions", stats.Instructions),
		log.Int("data bytes", stats.Undecoded))
	if stats.Mismatches > 0 {
		logger.Warn("Decoded lengths differ from x86asm", log.Int("instructions", stats.Mismatches))
	}
	return nil
}

func createWriter(opts options.Program) (io.Writer, error) {
	if opts.Output == "" {
		return os.Stdout, nil
	}

	file, err := os.Create(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("creating output file %s: %w", opts.Output, err)
	}
	return file, nil
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}
	logger.Info("x86sem", log.String("version", buildinfo.Version(version, commit, date)))
}
