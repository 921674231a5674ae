// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/retroenv/x86sem/internal/options"
)

// ParseFlags parses command line flags and returns program options
func ParseFlags() (options.Program, error) {
	return parseArgs(os.Args[0], os.Args[1:])
}

func parseArgs(name string, arguments []string) (options.Program, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(arguments)
	args := flags.Args()
	if err != nil || len(args) == 0 {
		return opts, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, err
	}
	if err := validateOptions(opts); err != nil {
		return opts, err
	}

	opts.Input = args[0]
	return opts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	if e.msg == "" {
		return "invalid usage"
	}
	return e.msg
}

// ShowUsage prints the usage message and the flag defaults.
func (e *UsageError) ShowUsage() {
	if e.msg != "" {
		fmt.Printf("%s\n\n", e.msg)
	}
	fmt.Printf("usage: x86sem [options] <file to decode>\n\n")
	if e.flags != nil {
		e.flags.PrintDefaults()
	}
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg != "" && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after file to decode, please pass the file to decode as last argument", arg),
			}
		}
	}
	return nil
}

// validateOptions checks the option values for consistency
func validateOptions(opts options.Program) error {
	if opts.Offset < 0 {
		return fmt.Errorf("invalid start offset %d", opts.Offset)
	}
	if opts.Count < 0 {
		return fmt.Errorf("invalid instruction count %d", opts.Count)
	}
	if opts.Debug && opts.Quiet {
		return fmt.Errorf("debug and quiet mode can not be combined")
	}
	return nil
}

// DecoderOptions returns the decoder options for the program options.
func DecoderOptions(opts options.Program) options.Decoder {
	decoderOptions := options.NewDecoder()
	if opts.Mode16 {
		decoderOptions.AddressSize = 16
		decoderOptions.OperandSize = 16
	}
	decoderOptions.WarnUnhandled = opts.Semantics && opts.Debug
	return decoderOptions
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Output, "o", "", "name of the output listing file, printed on console if no name given")
	flags.Func("base", "virtual address of the first byte of the file, hex with optional 0x prefix", func(s string) error {
		base, err := parseAddress(s)
		if err != nil {
			return err
		}
		opts.Base = base
		return nil
	})
	flags.IntVar(&opts.Offset, "offset", 0, "file offset to start decoding at")
	flags.IntVar(&opts.Count, "n", 0, "maximum number of instructions to decode, 0 for all")
	flags.BoolVar(&opts.Mode16, "16", false, "decode with 16 bit default operand and address size")
	flags.BoolVar(&opts.Semantics, "sem", false, "print the semantic binding of every instruction")
	flags.BoolVar(&opts.Xrefs, "xrefs", false, "print the control flow targets of branches")
	flags.BoolVar(&opts.Compare, "compare", false, "compare every instruction with the x86asm decoder")
	flags.BoolVar(&opts.Dump, "dump", false, "dump the decoded instruction structures")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}

// parseAddress parses a hex address like 0x401000 or 401000.
func parseAddress(s string) (uint64, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing address '%s': %w", s, err)
	}
	return v, nil
}
