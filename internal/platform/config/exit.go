package config

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// ExitUsage reports err followed by the command usage line on stderr and
// exits with code 1.
func ExitUsage(program, usage string, err error) {
	writeUsage(os.Stderr, program, usage, err)
	os.Exit(1)
}

func writeUsage(w io.Writer, program, usage string, err error) {
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", program, err)
	}
	fmt.Fprintf(w, "Usage: %s %s\n", program, usage)
}

// PrintUsage writes the command synopsis and flag defaults to the flag
// set's output.
func PrintUsage(fs *flag.FlagSet, program, usage string) {
	fmt.Fprintf(fs.Output(), "Usage: %s %s\n\nFlags:\n", program, usage)
	fs.PrintDefaults()
}
