//go:build !linux

package input

import "os"

// Stdin returns a key source for the process's standard input. Outside Linux
// the terminal stays in line mode, so the quit key needs Enter.
func Stdin() (KeySource, error) {
	return NewReaderSource(os.Stdin), nil
}
