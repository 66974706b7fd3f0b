package cmd

import (
	"flag"
	"fmt"
	"strings"
)

// Positional returns the parsed flag set's positional arguments after
// checking there are exactly len(names) of them.
func Positional(fs *flag.FlagSet, names ...string) ([]string, error) {
	if fs == nil {
		return nil, fmt.Errorf("flag parser is required")
	}
	args := fs.Args()
	if len(args) != len(names) {
		return nil, fmt.Errorf("expected %d argument(s) %s, got %d", len(names), argList(names), len(args))
	}
	return args, nil
}

// Groups splits the positional arguments after the first skip of them into
// consecutive groups of size n.
func Groups(fs *flag.FlagSet, skip, n int, names ...string) ([][]string, error) {
	if fs == nil {
		return nil, fmt.Errorf("flag parser is required")
	}
	if n <= 0 {
		return nil, fmt.Errorf("group size must be greater than zero")
	}
	args := fs.Args()
	if len(args) < skip {
		return nil, fmt.Errorf("expected at least %d argument(s), got %d", skip, len(args))
	}
	rest := args[skip:]
	if len(rest)%n != 0 {
		return nil, fmt.Errorf("arguments after the first %d must come in groups of %d %s", skip, n, argList(names))
	}
	groups := make([][]string, 0, len(rest)/n)
	for i := 0; i < len(rest); i += n {
		groups = append(groups, rest[i:i+n])
	}
	return groups, nil
}

func argList(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return "<" + strings.Join(names, "> <") + ">"
}
