package config

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPort is the largest valid TCP port number.
const MaxPort = 65535

// ParsePort parses a positional TCP port argument in the range 1-65535.
func ParsePort(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("port is required")
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid port number %q", raw)
	}
	if port <= 0 || port > MaxPort {
		return 0, fmt.Errorf("invalid port number %d: must be between 1 and %d", port, MaxPort)
	}
	return port, nil
}

// ParseOptionalPort parses a port that may be zero, meaning "not set".
func ParseOptionalPort(raw string) (int, error) {
	if strings.TrimSpace(raw) == "0" {
		return 0, nil
	}
	return ParsePort(raw)
}
