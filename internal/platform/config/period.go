package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParsePeriodSeconds parses a positive whole number of seconds.
func ParsePeriodSeconds(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("period is required")
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: want whole seconds", raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("invalid period %d: must be greater than zero", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}
