// Package wire defines the plain-text line format exchanged between heartbeat
// clients and the log server: "[YYYY-MM-DD HH:MM:SS] text\n".
package wire

import (
	"strings"
	"time"
)

// TimeLayout is the timestamp layout inside the leading brackets.
const TimeLayout = "2006-01-02 15:04:05"

// Stamp formats t as a bracketed timestamp.
func Stamp(t time.Time) string {
	return "[" + t.Format(TimeLayout) + "]"
}

// Line formats one newline-terminated message stamped with t.
func Line(t time.Time, text string) string {
	return Stamp(t) + " " + strings.TrimRight(text, "\r\n") + "\n"
}

// EnsureNewline returns s terminated by exactly the newline it carried, or
// with one appended if it had none. Empty input stays empty.
func EnsureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// ParseStamp extracts the timestamp and text from a line produced by Line.
func ParseStamp(line string, loc *time.Location) (time.Time, string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "[") {
		return time.Time{}, "", false
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return time.Time{}, "", false
	}
	if loc == nil {
		loc = time.Local
	}
	at, err := time.ParseInLocation(TimeLayout, line[1:end], loc)
	if err != nil {
		return time.Time{}, "", false
	}
	return at, strings.TrimPrefix(line[end+1:], " "), true
}
