package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/louisbranch/heartlog/internal/platform/errors"
)

// DefaultPath is the log destination relative to the working directory.
const DefaultPath = "log.txt"

// OpenFile opens path for appending, creating it and its directory if needed.
func OpenFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeLogOpen, fmt.Sprintf("create log dir %s", dir), err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLogOpen, fmt.Sprintf("open log file %s", path), err)
	}
	return file, nil
}
