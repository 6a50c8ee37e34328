package quote

import (
	"fmt"
	"os"
	"strings"
)

// LoadLines reads path and returns its lines with line terminators
// removed. Empty lines at the end of the file are dropped; interior
// empty lines are kept. A file with no lines returns ErrNoQuotes.
func LoadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied quotes path
	if err != nil {
		return nil, fmt.Errorf("failed to read quotes file %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	if end == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoQuotes)
	}

	return lines[:end:end], nil
}
