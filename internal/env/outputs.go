package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFileVar names the variable that points a step at the file it may
// append KEY=VALUE lines to. Those pairs become visible to later steps of the
// same job only.
const OutputFileVar = "BURSTCI_OUTPUT"

// ParseAssignments reads KEY=VALUE lines. Blank lines and lines starting with
// # are ignored. A line of the form KEY<<DELIM starts a multi-line value that
// ends at a line equal to DELIM. Later assignments to the same key win.
func ParseAssignments(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if key, delim, ok := strings.Cut(text, "<<"); ok && !strings.Contains(key, "=") {
			key = strings.TrimSpace(key)
			delim = strings.TrimSpace(delim)
			if key == "" || delim == "" {
				return nil, fmt.Errorf("line %d: malformed heredoc assignment", line)
			}
			var value []string
			closed := false
			for scanner.Scan() {
				line++
				body := strings.TrimRight(scanner.Text(), "\r")
				if body == delim {
					closed = true
					break
				}
				value = append(value, body)
			}
			if !closed {
				return nil, fmt.Errorf("line %d: heredoc for %q is not terminated by %q", line, key, delim)
			}
			out[key] = strings.Join(value, "\n")
			continue
		}

		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", line)
		}
		out[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading assignments: %w", err)
	}
	return out, nil
}

// ReadOutputFile parses the outputs a step wrote to path. A missing file means
// the step published nothing.
func ReadOutputFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("opening step output file: %w", err)
	}
	defer f.Close()
	return ParseAssignments(f)
}
