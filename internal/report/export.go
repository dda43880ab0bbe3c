package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Encode serializes run in the given format: "json", "yaml" or "cbor".
func Encode(run *Run, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(run)
	case "cbor":
		return cbor.Marshal(run)
	default:
		return nil, fmt.Errorf("unsupported report format %q: must be 'json', 'yaml' or 'cbor'", format)
	}
}

// Export writes run to filename, choosing the format from its extension.
func Export(run *Run, filename string) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	data, err := Encode(run, format)
	if err != nil {
		return fmt.Errorf("exporting report: %w", err)
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("exporting report: %w", err)
		}
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("exporting report: %w", err)
	}
	return nil
}
