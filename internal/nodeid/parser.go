package nodeid

import (
	"fmt"
	"strings"

	"github.com/vk/burstci/internal/model"
)

// Parse creates an Address from its canonical string representation.
func Parse(rawID string) (*Address, error) {
	if rawID == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}

	job, rest, hasAxes := strings.Cut(rawID, "[")
	if job == "" {
		return nil, fmt.Errorf("identifier %q has no job name", rawID)
	}
	if strings.ContainsAny(job, "]=,") {
		return nil, fmt.Errorf("invalid job name %q", job)
	}
	addr := &Address{Job: job}
	if !hasAxes {
		return addr, nil
	}

	body, ok := strings.CutSuffix(rest, "]")
	if !ok {
		return nil, fmt.Errorf("identifier %q is missing the closing bracket", rawID)
	}
	if body == "" {
		return nil, fmt.Errorf("identifier %q has an empty axis list", rawID)
	}

	seen := make(map[string]bool)
	for _, pair := range strings.Split(body, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid axis assignment %q in %q", pair, rawID)
		}
		if seen[name] {
			return nil, fmt.Errorf("axis %q appears twice in %q", name, rawID)
		}
		seen[name] = true
		addr.Axes = append(addr.Axes, model.AxisValue{Name: name, Value: value})
	}
	return addr, nil
}
