package document

import (
	"bytes"
	"fmt"

	"github.com/vk/burstci/internal/model"
	"gopkg.in/yaml.v3"
)

// File is the root of a YAML or JSONC definition.
type File struct {
	Name   string            `yaml:"name"`
	On     Triggers          `yaml:"on"`
	Env    map[string]string `yaml:"env"`
	Jobs   Jobs              `yaml:"jobs"`
	Deploy *Deploy           `yaml:"deploy"`
}

// Triggers accepts a single event name, a list of event names, or a mapping
// of event name to filter.
type Triggers []model.Trigger

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Triggers) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = Triggers{{Event: value.Value}}
		return nil
	case yaml.SequenceNode:
		var events []string
		if err := value.Decode(&events); err != nil {
			return err
		}
		out := make(Triggers, 0, len(events))
		for _, e := range events {
			out = append(out, model.Trigger{Event: e})
		}
		*t = out
		return nil
	case yaml.MappingNode:
		out := make(Triggers, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			var filter struct {
				Branches []string `yaml:"branches"`
			}
			if err := value.Content[i+1].Decode(&filter); err != nil {
				return err
			}
			out = append(out, model.Trigger{Event: value.Content[i].Value, Branches: filter.Branches})
		}
		*t = out
		return nil
	default:
		return fmt.Errorf("line %d: 'on' must be an event, a list of events or a mapping", value.Line)
	}
}

// Jobs is the ordered jobs mapping.
type Jobs []NamedJob

// NamedJob is one entry of the jobs mapping.
type NamedJob struct {
	Name string
	Job  Job
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (j *Jobs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: 'jobs' must be a mapping", value.Line)
	}
	out := make(Jobs, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var job Job
		if err := decodeStrict(value.Content[i+1], &job); err != nil {
			return fmt.Errorf("job %q: %w", value.Content[i].Value, err)
		}
		out = append(out, NamedJob{Name: value.Content[i].Value, Job: job})
	}
	*j = out
	return nil
}

// decodeStrict decodes value into out, rejecting unknown keys. Node.Decode
// does not carry the parent decoder's KnownFields setting.
func decodeStrict(value *yaml.Node, out any) error {
	raw, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Job is the document shape of a job.
type Job struct {
	Needs            StringList        `yaml:"needs"`
	NeedsPolicy      string            `yaml:"needs-policy"`
	RequireSuccess   bool              `yaml:"require-success"`
	RunsOn           string            `yaml:"runs-on"`
	If               string            `yaml:"if"`
	Env              map[string]string `yaml:"env"`
	WorkingDirectory string            `yaml:"working-directory"`
	Timeout          string            `yaml:"timeout"`
	Matrix           *Matrix           `yaml:"matrix"`
	Cache            *Cache            `yaml:"cache"`
	Steps            []Step            `yaml:"steps"`
}

// StringList accepts a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = StringList{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// Matrix holds axes in declaration order plus the include and exclude lists.
// Every key other than include and exclude names an axis.
type Matrix struct {
	Axes    []model.Axis
	Include []model.Combination
	Exclude []model.Combination
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Matrix) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: 'matrix' must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i].Value, value.Content[i+1]
		switch key {
		case "include", "exclude":
			combos, err := decodeCombinations(val)
			if err != nil {
				return fmt.Errorf("matrix %s: %w", key, err)
			}
			if key == "include" {
				m.Include = combos
			} else {
				m.Exclude = combos
			}
		default:
			values, err := decodeScalars(val)
			if err != nil {
				return fmt.Errorf("matrix axis %q: %w", key, err)
			}
			m.Axes = append(m.Axes, model.Axis{Name: key, Values: values})
		}
	}
	return nil
}

func decodeCombinations(value *yaml.Node) ([]model.Combination, error) {
	if value.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of mappings", value.Line)
	}
	out := make([]model.Combination, 0, len(value.Content))
	for _, item := range value.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: expected a mapping", item.Line)
		}
		c := make(model.Combination, 0, len(item.Content)/2)
		for i := 0; i+1 < len(item.Content); i += 2 {
			v := item.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: value of %q must be a scalar", v.Line, item.Content[i].Value)
			}
			c = append(c, model.AxisValue{Name: item.Content[i].Value, Value: v.Value})
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeScalars(value *yaml.Node) ([]string, error) {
	if value.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of values", value.Line)
	}
	out := make([]string, 0, len(value.Content))
	for _, item := range value.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: axis values must be scalars", item.Line)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

// Cache is the document shape of a cache declaration.
type Cache struct {
	Paths StringList `yaml:"paths"`
	Key   string     `yaml:"key"`
}

// Step is the document shape of a step.
type Step struct {
	Name             string            `yaml:"name"`
	Run              string            `yaml:"run"`
	Shell            string            `yaml:"shell"`
	If               string            `yaml:"if"`
	Env              map[string]string `yaml:"env"`
	OS               StringList        `yaml:"os"`
	Timeout          string            `yaml:"timeout"`
	WorkingDirectory string            `yaml:"working-directory"`
}

// Deploy is the document shape of the deploy step.
type Deploy struct {
	Name    string            `yaml:"name"`
	If      string            `yaml:"if"`
	Run     string            `yaml:"run"`
	Shell   string            `yaml:"shell"`
	Env     map[string]string `yaml:"env"`
	Secrets StringList        `yaml:"secrets"`
}
