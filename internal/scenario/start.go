package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StartSpec is a command's requested start. In YAML it is either the
// scalar "now", {abs: T} for a scenario time, or {rel: D} for D ticks after
// submission.
type StartSpec struct {
	Now bool
	Abs uint32
	Rel uint32
	// IsRel selects Rel over Abs when Now is false.
	IsRel bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StartSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value != "now" {
			return fmt.Errorf("line %d: start must be \"now\", {abs: T} or {rel: D}, got %q", value.Line, value.Value)
		}
		*s = StartSpec{Now: true}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Abs *uint32 `yaml:"abs"`
			Rel *uint32 `yaml:"rel"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		switch {
		case raw.Abs != nil && raw.Rel != nil:
			return fmt.Errorf("line %d: start takes abs or rel, not both", value.Line)
		case raw.Abs != nil:
			*s = StartSpec{Abs: *raw.Abs}
		case raw.Rel != nil:
			*s = StartSpec{Rel: *raw.Rel, IsRel: true}
		default:
			return fmt.Errorf("line %d: start mapping needs abs or rel", value.Line)
		}
		return nil
	}
	return fmt.Errorf("line %d: invalid start", value.Line)
}

// MarshalYAML implements yaml.Marshaler.
func (s StartSpec) MarshalYAML() (any, error) {
	switch {
	case s.Now:
		return "now", nil
	case s.IsRel:
		return map[string]uint32{"rel": s.Rel}, nil
	}
	return map[string]uint32{"abs": s.Abs}, nil
}

// offset returns the scenario time of the start for a command submitted at
// submitAt, and false for a start-now command. A nil StartSpec starts now.
func (s *StartSpec) offset(submitAt uint32) (uint32, bool) {
	switch {
	case s == nil || s.Now:
		return 0, false
	case s.IsRel:
		return submitAt + s.Rel, true
	}
	return s.Abs, true
}
