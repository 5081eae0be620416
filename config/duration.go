package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from YAML as "10s" or as plain seconds (10, 0.5).
type Duration struct {
	time.Duration
}

func DurationFrom(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalYAML writes the Go duration string, which UnmarshalYAML reads back.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}

	value := strings.TrimSpace(node.Value)
	switch node.ShortTag() {
	case "!!null":
		d.Duration = 0
		return nil
	case "!!int", "!!float":
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, value, err)
		}
		d.Duration = time.Duration(seconds * float64(time.Second))
		return nil
	}

	if value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, value, err)
	}
	d.Duration = parsed
	return nil
}
