package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/downfa11-org/xstream/util"
	"gopkg.in/yaml.v3"
)

// Duration reads "2s"-style strings or integer milliseconds from config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected a scalar at line %d", value.Line)
	}
	return d.parse(value.Value)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	switch x := v.(type) {
	case float64:
		d.Duration = time.Duration(x) * time.Millisecond
		return nil
	case string:
		return d.parse(x)
	}
	return fmt.Errorf("duration: unsupported value %s", data)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) parse(s string) error {
	const unset = time.Duration(-1)
	v := util.ParseDuration(s, unset)
	if v == unset {
		return fmt.Errorf("duration: invalid value %q", s)
	}
	d.Duration = v
	return nil
}
