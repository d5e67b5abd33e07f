package config

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from either a Go duration string
// ("10m", "1h30m") or a number of seconds (600), and encodes as a string.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case int:
		return d.setSeconds(float64(x))
	case float64:
		return d.setSeconds(x)
	default:
		return fmt.Errorf("duration must be a string or a number of seconds, got %T", v)
	}
	return nil
}

func (d *Duration) setSeconds(sec float64) error {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || math.Abs(sec) > math.MaxInt64/float64(time.Second) {
		return fmt.Errorf("duration %v seconds out of range", sec)
	}
	*d = Duration(time.Duration(sec * float64(time.Second)))
	return nil
}
