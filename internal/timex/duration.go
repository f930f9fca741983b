// Package timex provides a JSON-friendly wrapper around time.Duration so
// config files can specify intervals either as strings like "3s" or as
// integer nanoseconds.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration with JSON (un)marshalling support.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
}
