package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// UnmarshalObject parses a JSON object into a native projection. Numbers
// become int64 when integral and float64 otherwise, so integers above 2^53
// keep their precision. Numbers outside the float64 range stay json.Number.
// A JSON null yields an empty map.
func UnmarshalObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return normalize(obj).(map[string]any), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil && !math.IsInf(f, 0) {
			return f
		}
		return val
	case map[string]any:
		for k, elem := range val {
			val[k] = normalize(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = normalize(elem)
		}
		return val
	default:
		return v
	}
}
