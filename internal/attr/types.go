package attr

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Built-in type tags.
const (
	TagString  = "string"
	TagInteger = "integer"
	TagNumber  = "number"
	TagBoolean = "boolean"
	TagDate    = "date"
	TagArray   = "array"
	TagObject  = "object"
)

// dateLayouts are tried in order when a date attribute receives a string.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func builtinFactories() []Factory {
	return []Factory{
		func() Type { return anyType{} },
		func() Type { return stringType{} },
		func() Type { return integerType{} },
		func() Type { return numberType{} },
		func() Type { return booleanType{} },
		func() Type { return dateType{} },
		func() Type { return arrayType{} },
		func() Type { return objectType{} },
	}
}

// Base provides passthrough implementations of the optional Type stages.
// Custom types embed it and override what they need.
type Base struct{}

func (Base) Zero(*Descriptor) any                        { return nil }
func (Base) BeforeSet(_ *Descriptor, _ Owner, v any) (any, error) { return v, nil }
func (Base) AfterSet(*Descriptor, Owner, any, any) error { return nil }
func (Base) Equal(a, b any) bool                         { return DeepEqual(a, b) }
func (Base) Raw(v any) any                               { return v }

// DeepEqual is the default value equality: comparable scalars compare with
// ==, everything else with reflect.DeepEqual.
func DeepEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() && ta.Kind() != reflect.Interface && ta.Kind() != reflect.Pointer {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

type anyType struct{ Base }

func (anyType) Tag() string { return TagAny }

type stringType struct{ Base }

func (stringType) Tag() string { return TagString }

func (stringType) Zero(d *Descriptor) any {
	if d.useNull {
		return nil
	}
	return ""
}

func (t stringType) BeforeSet(d *Descriptor, _ Owner, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return t.Zero(d), nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	default:
		return fmt.Sprint(val), nil
	}
}

type integerType struct{ Base }

func (integerType) Tag() string { return TagInteger }

func (integerType) Zero(d *Descriptor) any {
	if d.useNull {
		return nil
	}
	return int64(0)
}

func (t integerType) BeforeSet(d *Descriptor, _ Owner, v any) (any, error) {
	if n, ok := toInt64(v); ok {
		return n, nil
	}
	return t.Zero(d), nil
}

type numberType struct{ Base }

func (numberType) Tag() string { return TagNumber }

func (numberType) Zero(d *Descriptor) any {
	if d.useNull {
		return nil
	}
	return float64(0)
}

func (t numberType) BeforeSet(d *Descriptor, _ Owner, v any) (any, error) {
	if f, ok := toFloat64(v); ok {
		return f, nil
	}
	return t.Zero(d), nil
}

type booleanType struct{ Base }

func (booleanType) Tag() string { return TagBoolean }

func (booleanType) Zero(d *Descriptor) any {
	if d.useNull {
		return nil
	}
	return false
}

func (t booleanType) BeforeSet(d *Descriptor, _ Owner, v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return t.Zero(d), nil
		}
		return b, nil
	}
	if f, ok := toFloat64(v); ok {
		return f != 0, nil
	}
	return t.Zero(d), nil
}

type dateType struct{ Base }

func (dateType) Tag() string { return TagDate }

func (dateType) BeforeSet(_ *Descriptor, _ Owner, v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return nil, nil
	}
	if ms, ok := toInt64(v); ok {
		return time.UnixMilli(ms).UTC(), nil
	}
	return nil, nil
}

func (dateType) Equal(a, b any) bool {
	ta, okA := a.(time.Time)
	tb, okB := b.(time.Time)
	if okA && okB {
		return ta.Equal(tb)
	}
	return DeepEqual(a, b)
}

// Raw encodes dates as RFC 3339 strings in UTC.
func (dateType) Raw(v any) any {
	if ts, ok := v.(time.Time); ok {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	return v
}

type arrayType struct{ Base }

func (arrayType) Tag() string { return TagArray }

func (arrayType) Zero(d *Descriptor) any {
	if d.useNull {
		return nil
	}
	return []any{}
}

func (arrayType) BeforeSet(_ *Descriptor, _ Owner, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return val, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

type objectType struct{ Base }

func (objectType) Tag() string { return TagObject }

func (objectType) Zero(d *Descriptor) any {
	if d.useNull {
		return nil
	}
	return map[string]any{}
}

func (objectType) BeforeSet(_ *Descriptor, _ Owner, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return val, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, nil
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}

// toInt64 converts numeric-looking input to int64. Floats are truncated.
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return floatToInt(float64(val))
	case float64:
		return floatToInt(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		if f, err := val.Float64(); err == nil {
			return floatToInt(f)
		}
		return 0, false
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
		return 0, false
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// toFloat64 converts numeric-looking input to a finite float64.
func toFloat64(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		n, ok := toInt64(v)
		if !ok {
			return 0, false
		}
		f = float64(n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
