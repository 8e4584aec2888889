package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// ErrCycle is returned when a container (directly or indirectly) contains itself.
var ErrCycle = errors.New("canon: cyclic container")

// Marshal produces canonical JSON for a native projection.
//
// Supported values: nil, bool, string, all integer kinds, finite floats,
// json.Number, time.Time, map[string]any, map[string]string, []any,
// []string, []map[string]any.
func Marshal(v any) ([]byte, error) {
	e := &encoder{open: make(map[uintptr]bool)}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf  bytes.Buffer
	open map[uintptr]bool // containers currently being encoded
}

func (e *encoder) encode(v any) error {
	switch val := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		if val {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case string:
		return e.encodeString(val)
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		e.buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		e.buf.WriteString(strconv.FormatUint(val, 10))
	case float32:
		return e.encodeFloat(float64(val))
	case float64:
		return e.encodeFloat(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			e.buf.WriteString(strconv.FormatInt(n, 10))
			return nil
		}
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", val, err)
		}
		return e.encodeFloat(f)
	case time.Time:
		return e.encodeString(val.UTC().Format(time.RFC3339Nano))
	case map[string]any:
		return e.encodeObject(val)
	case map[string]string:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return e.encodeObject(obj)
	case []any:
		return e.encodeArray(val)
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return e.encodeArray(arr)
	case []map[string]any:
		arr := make([]any, len(val))
		for i, m := range val {
			arr[i] = m
		}
		return e.encodeArray(arr)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// encodeFloat follows the ECMAScript number-to-string rules that RFC 8785
// mandates: plain decimal within [1e-6, 1e21), exponent form outside.
func (e *encoder) encodeFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number: %v", f)
	}
	if f == 0 {
		e.buf.WriteByte('0')
		return nil
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		e.buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	digits := strings.TrimLeft(exp[1:], "0")
	e.buf.WriteString(mantissa)
	e.buf.WriteByte('e')
	e.buf.WriteByte(sign)
	e.buf.WriteString(digits)
	return nil
}

// encodeString writes an NFC-normalized JSON string without HTML escaping.
func (e *encoder) encodeString(s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	e.buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes that
// encoding/json emits back into literal characters. Escaped backslashes
// (\\u2028 in the output) are copied through untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+6 <= len(data) && string(data[i+2:i+5]) == "202" {
			switch data[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		// Any other escape: copy the backslash and the escaped byte together.
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

func (e *encoder) encodeArray(arr []any) error {
	if len(arr) > 0 {
		ptr := reflect.ValueOf(arr).Pointer()
		if e.open[ptr] {
			return ErrCycle
		}
		e.open[ptr] = true
		defer delete(e.open, ptr)
	}

	e.buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeObject(obj map[string]any) error {
	ptr := reflect.ValueOf(obj).Pointer()
	if e.open[ptr] {
		return ErrCycle
	}
	e.open[ptr] = true
	defer delete(e.open, ptr)

	e.buf.WriteByte('{')
	for i, k := range SortedKeys(obj) {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		e.buf.WriteByte(':')
		if err := e.encode(obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	e.buf.WriteByte('}')
	return nil
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for
// characters outside the Basic Multilingual Plane.
func SortedKeys[V any](obj map[string]V) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
