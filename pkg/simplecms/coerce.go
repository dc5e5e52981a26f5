package simplecms

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// CoerceValue converts a caller-supplied value to the Go value stored for
// field. A nil result stores NULL.
func CoerceValue(field FieldDefinition, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" && !field.Type.IsTextual() {
		return nil, nil
	}

	v, err := coerce(field.Type, raw)
	if err != nil {
		return nil, Validationf("field %s: %v", field.Name, err)
	}
	return v, nil
}

func coerce(t FieldType, raw any) (any, error) {
	switch t {
	case FieldText, FieldTextarea:
		switch v := raw.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		case float64, int, int64, bool:
			return fmt.Sprint(v), nil
		}
		return nil, fmt.Errorf("expected text, got %T", raw)
	case FieldNumber, FieldMedia, FieldForeignKey:
		n, ok := asInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %v", raw)
		}
		return n, nil
	case FieldDecimal:
		f, ok := asFloat64(raw)
		if !ok {
			return nil, fmt.Errorf("expected decimal, got %v", raw)
		}
		return f, nil
	case FieldBoolean:
		b, ok := asBool(raw)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %v", raw)
		}
		return b, nil
	case FieldDate:
		tm, ok := asTime(raw)
		if !ok {
			return nil, fmt.Errorf("expected date (YYYY-MM-DD), got %v", raw)
		}
		return tm.Format(dateLayout), nil
	case FieldDateTime:
		tm, ok := asTime(raw)
		if !ok {
			return nil, fmt.Errorf("expected datetime (RFC 3339), got %v", raw)
		}
		return tm.UTC().Format(time.RFC3339), nil
	case FieldMediaMultiple:
		ids, err := mediaIDsFromInput(raw)
		if err != nil {
			return nil, err
		}
		return SerializeMediaIDs(ids), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidFieldType, t)
}

// NormalizeValue converts a value read from a store back to the shape the
// declared type promises: booleans as bool, dates as strings, integers as
// int64.
func NormalizeValue(field FieldDefinition, raw any) any {
	if raw == nil {
		return nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch field.Type {
	case FieldBoolean:
		if b, ok := asBool(raw); ok {
			return b
		}
	case FieldNumber, FieldMedia, FieldForeignKey:
		if n, ok := asInt64(raw); ok {
			return n
		}
	case FieldDecimal:
		if f, ok := asFloat64(raw); ok {
			return f
		}
	case FieldDate:
		if tm, ok := raw.(time.Time); ok {
			return tm.Format(dateLayout)
		}
	case FieldDateTime:
		if tm, ok := raw.(time.Time); ok {
			return tm.UTC().Format(time.RFC3339)
		}
	}
	return raw
}

// ParseMediaIDs reads the stored representation of a media-multiple field.
// Anything unparseable yields an empty list.
func ParseMediaIDs(stored any) []int64 {
	var s string
	switch v := stored.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return []int64{}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return []int64{}
	}

	var items []any
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return []int64{}
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if id, ok := asInt64(item); ok && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// SerializeMediaIDs renders an id list as stored in media-multiple columns.
func SerializeMediaIDs(ids []int64) string {
	if ids == nil {
		ids = []int64{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func mediaIDsFromInput(raw any) ([]int64, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []int64:
		return v, nil
	case []int:
		ids := make([]int64, len(v))
		for i, n := range v {
			ids[i] = int64(n)
		}
		return ids, nil
	case string:
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "[") {
			if err := json.Unmarshal([]byte(v), &items); err != nil {
				return nil, fmt.Errorf("invalid media id list: %v", err)
			}
		} else {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
		}
	default:
		n, ok := asInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected list of media ids, got %T", raw)
		}
		return []int64{n}, nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, ok := asInt64(item)
		if !ok {
			return nil, fmt.Errorf("invalid media id %v", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "on", "yes", "t":
			return true, true
		case "0", "false", "off", "no", "f":
			return false, true
		}
	}
	return false, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		t = strings.TrimSpace(t)
		if tm, err := time.Parse(dateLayout, t); err == nil {
			return tm, true
		}
		for _, layout := range dateTimeLayouts {
			if tm, err := time.Parse(layout, t); err == nil {
				return tm, true
			}
		}
	}
	return time.Time{}, false
}
