package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// CanonicalValue renders a field value into the text form used for equality.
// Empty values (nil, "", empty lists, zero times) report ok=false so they
// compare equal to an absent field. Times are compared at second resolution.
func CanonicalValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case []byte:
		return string(x), len(x) > 0
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.UTC().Truncate(time.Second).Format(time.RFC3339), true
	case *time.Time:
		if x == nil {
			return "", false
		}
		return CanonicalValue(*x)
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case []string, []any:
		list := toStrings(x)
		if len(list) == 0 {
			return "", false
		}
		raw, _ := json.Marshal(list)
		return string(raw), true
	default:
		return fmt.Sprint(x), true
	}
}

// ValuesEqual compares two field values by their canonical form.
func ValuesEqual(a, b any) bool {
	ca, okA := CanonicalValue(a)
	cb, okB := CanonicalValue(b)
	if !okA || !okB {
		return okA == okB
	}
	return ca == cb
}

// Stored value kinds.
const (
	KindString = "string"
	KindDate   = "date"
	KindNumber = "number"
	KindBool   = "bool"
	KindList   = "list"
)

// StoredValue is the typed envelope used by persistent task stores.
type StoredValue struct {
	Kind  string   `json:"kind" yaml:"kind"`
	Value string   `json:"value,omitempty" yaml:"value,omitempty"`
	List  []string `json:"list,omitempty" yaml:"list,omitempty"`
}

// EncodeValue wraps a field value for persistence; empty values are skipped.
func EncodeValue(v any) (StoredValue, bool) {
	text, ok := CanonicalValue(v)
	if !ok {
		return StoredValue{}, false
	}
	switch x := v.(type) {
	case time.Time, *time.Time:
		return StoredValue{Kind: KindDate, Value: text}, true
	case int, int32, int64, float32, float64:
		return StoredValue{Kind: KindNumber, Value: text}, true
	case bool:
		return StoredValue{Kind: KindBool, Value: text}, true
	case []string, []any:
		return StoredValue{Kind: KindList, List: toStrings(x)}, true
	default:
		return StoredValue{Kind: KindString, Value: text}, true
	}
}

// Decode restores the Go value of a stored envelope.
func (s StoredValue) Decode() any {
	switch s.Kind {
	case KindDate:
		if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
			return t
		}
		return s.Value
	case KindNumber:
		if n, err := strconv.ParseInt(s.Value, 10, 64); err == nil {
			return int(n)
		}
		if f, err := strconv.ParseFloat(s.Value, 64); err == nil {
			return f
		}
		return s.Value
	case KindBool:
		return s.Value == "true"
	case KindList:
		return append([]string(nil), s.List...)
	default:
		return s.Value
	}
}

// EncodeFields converts a field map into stored envelopes.
func EncodeFields(fields map[string]any) map[string]StoredValue {
	out := make(map[string]StoredValue, len(fields))
	for k, v := range fields {
		if sv, ok := EncodeValue(v); ok {
			out[k] = sv
		}
	}
	return out
}

// DecodeFields is the inverse of EncodeFields.
func DecodeFields(stored map[string]StoredValue) map[string]any {
	out := make(map[string]any, len(stored))
	for k, sv := range stored {
		out[k] = sv.Decode()
	}
	return out
}
