package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToBool normalizes the loose boolean forms controllers send ("true", "1",
// 1, true) into a strict bool. "0", "false" and the empty string are false.
func ToBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "0", "false":
			return false
		}
		return true
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case json.Number:
		f, err := b.Float64()
		return err != nil || f != 0
	case []string:
		return len(b) > 0 && ToBool(b[0])
	default:
		return true
	}
}

// Bool is a bool field that accepts the same loose forms as ToBool when
// decoded from JSON.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = Bool(ToBool(v))
	return nil
}

// OptionalBool is a loose bool that also records whether the key was sent.
// An explicit null counts as sent and false.
type OptionalBool struct {
	Set   bool
	Value bool
}

func (b *OptionalBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	b.Set = true
	b.Value = ToBool(v)
	return nil
}

// ToInt reads a whole number from a number, numeric string or bool.
// Fractions are truncated; anything else is 0.
func ToInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case bool:
		if n {
			return 1
		}
		return 0
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return int64(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}

// Int is an integer field decoded with ToInt, so a malformed value never
// fails the enclosing document.
type Int int64

func (i *Int) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*i = Int(ToInt(v))
	return nil
}
