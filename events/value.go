package events

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindNull valueKind = iota
	kindNumeric
	kindOpaque
)

// Value carried by an MQTT payload
//
// A payload is either a decimal number or an opaque string. The zero Value is
// null and marshals as JSON `null`.
type Value struct {
	kind valueKind
	num  float64
	str  string
}

// Numeric value
func Numeric(v float64) Value {
	return Value{kind: kindNumeric, num: v}
}

// Opaque (non-numeric) value
func Opaque(s string) Value {
	return Value{kind: kindOpaque, str: s}
}

// ParsePayload decodes an UTF-8 payload as a finite float if possible,
// otherwise keeps it as a raw string. NaN and infinities stay opaque since
// they have no JSON number form.
func ParsePayload(payload []byte) Value {
	raw := string(payload)
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Opaque(raw)
	}
	return Numeric(f)
}

func (v Value) IsNull() bool    { return v.kind == kindNull }
func (v Value) IsNumeric() bool { return v.kind == kindNumeric }
func (v Value) IsOpaque() bool  { return v.kind == kindOpaque }

// Float returns the numeric value and whether the value is numeric.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == kindNumeric
}

// Empty reports values that carry no data: null or a blank opaque string.
func (v Value) Empty() bool {
	switch v.kind {
	case kindNull:
		return true
	case kindOpaque:
		return strings.TrimSpace(v.str) == ""
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case kindNumeric:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindOpaque:
		return v.str
	}
	return "null"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumeric:
		return json.Marshal(v.num)
	case kindOpaque:
		return json.Marshal(v.str)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Numeric(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Opaque(s)
	return nil
}
