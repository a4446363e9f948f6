package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// FieldValue holds a decoded JSON value of a custom profile field.
//
// Equality is deep and structural with exact type matching: an integer never
// equals a float (1 != 1.0), strings compare case-sensitively and lists compare
// element-wise in order. The zero value is JSON null.
type FieldValue struct {
	v interface{}
}

// NewFieldValue converts a Go value into a FieldValue through its JSON form.
func NewFieldValue(v interface{}) (FieldValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return FieldValue{}, fmt.Errorf("encode field value: %w", err)
	}
	var fv FieldValue
	if err := fv.UnmarshalJSON(raw); err != nil {
		return FieldValue{}, err
	}
	return fv, nil
}

// MustFieldValue is NewFieldValue that panics on error. Intended for literals.
func MustFieldValue(v interface{}) FieldValue {
	fv, err := NewFieldValue(v)
	if err != nil {
		panic(err)
	}
	return fv
}

// UnmarshalJSON decodes raw JSON preserving number literals.
func (f *FieldValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}
	f.v = v
	return nil
}

// MarshalJSON encodes the value back to JSON.
func (f FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.v)
}

// IsNull reports whether the value is JSON null.
func (f FieldValue) IsNull() bool { return f.v == nil }

// IsScalar reports whether the value is a string, number or boolean.
func (f FieldValue) IsScalar() bool {
	switch f.v.(type) {
	case string, bool, json.Number:
		return true
	}
	return false
}

// String renders the value as compact JSON.
func (f FieldValue) String() string {
	raw, err := json.Marshal(f.v)
	if err != nil {
		return "<invalid>"
	}
	return string(raw)
}

// Equal reports deep structural equality.
func (f FieldValue) Equal(other FieldValue) bool {
	return jsonEqual(f.v, other.v)
}

func jsonEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && numbersEqual(av, bv)
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		keys := make([]string, 0, len(av))
		for k := range av {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			other, present := bv[k]
			if !present || !jsonEqual(av[k], other) {
				return false
			}
		}
		return true
	}
	return false
}

func isIntegerLiteral(n json.Number) bool {
	return !strings.ContainsAny(string(n), ".eE")
}

func numbersEqual(a, b json.Number) bool {
	aInt, bInt := isIntegerLiteral(a), isIntegerLiteral(b)
	if aInt != bInt {
		return false
	}
	if aInt {
		x, okA := new(big.Int).SetString(string(a), 10)
		y, okB := new(big.Int).SetString(string(b), 10)
		return okA && okB && x.Cmp(y) == 0
	}
	x, okA := new(big.Float).SetString(string(a))
	y, okB := new(big.Float).SetString(string(b))
	return okA && okB && x.Cmp(y) == 0
}
