// Package jsonval models untyped JSON as a closed set of value types.
//
// Every JSON document handled by the sanitizer, the schema validator and the
// response guard is converted into a Value first. Transforms in this package
// never mutate their input: containers are rebuilt on the way out, so a value
// handed to one component cannot be changed by another.
package jsonval

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies which of the six JSON value types a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is implemented only by the types in this package.
type Value interface {
	Kind() Kind
	sealed()
}

type (
	Null   struct{}
	Bool   bool
	Number float64
	String string
	Array  []Value
	Object map[string]Value
)

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) sealed()   {}
func (Bool) sealed()   {}
func (Number) sealed() {}
func (String) sealed() {}
func (Array) sealed()  {}
func (Object) sealed() {}

// MarshalJSON encodes Null as the JSON literal null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Get returns the member stored under key. Missing members report false.
func (o Object) Get(key string) (Value, bool) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Keys returns the member names in sorted order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of o with key set to v.
func (o Object) With(key string, v Value) Object {
	out := make(Object, len(o)+1)
	for k, existing := range o {
		out[k] = existing
	}
	out[key] = v
	return out
}

// Without returns a copy of o without the given keys.
func (o Object) Without(keys ...string) Object {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := make(Object, len(o))
	for k, v := range o {
		if _, ok := drop[k]; ok {
			continue
		}
		out[k] = v
	}
	return out
}

// FromAny converts the output of encoding/json (or any structurally similar Go
// value) into a Value. Non-finite floats become Null since JSON cannot carry them.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null{}
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return number(t)
	case float32:
		return number(float64(t))
	case int:
		return Number(t)
	case int32:
		return Number(t)
	case int64:
		return Number(t)
	case uint:
		return Number(t)
	case uint64:
		return Number(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return number(f)
	case []any:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = FromAny(item)
		}
		return out
	case []map[string]any:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = FromAny(item)
		}
		return out
	case []string:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = String(item)
		}
		return out
	case map[string]any:
		out := make(Object, len(t))
		for k, item := range t {
			out[k] = FromAny(item)
		}
		return out
	default:
		// Anything else is round-tripped through encoding/json.
		data, err := json.Marshal(t)
		if err != nil {
			return String(fmt.Sprint(t))
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return String(fmt.Sprint(t))
		}
		return FromAny(generic)
	}
}

func number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null{}
	}
	return Number(f)
}

// ToAny converts v back into the plain Go representation used by encoding/json.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Number:
		return float64(t)
	case String:
		return string(t)
	case Array:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToAny(item)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ToAny(item)
		}
		return out
	}
	return nil
}

// Parse decodes a JSON document.
func Parse(data []byte) (Value, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("jsonval.Parse: %w", err)
	}
	return FromAny(generic), nil
}

// Marshal encodes v as JSON. Object members are emitted in sorted key order.
func Marshal(v Value) ([]byte, error) {
	if v == nil {
		v = Null{}
	}
	return json.Marshal(v)
}

// IsEmpty reports whether v is absent, null, or an empty container or string.
func IsEmpty(v Value) bool {
	switch t := v.(type) {
	case nil, Null:
		return true
	case String:
		return t == ""
	case Array:
		return len(t) == 0
	case Object:
		return len(t) == 0
	}
	return false
}
