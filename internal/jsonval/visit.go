package jsonval

import "strconv"

// MapStrings rebuilds v with every string leaf replaced by fn(leaf).
// Object keys are left untouched.
func MapStrings(v Value, fn func(string) string) Value {
	switch t := v.(type) {
	case String:
		return String(fn(string(t)))
	case Array:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = MapStrings(item, fn)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, item := range t {
			out[k] = MapStrings(item, fn)
		}
		return out
	case nil:
		return Null{}
	default:
		return t
	}
}

// MapLeaves rebuilds v with every scalar (string, number, bool or null)
// replaced by fn(leaf). Object keys are left untouched.
func MapLeaves(v Value, fn func(Value) Value) Value {
	switch t := v.(type) {
	case Array:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = MapLeaves(item, fn)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, item := range t {
			out[k] = MapLeaves(item, fn)
		}
		return out
	case nil:
		return fn(Null{})
	default:
		return fn(t)
	}
}

// MapNumbers rebuilds v with every numeric leaf replaced by fn(leaf).
func MapNumbers(v Value, fn func(float64) float64) Value {
	switch t := v.(type) {
	case Number:
		return number(fn(float64(t)))
	case Array:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = MapNumbers(item, fn)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, item := range t {
			out[k] = MapNumbers(item, fn)
		}
		return out
	case nil:
		return Null{}
	default:
		return t
	}
}

// DropKeys rebuilds v without any object member for which drop returns true,
// at every depth, including objects nested in arrays.
func DropKeys(v Value, drop func(key string) bool) Value {
	switch t := v.(type) {
	case Array:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = DropKeys(item, drop)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, item := range t {
			if drop(k) {
				continue
			}
			out[k] = DropKeys(item, drop)
		}
		return out
	case nil:
		return Null{}
	default:
		return t
	}
}

// Walk visits v and every nested value in pre-order. Object members are
// visited in sorted key order so paths are reported deterministically.
// Returning false from fn skips the children of the current value.
func Walk(v Value, fn func(path string, v Value) bool) {
	walk("", v, fn)
}

func walk(path string, v Value, fn func(string, Value) bool) {
	if v == nil {
		v = Null{}
	}
	if !fn(path, v) {
		return
	}
	switch t := v.(type) {
	case Array:
		for i, item := range t {
			walk(path+"["+strconv.Itoa(i)+"]", item, fn)
		}
	case Object:
		for _, k := range t.Keys() {
			child := k
			if path != "" {
				child = path + "." + k
			}
			walk(child, t[k], fn)
		}
	}
}

// Strings returns every string leaf and every object key in v.
func Strings(v Value) []string {
	var out []string
	Walk(v, func(_ string, v Value) bool {
		switch t := v.(type) {
		case String:
			out = append(out, string(t))
		case Object:
			out = append(out, t.Keys()...)
		}
		return true
	})
	return out
}

// MapKeys rebuilds v with every object key replaced by fn(key), at every
// depth. Keys are processed in sorted order; when a new key is already taken
// it gets the first free "_2", "_3", ... suffix, so no member is lost.
func MapKeys(v Value, fn func(string) string) Value {
	switch t := v.(type) {
	case Array:
		out := make(Array, len(t))
		for i, item := range t {
			out[i] = MapKeys(item, fn)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for _, k := range t.Keys() {
			base := fn(k)
			nk := base
			for n := 2; out.has(nk); n++ {
				nk = base + "_" + strconv.Itoa(n)
			}
			out[nk] = MapKeys(t[k], fn)
		}
		return out
	case nil:
		return Null{}
	default:
		return t
	}
}

func (o Object) has(key string) bool {
	_, ok := o[key]
	return ok
}
