package jsonval

// Lookup follows keys through nested objects and reports whether the final
// member exists.
func Lookup(v Value, keys ...string) (Value, bool) {
	cur := v
	for _, k := range keys {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj.Get(k)
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// StringAt returns the string stored under keys, or "" when absent or not a string.
func StringAt(v Value, keys ...string) string {
	found, ok := Lookup(v, keys...)
	if !ok {
		return ""
	}
	s, _ := found.(String)
	return string(s)
}

// NumberAt returns the number stored under keys.
func NumberAt(v Value, keys ...string) (float64, bool) {
	found, ok := Lookup(v, keys...)
	if !ok {
		return 0, false
	}
	n, ok := found.(Number)
	return float64(n), ok
}

// ArrayAt returns the array stored under keys, or nil.
func ArrayAt(v Value, keys ...string) Array {
	found, ok := Lookup(v, keys...)
	if !ok {
		return nil
	}
	a, _ := found.(Array)
	return a
}

// ObjectAt returns the object stored under keys, or nil.
func ObjectAt(v Value, keys ...string) Object {
	found, ok := Lookup(v, keys...)
	if !ok {
		return nil
	}
	o, _ := found.(Object)
	return o
}
