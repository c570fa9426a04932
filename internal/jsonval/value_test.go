package jsonval

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndMarshalRoundTrip(t *testing.T) {
	v, err := Parse([]byte(`{"b":[1,"x",null,true],"a":{"c":2.5}}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, obj.Keys())

	out, err := Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"c":2.5},"b":[1,"x",null,true]}`, string(out))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"nil", nil, KindNull},
		{"bool", true, KindBool},
		{"int", 3, KindNumber},
		{"float", 1.5, KindNumber},
		{"nan", math.NaN(), KindNull},
		{"inf", math.Inf(1), KindNull},
		{"string", "s", KindString},
		{"slice", []any{1, 2}, KindArray},
		{"map", map[string]any{"a": 1}, KindObject},
		{"struct", struct {
			A int `json:"a"`
		}{A: 1}, KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromAny(tt.in).Kind())
		})
	}
}

func TestObjectWithAndWithoutDoNotMutate(t *testing.T) {
	orig := Object{"a": Number(1), "b": Number(2)}

	added := orig.With("c", Number(3))
	removed := orig.Without("a")

	assert.Len(t, orig, 2)
	assert.Len(t, added, 3)
	assert.Len(t, removed, 1)
	_, ok := removed.Get("a")
	assert.False(t, ok)
}

func TestMapStrings(t *testing.T) {
	in := Object{"name": String("abc"), "list": Array{String("x"), Number(1)}}

	out := MapStrings(in, strings.ToUpper)

	assert.Equal(t, String("ABC"), out.(Object)["name"])
	assert.Equal(t, String("X"), out.(Object)["list"].(Array)[0])
	assert.Equal(t, String("abc"), in["name"], "input must not change")
}

func TestMapNumbers(t *testing.T) {
	in := Array{Number(1), Object{"n": Number(2)}}

	out := MapNumbers(in, func(f float64) float64 { return f * 10 })

	assert.Equal(t, Number(10), out.(Array)[0])
	assert.Equal(t, Number(20), out.(Array)[1].(Object)["n"])
	assert.Equal(t, Number(1), in[0])
}

func TestDropKeys(t *testing.T) {
	in := Object{
		"keep":  Number(1),
		"drop":  Number(2),
		"items": Array{Object{"drop": String("x"), "keep": String("y")}},
	}

	out := DropKeys(in, func(k string) bool { return k == "drop" }).(Object)

	assert.NotContains(t, out, "drop")
	assert.NotContains(t, out["items"].(Array)[0].(Object), "drop")
	assert.Contains(t, in, "drop")
}

func TestWalkPaths(t *testing.T) {
	in := Object{"a": Array{Object{"b": Number(1)}}}

	var paths []string
	Walk(in, func(path string, _ Value) bool {
		paths = append(paths, path)
		return true
	})

	assert.Equal(t, []string{"", "a", "a[0]", "a[0].b"}, paths)
}

func TestLookupHelpers(t *testing.T) {
	v := Object{"a": Object{"s": String("x"), "n": Number(4), "arr": Array{Null{}}}}

	assert.Equal(t, "x", StringAt(v, "a", "s"))
	n, ok := NumberAt(v, "a", "n")
	assert.True(t, ok)
	assert.Equal(t, 4.0, n)
	assert.Len(t, ArrayAt(v, "a", "arr"), 1)
	assert.NotNil(t, ObjectAt(v, "a"))
	assert.Equal(t, "", StringAt(v, "missing"))
	_, ok = Lookup(v, "a", "s", "deeper")
	assert.False(t, ok)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(Null{}))
	assert.True(t, IsEmpty(Object{}))
	assert.True(t, IsEmpty(Array{}))
	assert.True(t, IsEmpty(String("")))
	assert.False(t, IsEmpty(Number(0)))
	assert.False(t, IsEmpty(Object{"a": Null{}}))
}

func TestStrings(t *testing.T) {
	v := Object{"k": Array{String("v"), Number(1)}}
	assert.ElementsMatch(t, []string{"k", "v"}, Strings(v))
}

func TestMapKeys(t *testing.T) {
	in := Object{
		"b1":     Number(2),
		"a1":     Number(1),
		"nested": Array{Object{"x": Bool(true)}},
	}

	out := MapKeys(in, func(k string) string {
		if strings.HasSuffix(k, "1") {
			return "one"
		}
		return strings.ToUpper(k)
	}).(Object)

	assert.Equal(t, Number(1), out["one"], "first key in sorted order keeps the name")
	assert.Equal(t, Number(2), out["one_2"], "colliding key is kept under a suffix")
	assert.Contains(t, out["NESTED"].(Array)[0].(Object), "X")
	assert.Contains(t, in, "a1")
}

func TestMapKeys_SuffixSkipsTakenNames(t *testing.T) {
	in := Object{"a": Number(1), "b": Number(2), "x_2": Number(3)}

	out := MapKeys(in, func(k string) string {
		if k == "x_2" {
			return k
		}
		return "x"
	}).(Object)

	assert.Len(t, out, 3)
	assert.Equal(t, Number(1), out["x"])
	assert.Equal(t, Number(2), out["x_2"])
	assert.Equal(t, Number(3), out["x_2_2"])
}

func TestMapLeaves(t *testing.T) {
	in := Object{"a": Array{Number(1), String("s"), Bool(true), Null{}}}

	out := MapLeaves(in, func(v Value) Value {
		if n, ok := v.(Number); ok {
			return String(strconv.Itoa(int(n)))
		}
		return v
	}).(Object)

	assert.Equal(t, Array{String("1"), String("s"), Bool(true), Null{}}, out["a"])
	assert.Equal(t, Number(1), in["a"].(Array)[0], "input is not mutated")
}
