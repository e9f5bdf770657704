package model

import (
	"sort"
	"strconv"
)

// Value is the unrolled, ref-free in-memory form of a Datum: the shape
// put_datum accepts as input, the built-in evaluator operates on, and
// the `unroll`/`get_node_value` operations return (spec.md §4.6, §8 S1).
type Value struct {
	Kind     DatumKind
	Bool     bool
	Int      int64
	Float    float64
	Str      string
	Resource *Resource
	List     []*Value
	Set      []*Value
	Map      map[string]*Value
}

func Null() *Value                { return &Value{Kind: DatumNull} }
func BoolVal(b bool) *Value       { return &Value{Kind: DatumBool, Bool: b} }
func IntVal(i int64) *Value       { return &Value{Kind: DatumInt, Int: i} }
func FloatVal(f float64) *Value   { return &Value{Kind: DatumFloat, Float: f} }
func StrVal(s string) *Value      { return &Value{Kind: DatumString, Str: s} }
func ResourceVal(r Resource) *Value {
	return &Value{Kind: DatumResource, Resource: &r}
}
func ListVal(xs []*Value) *Value {
	if xs == nil {
		xs = []*Value{}
	}
	return &Value{Kind: DatumList, List: xs}
}
func SetVal(xs []*Value) *Value {
	if xs == nil {
		xs = []*Value{}
	}
	return &Value{Kind: DatumSet, Set: dedupeSorted(xs)}
}
func MapVal(m map[string]*Value) *Value {
	if m == nil {
		m = map[string]*Value{}
	}
	return &Value{Kind: DatumMap, Map: m}
}

// Equal reports deep structural equality, used to dedupe set elements and
// by the `contains` built-in.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case DatumNull:
		return true
	case DatumBool:
		return v.Bool == o.Bool
	case DatumInt:
		return v.Int == o.Int
	case DatumFloat:
		return v.Float == o.Float
	case DatumString:
		return v.Str == o.Str
	case DatumResource:
		return v.Resource != nil && o.Resource != nil && v.Resource.Equal(*o.Resource)
	case DatumList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case DatumSet:
		if len(v.Set) != len(o.Set) {
			return false
		}
		for i := range v.Set {
			if !v.Set[i].Equal(o.Set[i]) {
				return false
			}
		}
		return true
	case DatumMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, vv := range v.Map {
			ov, ok := o.Map[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// sortKey produces a deterministic total-order key for an unrolled value,
// used in place of "packed bytes of their elements" (spec.md §4.1). The key
// is textual, so its order differs from packed-bytes order (the int 10 sorts
// before 9).
func sortKey(v *Value) string {
	b, _ := valueSortBytes(v)
	return string(b)
}

func valueSortBytes(v *Value) ([]byte, error) {
	// A compact, deterministic textual encoding; only used for ordering,
	// never persisted.
	switch v.Kind {
	case DatumNull:
		return []byte("0:"), nil
	case DatumBool:
		if v.Bool {
			return []byte("1:1"), nil
		}
		return []byte("1:0"), nil
	case DatumInt:
		return []byte("2:" + strconv.FormatInt(v.Int, 10)), nil
	case DatumFloat:
		return []byte("3:" + strconv.FormatFloat(v.Float, 'g', -1, 64)), nil
	case DatumString:
		return []byte("4:" + v.Str), nil
	case DatumResource:
		return []byte("5:" + v.Resource.URI), nil
	case DatumList:
		out := []byte("6:")
		for _, e := range v.List {
			eb, _ := valueSortBytes(e)
			out = append(out, eb...)
			out = append(out, ',')
		}
		return out, nil
	case DatumSet:
		out := []byte("7:")
		for _, e := range v.Set {
			eb, _ := valueSortBytes(e)
			out = append(out, eb...)
			out = append(out, ',')
		}
		return out, nil
	case DatumMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte("8:")
		for _, k := range keys {
			out = append(out, k...)
			out = append(out, '=')
			eb, _ := valueSortBytes(v.Map[k])
			out = append(out, eb...)
			out = append(out, ',')
		}
		return out, nil
	}
	return nil, nil
}

func dedupeSorted(xs []*Value) []*Value {
	sorted := append([]*Value{}, xs...)
	sort.Slice(sorted, func(i, j int) bool { return sortKey(sorted[i]) < sortKey(sorted[j]) })
	out := sorted[:0]
	for i, v := range sorted {
		if i > 0 && v.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, v)
	}
	return out
}

