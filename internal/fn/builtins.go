package fn

import (
	"fmt"
	"sort"

	"github.com/daggerml/dml/internal/model"
)

// codedError lets a built-in surface a classified failure (spec.md §8's
// `key`/`index`/`value` error codes) without threading *model.Error through
// every Builtin's signature.
type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }

func errKey(format string, a ...any) error   { return &codedError{code: "key", msg: fmt.Sprintf(format, a...)} }
func errIndex(format string, a ...any) error { return &codedError{code: "index", msg: fmt.Sprintf(format, a...)} }
func errValue(format string, a ...any) error { return &codedError{code: "value", msg: fmt.Sprintf(format, a...)} }

// Builtin is a pure, in-process function operating on unrolled Values —
// the built-in half of spec.md §4.6's dispatch split. Grounded on
// `daggerml_cli/topology.py`'s small pure-functional helper set, mirrored
// here as a plain Go map rather than a decorator registry (the same shape
// as internal/objstore's type-name factories map).
type Builtin func(args []*model.Value) (*model.Value, error)

var Builtins = map[string]Builtin{
	"type":     biType,
	"len":      biLen,
	"keys":     biKeys,
	"get":      biGet,
	"contains": biContains,
	"list":     biList,
	"dict":     biDict,
	"set":      biSet,
	"assoc":    biAssoc,
	"conj":     biConj,
	"build":    biBuild,
}

func arity(name string, args []*model.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func biType(args []*model.Value) (*model.Value, error) {
	if err := arity("type", args, 1); err != nil {
		return nil, err
	}
	return model.StrVal(string(args[0].Kind)), nil
}

func biLen(args []*model.Value) (*model.Value, error) {
	if err := arity("len", args, 1); err != nil {
		return nil, err
	}
	switch args[0].Kind {
	case model.DatumList:
		return model.IntVal(int64(len(args[0].List))), nil
	case model.DatumSet:
		return model.IntVal(int64(len(args[0].Set))), nil
	case model.DatumMap:
		return model.IntVal(int64(len(args[0].Map))), nil
	case model.DatumString:
		return model.IntVal(int64(len(args[0].Str))), nil
	}
	return nil, fmt.Errorf("len: unsupported type %s", args[0].Kind)
}

func biKeys(args []*model.Value) (*model.Value, error) {
	if err := arity("keys", args, 1); err != nil {
		return nil, err
	}
	if args[0].Kind != model.DatumMap {
		return nil, fmt.Errorf("keys: expected dict, got %s", args[0].Kind)
	}
	keys := make([]string, 0, len(args[0].Map))
	for k := range args[0].Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*model.Value, len(keys))
	for i, k := range keys {
		out[i] = model.StrVal(k)
	}
	return model.ListVal(out), nil
}

// biGet implements spec.md §4.6's `get`: map/list lookup by key or index,
// with an optional default, plus Python's `coll[slice(*key)]` form — a list
// key against a list collection takes a sublist instead of a single element
// (original_source daggerml_cli/repo.py's builtin table passes a list key
// straight through to `slice(*key)`).
func biGet(args []*model.Value) (*model.Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("get: expected 2 or 3 arguments, got %d", len(args))
	}
	coll, key := args[0], args[1]
	var dflt *model.Value
	if len(args) == 3 {
		dflt = args[2]
	}
	switch coll.Kind {
	case model.DatumMap:
		if key.Kind != model.DatumString {
			return nil, errValue("get: dict key must be a string, got %s", key.Kind)
		}
		if v, ok := coll.Map[key.Str]; ok {
			return v, nil
		}
		if dflt != nil {
			return dflt, nil
		}
		return nil, errKey("get: key %q not found", key.Str)
	case model.DatumList:
		if key.Kind == model.DatumList {
			return sliceList(coll.List, key.List)
		}
		if key.Kind != model.DatumInt {
			return nil, errValue("get: list index must be an int, got %s", key.Kind)
		}
		idx := int(key.Int)
		if idx >= 0 && idx < len(coll.List) {
			return coll.List[idx], nil
		}
		if dflt != nil {
			return dflt, nil
		}
		return nil, errIndex("get: index %d out of range", idx)
	default:
		return nil, errValue("get: unsupported type %s", coll.Kind)
	}
}

// sliceList applies Python's slice(*args) semantics to list, where args is
// up to three ints (start, stop, step) unpacked from the key list.
func sliceList(list []*model.Value, args []*model.Value) (*model.Value, error) {
	n := len(list)
	bound := func(v *model.Value, dflt int) (int, error) {
		if v == nil || v.Kind == model.DatumNull {
			return dflt, nil
		}
		if v.Kind != model.DatumInt {
			return 0, errValue("get: slice bound must be an int, got %s", v.Kind)
		}
		return int(v.Int), nil
	}
	start, stop, step := 0, n, 1
	var err error
	switch len(args) {
	case 1:
		if stop, err = bound(args[0], n); err != nil {
			return nil, err
		}
	case 2:
		if start, err = bound(args[0], 0); err != nil {
			return nil, err
		}
		if stop, err = bound(args[1], n); err != nil {
			return nil, err
		}
	case 3:
		if start, err = bound(args[0], 0); err != nil {
			return nil, err
		}
		if stop, err = bound(args[1], n); err != nil {
			return nil, err
		}
		if step, err = bound(args[2], 1); err != nil {
			return nil, err
		}
		if step == 0 {
			return nil, errValue("get: slice step cannot be zero")
		}
	default:
		return nil, errValue("get: slice key must have 1 to 3 elements, got %d", len(args))
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if stop < 0 {
		stop = 0
	}
	if stop > n {
		stop = n
	}
	out := []*model.Value{}
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, list[i])
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, list[i])
		}
	}
	return model.ListVal(out), nil
}

func biContains(args []*model.Value) (*model.Value, error) {
	if err := arity("contains", args, 2); err != nil {
		return nil, err
	}
	coll, needle := args[0], args[1]
	switch coll.Kind {
	case model.DatumMap:
		if needle.Kind != model.DatumString {
			return model.BoolVal(false), nil
		}
		_, ok := coll.Map[needle.Str]
		return model.BoolVal(ok), nil
	case model.DatumList:
		for _, v := range coll.List {
			if v.Equal(needle) {
				return model.BoolVal(true), nil
			}
		}
		return model.BoolVal(false), nil
	case model.DatumSet:
		for _, v := range coll.Set {
			if v.Equal(needle) {
				return model.BoolVal(true), nil
			}
		}
		return model.BoolVal(false), nil
	}
	return nil, fmt.Errorf("contains: unsupported type %s", coll.Kind)
}

func biList(args []*model.Value) (*model.Value, error) {
	return model.ListVal(append([]*model.Value{}, args...)), nil
}

func biSet(args []*model.Value) (*model.Value, error) {
	return model.SetVal(append([]*model.Value{}, args...)), nil
}

func biDict(args []*model.Value) (*model.Value, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("dict: expected an even number of key/value arguments")
	}
	out := make(map[string]*model.Value, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if args[i].Kind != model.DatumString {
			return nil, fmt.Errorf("dict: keys must be strings")
		}
		out[args[i].Str] = args[i+1]
	}
	return model.MapVal(out), nil
}

func biAssoc(args []*model.Value) (*model.Value, error) {
	if err := arity("assoc", args, 3); err != nil {
		return nil, err
	}
	if args[0].Kind != model.DatumMap {
		return nil, fmt.Errorf("assoc: expected dict, got %s", args[0].Kind)
	}
	if args[1].Kind != model.DatumString {
		return nil, fmt.Errorf("assoc: key must be a string")
	}
	out := make(map[string]*model.Value, len(args[0].Map)+1)
	for k, v := range args[0].Map {
		out[k] = v
	}
	out[args[1].Str] = args[2]
	return model.MapVal(out), nil
}

func biConj(args []*model.Value) (*model.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("conj: expected at least 1 argument")
	}
	switch args[0].Kind {
	case model.DatumList:
		return model.ListVal(append(append([]*model.Value{}, args[0].List...), args[1:]...)), nil
	case model.DatumSet:
		return model.SetVal(append(append([]*model.Value{}, args[0].Set...), args[1:]...)), nil
	}
	return nil, fmt.Errorf("conj: unsupported type %s", args[0].Kind)
}

// biBuild returns its first argument (the template) unchanged; any further
// node arguments are accepted and ignored (SPEC_FULL.md §9 open-question
// decision 3).
func biBuild(args []*model.Value) (*model.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("build: expected at least 1 argument")
	}
	return args[0], nil
}
