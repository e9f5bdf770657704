// Package codec implements the deterministic binary serialization and
// content-hashing scheme spec.md §4.1 describes: a msgpack-based pack for
// storage, plus a canonical, sorted-field hash computation used to derive
// content-addressed ids. Types whose hash field list is empty mint a fresh
// UUID instead of hashing, which is how Node/Dag/Head/Index get UUID
// identity inside an otherwise content-addressed store.
package codec

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/daggerml/dml/internal/model"
)

// Pack serializes v to its on-disk storage form.
func Pack(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unpack deserializes storage bytes into out (a pointer).
func Unpack(data []byte, out any) error {
	return msgpack.Unmarshal(data, out)
}

// newUUID mints a 32-lowercase-hex-character id, matching the width of an
// md5 digest (so UUID-identity and content-hash ids are visually
// interchangeable, as spec.md's root-commit-id example assumes).
func newUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Hash computes the content-address id for v. If v's hash field list is
// empty, a fresh UUID is minted instead (spec.md §4.1's UUID escape hatch).
func Hash(v model.Hashable) string {
	fields := v.HashFields()
	if len(fields) == 0 {
		return newUUID()
	}
	canon := canonicalize(fields)
	b, err := msgpack.Marshal(canon)
	if err != nil {
		// Hash fields are always plain data (strings, refs, slices, maps
		// of same); a marshal failure here means a type forgot to
		// implement HashFields correctly.
		panic(fmt.Sprintf("codec: cannot hash value: %v", err))
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// canonicalize walks a hash-field tree and produces a msgpack-marshalable
// value with deterministic map/set ordering, regardless of Go's
// unspecified map iteration order.
func canonicalize(v any) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case model.Ref:
		return x.To
	case *model.Ref:
		if x == nil {
			return nil
		}
		return x.To
	case model.DatumKind:
		return string(x)
	case model.NodeKind:
		return string(x)
	case *model.Resource:
		if x == nil {
			return nil
		}
		var data any
		if x.Data != nil {
			data = x.Data.To
		}
		var adapter any
		if x.Adapter != nil {
			adapter = *x.Adapter
		}
		return []any{x.URI, data, adapter}
	case *model.Error:
		if x == nil {
			return nil
		}
		return []any{x.Message, canonicalize(x.Context), x.Code}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = canonicalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		type kv struct {
			k string
			v any
		}
		pairs := make([]kv, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, kv{k: fmt.Sprint(k.Interface()), v: canonicalize(rv.MapIndex(k).Interface())})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
		out := make([]any, len(pairs))
		for i, p := range pairs {
			out[i] = []any{p.k, p.v}
		}
		return out
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = canonicalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return canonicalize(rv.Elem().Interface())
	default:
		return v
	}
}

// SortRefs sorts a slice of refs by their string form, giving Datum.Set a
// total, deterministic order (spec.md §4.1: "sets by the packed bytes of
// their elements"; ref strings are a stable proxy for that ordering since
// every ref already carries its own content-hash or UUID as its suffix).
func SortRefs(refs []model.Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].To < refs[j].To })
}
