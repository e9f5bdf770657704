// Package wire implements the JSON bridge described in spec.md §4.7 and §6:
// a tagged-tuple encoding for every model type plus the topological
// dump/load pair that moves an object subgraph between repositories (or to
// an external adapter process, internal/fn's stdio protocol).
//
// Grounded on `api.py`'s `jsdata()` recursive encoder, generalized into a
// full round-trip codec — the original only encodes (JS-bound display); we
// add the matching decoder FromJSON/LoadRef spec.md §4.7/§8 requires.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/daggerml/dml/internal/codec"
	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/objstore"
)

// WirePair is one [ref_string, payload] entry of a dump (spec.md §4.7).
type WirePair struct {
	Ref     string `json:"ref"`
	Payload any    `json:"payload"`
}

func refStr(r model.Ref) any {
	if r.IsNil() {
		return nil
	}
	return r.To
}

func refSliceJSON(refs []model.Ref) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = refStr(r)
	}
	return []any{"l", out}
}

func refMapJSON(m map[string]model.Ref) []any {
	pairs := make([]any, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, []any{k, refStr(v)})
	}
	return []any{"d", pairs}
}

// ToJSON encodes a single object per the tagged form: scalars inline; lists
// tagged "l"; sets "s"; maps "d" with key/value pairs; typed objects tagged
// with their type name and ordered field list, each recursively encoded.
func ToJSON(obj objstore.Object) (any, error) {
	switch o := obj.(type) {
	case *model.Index:
		return []any{"index", refStr(o.Commit), refStr(o.Dag)}, nil
	case *model.Head:
		return []any{"head", refStr(o.Commit)}, nil
	case *model.Commit:
		parents := make([]any, len(o.Parents))
		for i, p := range o.Parents {
			parents[i] = refStr(p)
		}
		return []any{"commit", parents, refStr(o.Tree), o.Author, o.Committer, o.Message, o.Created, o.Modified}, nil
	case *model.Tree:
		return []any{"tree", refMapJSON(o.Dags)}, nil
	case *model.Dag:
		return dagFields("dag", o)
	case *model.FnDag:
		fields, err := dagFields("fndag", &o.Dag)
		if err != nil {
			return nil, err
		}
		return append(fields, refStr(o.Argv)), nil
	case *model.Node:
		return nodeJSON(o)
	case *model.Datum:
		return datumJSON(o)
	}
	return nil, fmt.Errorf("wire: unsupported type %T", obj)
}

func dagFields(tag string, d *model.Dag) ([]any, error) {
	var result any
	if d.Result != nil {
		result = refStr(*d.Result)
	}
	var errv any
	if d.Error != nil {
		errv = []any{d.Error.Message, d.Error.Code, d.Error.Context}
	}
	return []any{tag, refSliceJSON(d.Nodes), refMapJSON(d.Names), result, errv}, nil
}

func nodeJSON(n *model.Node) (any, error) {
	var doc any
	if n.Doc != nil {
		doc = *n.Doc
	}
	switch d := n.Data.(type) {
	case model.Literal:
		return []any{"node", "Literal", doc, refStr(d.Value)}, nil
	case model.Import:
		var node any
		if d.Node != nil {
			node = refStr(*d.Node)
		}
		return []any{"node", "Import", doc, refStr(d.Dag), node}, nil
	case model.Fn:
		argv := make([]any, len(d.Argv))
		for i, a := range d.Argv {
			argv[i] = refStr(a)
		}
		var node any
		if d.Node != nil {
			node = refStr(*d.Node)
		}
		return []any{"node", "Fn", doc, refStr(d.Dag), argv, node}, nil
	case model.Argv:
		return []any{"node", "Argv", doc, refStr(d.Value)}, nil
	}
	return nil, fmt.Errorf("wire: node has unknown data kind")
}

func datumJSON(d *model.Datum) (any, error) {
	switch d.Kind {
	case model.DatumNull:
		return nil, nil
	case model.DatumBool:
		return d.Bool, nil
	case model.DatumInt:
		return d.Int, nil
	case model.DatumFloat:
		return d.Float, nil
	case model.DatumString:
		return d.Str, nil
	case model.DatumResource:
		var data any
		if d.Resource.Data != nil {
			data = refStr(*d.Resource.Data)
		}
		var adapter any
		if d.Resource.Adapter != nil {
			adapter = *d.Resource.Adapter
		}
		return []any{"Resource", d.Resource.URI, data, adapter}, nil
	case model.DatumList:
		return refSliceJSON(d.List), nil
	case model.DatumSet:
		out := make([]any, len(d.Set))
		for i, r := range d.Set {
			out[i] = refStr(r)
		}
		return []any{"s", out}, nil
	case model.DatumMap:
		return refMapJSON(d.Map), nil
	}
	return nil, fmt.Errorf("wire: datum has unknown kind %q", d.Kind)
}

// DumpRef walks root's object graph in topological order and encodes it as
// a JSON-ready list of WirePairs ending in root (spec.md §4.7).
func DumpRef(objs *objstore.Store, tx *kvstore.Tx, root model.Ref) ([]WirePair, error) {
	order, err := objs.WalkOrdered(tx, root)
	if err != nil {
		return nil, err
	}
	pairs := make([]WirePair, 0, len(order))
	for _, ref := range order {
		obj, ok, err := objs.Get(tx, ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		payload, err := ToJSON(obj)
		if err != nil {
			return nil, fmt.Errorf("wire: encode %s: %w", ref.To, err)
		}
		pairs = append(pairs, WirePair{Ref: ref.To, Payload: payload})
	}
	return pairs, nil
}

// DumpRefJSON is DumpRef marshaled to a JSON byte string, the form the
// internal/fn adapter protocol and internal/remote exchange over stdio.
func DumpRefJSON(objs *objstore.Store, tx *kvstore.Tx, root model.Ref) ([]byte, error) {
	pairs, err := DumpRef(objs, tx, root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pairs)
}

// LoadRef decodes each pair in order and writes it at its given ref
// (preserving identity verbatim, spec.md §4.7). Loading an existing id with
// a different payload fails unless returnExisting is set, in which case the
// stored value is left untouched. Returns the last pair's ref.
func LoadRef(objs *objstore.Store, tx *kvstore.Tx, pairs []WirePair, returnExisting bool) (model.Ref, error) {
	var last model.Ref
	for _, p := range pairs {
		ref := refFromString(p.Ref)
		obj, err := FromJSON(ref.Type(), p.Payload)
		if err != nil {
			return model.Ref{}, fmt.Errorf("wire: decode %s: %w", p.Ref, err)
		}
		data, err := codec.Pack(obj)
		if err != nil {
			return model.Ref{}, err
		}
		existing := tx.Get(ref.Type(), ref.ID())
		if existing != nil && !bytesEqual(existing, data) {
			if !returnExisting {
				return model.Ref{}, fmt.Errorf("wire: load %s: existing payload differs", p.Ref)
			}
			last = ref
			continue
		}
		if err := objs.PutAt(tx, ref, obj); err != nil {
			return model.Ref{}, err
		}
		last = ref
	}
	return last, nil
}

func refFromString(s string) model.Ref {
	return model.Ref{To: s}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
