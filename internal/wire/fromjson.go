package wire

import (
	"fmt"

	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/objstore"
)

// FromJSON decodes a single tagged payload into an Object of the named
// type. typ comes from the ref's own "type/id" form, not from the payload,
// since scalar Datums are encoded as bare JSON values with no tag of their
// own.
func FromJSON(typ string, payload any) (objstore.Object, error) {
	switch typ {
	case "index":
		parts := asSlice(payload)
		return &model.Index{Commit: refOf(parts[1]), Dag: refOf(parts[2])}, nil
	case "head":
		parts := asSlice(payload)
		return &model.Head{Commit: refOf(parts[1])}, nil
	case "commit":
		parts := asSlice(payload)
		return &model.Commit{
			Parents:   refsOf(parts[1]),
			Tree:      refOf(parts[2]),
			Author:    asString(parts[3]),
			Committer: asString(parts[4]),
			Message:   asString(parts[5]),
			Created:   asString(parts[6]),
			Modified:  asString(parts[7]),
		}, nil
	case "tree":
		parts := asSlice(payload)
		return &model.Tree{Dags: refMapOf(parts[1])}, nil
	case "dag":
		parts := asSlice(payload)
		d, err := dagOf(parts)
		return d, err
	case "fndag":
		parts := asSlice(payload)
		d, err := dagOf(parts[:5])
		if err != nil {
			return nil, err
		}
		return &model.FnDag{Dag: *d, Argv: refOf(parts[5])}, nil
	case "node":
		return nodeOf(asSlice(payload))
	case "datum":
		return datumOf(payload)
	}
	return nil, fmt.Errorf("wire: unknown object type %q", typ)
}

func dagOf(parts []any) (*model.Dag, error) {
	var result *model.Ref
	if parts[3] != nil {
		r := refOf(parts[3])
		result = &r
	}
	var errv *model.Error
	if parts[4] != nil {
		ep := asSlice(parts[4])
		ctx, _ := ep[2].(map[string]any)
		errv = &model.Error{Message: asString(ep[0]), Code: asString(ep[1]), Context: ctx}
	}
	return &model.Dag{
		Nodes:  refsOf(parts[1]),
		Names:  refMapOf(parts[2]),
		Result: result,
		Error:  errv,
	}, nil
}

func nodeOf(parts []any) (*model.Node, error) {
	kind := asString(parts[1])
	var doc *string
	if parts[2] != nil {
		s := asString(parts[2])
		doc = &s
	}
	switch model.NodeKind(kind) {
	case model.NodeLiteral:
		return &model.Node{Data: model.Literal{Value: refOf(parts[3])}, Doc: doc}, nil
	case model.NodeImport:
		var node *model.Ref
		if parts[4] != nil {
			r := refOf(parts[4])
			node = &r
		}
		return &model.Node{Data: model.Import{Dag: refOf(parts[3]), Node: node}, Doc: doc}, nil
	case model.NodeFn:
		argv := refsOf(parts[4])
		var node *model.Ref
		if parts[5] != nil {
			r := refOf(parts[5])
			node = &r
		}
		return &model.Node{Data: model.Fn{Dag: refOf(parts[3]), Argv: argv, Node: node}, Doc: doc}, nil
	case model.NodeArgv:
		return &model.Node{Data: model.Argv{Value: refOf(parts[3])}, Doc: doc}, nil
	}
	return nil, fmt.Errorf("wire: unknown node kind %q", kind)
}

func datumOf(payload any) (*model.Datum, error) {
	switch p := payload.(type) {
	case nil:
		return &model.Datum{Kind: model.DatumNull}, nil
	case bool:
		return &model.Datum{Kind: model.DatumBool, Bool: p}, nil
	case float64:
		if p == float64(int64(p)) {
			return &model.Datum{Kind: model.DatumInt, Int: int64(p)}, nil
		}
		return &model.Datum{Kind: model.DatumFloat, Float: p}, nil
	case int64:
		return &model.Datum{Kind: model.DatumInt, Int: p}, nil
	case string:
		return &model.Datum{Kind: model.DatumString, Str: p}, nil
	case []any:
		if len(p) == 2 {
			if tag, ok := p[0].(string); ok {
				switch tag {
				case "l":
					return &model.Datum{Kind: model.DatumList, List: refsOf(p[1])}, nil
				case "s":
					return &model.Datum{Kind: model.DatumSet, Set: refsOf(p[1])}, nil
				case "d":
					return &model.Datum{Kind: model.DatumMap, Map: refMapOf(p[1])}, nil
				}
			}
		}
		if len(p) >= 3 {
			if tag, ok := p[0].(string); ok && tag == "Resource" {
				var data *model.Ref
				if p[2] != nil {
					r := refOf(p[2])
					data = &r
				}
				var adapter *string
				if len(p) > 3 && p[3] != nil {
					s := asString(p[3])
					adapter = &s
				}
				return &model.Datum{Kind: model.DatumResource, Resource: &model.Resource{URI: asString(p[1]), Data: data, Adapter: adapter}}, nil
			}
		}
	}
	return nil, fmt.Errorf("wire: unrecognized datum payload %#v", payload)
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func refOf(v any) model.Ref {
	if v == nil {
		return model.Ref{}
	}
	return model.Ref{To: asString(v)}
}

func refsOf(v any) []model.Ref {
	parts := asSlice(v)
	if len(parts) == 2 {
		if tag, ok := parts[0].(string); ok && tag == "l" {
			items := asSlice(parts[1])
			out := make([]model.Ref, len(items))
			for i, it := range items {
				out[i] = refOf(it)
			}
			return out
		}
	}
	out := make([]model.Ref, len(parts))
	for i, it := range parts {
		out[i] = refOf(it)
	}
	return out
}

func refMapOf(v any) map[string]model.Ref {
	parts := asSlice(v)
	out := map[string]model.Ref{}
	if len(parts) == 2 {
		if tag, ok := parts[0].(string); ok && tag == "d" {
			pairs := asSlice(parts[1])
			for _, pr := range pairs {
				kv := asSlice(pr)
				if len(kv) == 2 {
					out[asString(kv[0])] = refOf(kv[1])
				}
			}
			return out
		}
	}
	return out
}
