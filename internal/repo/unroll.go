package repo

import (
	"fmt"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// ResolveNodeDatumRef follows a node ref down to the Datum ref it ultimately
// denotes: a Literal or Argv node's Value directly, an Import's borrowed
// node (or that dag's Result if none is given), or an Fn's recorded result
// node (spec.md §4.6).
func (r *Repo) ResolveNodeDatumRef(tx *kvstore.Tx, node model.Ref) (model.Ref, error) {
	obj, err := r.objs.MustGet(tx, node)
	if err != nil {
		return model.Ref{}, err
	}
	n, ok := obj.(*model.Node)
	if !ok {
		return model.Ref{}, fmt.Errorf("repo: ref %s is not a node", node.To)
	}
	switch d := n.Data.(type) {
	case model.Literal:
		return d.Value, nil
	case model.Argv:
		return d.Value, nil
	case model.Import:
		target := d.Node
		if target == nil {
			dagObj, err := r.objs.MustGet(tx, d.Dag)
			if err != nil {
				return model.Ref{}, err
			}
			dag := dagObj.(*model.Dag)
			if dag.Result == nil {
				return model.Ref{}, fmt.Errorf("repo: imported dag %s has no result", d.Dag.To)
			}
			target = dag.Result
		}
		return r.ResolveNodeDatumRef(tx, *target)
	case model.Fn:
		if d.Node == nil {
			return model.Ref{}, fmt.Errorf("repo: fn node %s has not completed", node.To)
		}
		return r.ResolveNodeDatumRef(tx, *d.Node)
	}
	return model.Ref{}, fmt.Errorf("repo: node %s has unknown data kind", node.To)
}

// UnrollDatumRef reconstructs the full, ref-free Value tree for a datum ref,
// descending into List/Set/Map members (spec.md §4.6, the inverse of
// PutDatum).
func (r *Repo) UnrollDatumRef(tx *kvstore.Tx, ref model.Ref) (*model.Value, error) {
	if ref.IsNil() {
		return model.Null(), nil
	}
	obj, err := r.objs.MustGet(tx, ref)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*model.Datum)
	if !ok {
		return nil, fmt.Errorf("repo: ref %s is not a datum", ref.To)
	}
	switch d.Kind {
	case model.DatumNull:
		return model.Null(), nil
	case model.DatumBool:
		return model.BoolVal(d.Bool), nil
	case model.DatumInt:
		return model.IntVal(d.Int), nil
	case model.DatumFloat:
		return model.FloatVal(d.Float), nil
	case model.DatumString:
		return model.StrVal(d.Str), nil
	case model.DatumResource:
		return model.ResourceVal(*d.Resource), nil
	case model.DatumList:
		out := make([]*model.Value, len(d.List))
		for i, cref := range d.List {
			v, err := r.UnrollDatumRef(tx, cref)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return model.ListVal(out), nil
	case model.DatumSet:
		out := make([]*model.Value, len(d.Set))
		for i, cref := range d.Set {
			v, err := r.UnrollDatumRef(tx, cref)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return model.SetVal(out), nil
	case model.DatumMap:
		out := make(map[string]*model.Value, len(d.Map))
		for k, cref := range d.Map {
			v, err := r.UnrollDatumRef(tx, cref)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return model.MapVal(out), nil
	}
	return nil, fmt.Errorf("repo: datum %s has unknown kind %q", ref.To, d.Kind)
}

// GetNodeValue resolves a node all the way to its unrolled Value, combining
// ResolveNodeDatumRef and UnrollDatumRef.
func (r *Repo) GetNodeValue(tx *kvstore.Tx, node model.Ref) (*model.Value, error) {
	datumRef, err := r.ResolveNodeDatumRef(tx, node)
	if err != nil {
		return nil, err
	}
	return r.UnrollDatumRef(tx, datumRef)
}
