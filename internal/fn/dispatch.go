// Package fn implements function-node dispatch: the built-in pure function
// table and the external adapter subprocess protocol described in spec.md
// §4.6. Dispatch is the bridge between internal/repo's DAG builder and
// whatever external program actually computes a function's result.
package fn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/objstore"
	"github.com/daggerml/dml/internal/repo"
)

// builtinScheme is the URI scheme recognized for in-process built-ins
// (spec.md §4.6: "Built-in (scheme daggerml, operation in the recognized
// set)").
const builtinScheme = "daggerml:"

// Dispatch applies argv (the node [fn, arg1, ...], fn's value unrolling to a
// Resource) against index's builder, returning the node appended to the
// caller's dag: a synthesized Fn node if the FnDag is already ready, or the
// pending argv node otherwise (spec.md §4.6 step 4).
func Dispatch(r *repo.Repo, tx *kvstore.Tx, index model.Ref, argv []model.Ref, retry bool) (model.Ref, error) {
	if len(argv) == 0 {
		return model.Ref{}, fmt.Errorf("fn: empty argv")
	}
	fnValue, err := r.GetNodeValue(tx, argv[0])
	if err != nil {
		return model.Ref{}, err
	}
	if fnValue.Kind != model.DatumResource {
		return model.Ref{}, fmt.Errorf("fn: argv[0] must unroll to a Resource, got %s", fnValue.Kind)
	}
	res := fnValue.Resource

	values := make([]*model.Value, len(argv))
	for i, n := range argv {
		v, err := r.GetNodeValue(tx, n)
		if err != nil {
			return model.Ref{}, err
		}
		values[i] = v
	}
	argvValue := model.ListVal(values)
	argvDatumRef, err := r.PutDatum(tx, argvValue)
	if err != nil {
		return model.Ref{}, err
	}
	argvNodeRef, err := r.PutArgv(tx, index, argvDatumRef, nil)
	if err != nil {
		return model.Ref{}, err
	}

	fnDagRef, skeleton, created, err := getOrCreateFnDag(r, tx, argvNodeRef, retry)
	if err != nil {
		return model.Ref{}, err
	}

	if created {
		result, derr := evaluate(r, tx, *res, fnDagRef, values[1:])
		if derr != nil {
			skeleton.Error = model.NewError(derr, errorCode(res, derr))
		} else {
			resultRef, perr := r.PutDatum(tx, result)
			if perr != nil {
				return model.Ref{}, perr
			}
			resultNode := &model.Node{Data: model.Argv{Value: resultRef}}
			resultNodeRef, perr := r.Objs().Put(tx, resultNode)
			if perr != nil {
				return model.Ref{}, perr
			}
			skeleton.Result = &resultNodeRef
			skeleton.Nodes = append(skeleton.Nodes, resultNodeRef)
		}
		if err := r.Objs().PutAt(tx, fnDagRef, skeleton); err != nil {
			return model.Ref{}, err
		}
	}

	if skeleton.Ready() {
		return r.PutFn(tx, index, fnDagRef, argv, skeleton.Result, "", nil)
	}
	return argvNodeRef, nil
}

// getOrCreateFnDag returns the unique FnDag keyed by argvNode's content hash
// (FnDag.HashFields hashes only Argv, spec.md §4.6 step 2), creating an
// empty one if absent. When retry is set and the existing FnDag carries an
// error, it is replaced in place by a fresh unfilled one before re-dispatch
// — the sole sanctioned immutability violation (spec.md §4.6 edge case).
func getOrCreateFnDag(r *repo.Repo, tx *kvstore.Tx, argvNode model.Ref, retry bool) (model.Ref, *model.FnDag, bool, error) {
	probe := &model.FnDag{Dag: model.Dag{Nodes: []model.Ref{argvNode}, Names: map[string]model.Ref{}}, Argv: argvNode}
	ref, err := r.Objs().Put(tx, probe, objstore.PutOpts{ReturnExisting: true})
	if err != nil {
		return model.Ref{}, nil, false, err
	}
	obj, ok, err := r.Objs().Get(tx, ref)
	if err != nil {
		return model.Ref{}, nil, false, err
	}
	if !ok {
		return model.Ref{}, nil, false, fmt.Errorf("fn: fndag %s vanished after put", ref.To)
	}
	existing := obj.(*model.FnDag)
	if existing.Ready() && existing.Error != nil && retry {
		fresh := &model.FnDag{Dag: model.Dag{Nodes: []model.Ref{argvNode}, Names: map[string]model.Ref{}}, Argv: argvNode}
		if err := r.Objs().PutAt(tx, ref, fresh); err != nil {
			return model.Ref{}, nil, false, err
		}
		return ref, fresh, true, nil
	}
	if existing.Ready() {
		return ref, existing, false, nil
	}
	// Exists but unresolved (a previous dispatch failed to complete it) —
	// treat as freshly created so dispatch retries in-place.
	return ref, existing, true, nil
}

// errorCode classifies an evaluate failure for storage on the FnDag's
// Error.Code (spec.md §7, §8 S4): an adapter failure's code is the adapter
// name, a built-in's is whatever codedError it raised (`key`/`index`/
// `value`), and anything else falls back to "internal".
func errorCode(res *model.Resource, err error) string {
	if res.Adapter != nil {
		return *res.Adapter
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return "internal"
}

// evaluate classifies res by URI scheme and runs the built-in table or the
// external adapter (spec.md §4.6 step 3). args excludes the fn resource
// itself.
func evaluate(r *repo.Repo, tx *kvstore.Tx, res model.Resource, fnDagRef model.Ref, args []*model.Value) (*model.Value, error) {
	if strings.HasPrefix(res.URI, builtinScheme) {
		op := strings.TrimPrefix(res.URI, builtinScheme)
		impl, ok := Builtins[op]
		if !ok {
			return nil, fmt.Errorf("fn: unknown built-in op %q", op)
		}
		return impl(args)
	}
	if res.Adapter == nil {
		return nil, fmt.Errorf("fn: resource %s has no adapter and is not a built-in", res.URI)
	}
	return runAdapter(r, tx, *res.Adapter, res.URI, fnDagRef, args)
}
