package repo

import (
	"fmt"

	"github.com/daggerml/dml/internal/codec"
	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// Begin starts a new DAG builder session against the currently checked-out
// branch, returning the fresh index/<uuid> ref the caller threads through
// PutDatum/PutLiteral/PutLoad/PutFn/Commit (spec.md §4.5).
func (r *Repo) Begin(tx *kvstore.Tx, name string) (model.Ref, error) {
	ctx, err := r.ctx(tx, r.head, "")
	if err != nil {
		return model.Ref{}, err
	}
	if ctx.CommitRef.IsNil() {
		return model.Ref{}, fmt.Errorf("repo: branch %s has no commit", r.head.To)
	}
	dagRef, err := r.objs.Put(tx, &model.Dag{Names: map[string]model.Ref{}})
	if err != nil {
		return model.Ref{}, err
	}
	idx := &model.Index{Commit: ctx.CommitRef, Dag: dagRef}
	idxRef, err := r.objs.Put(tx, idx)
	if err != nil {
		return model.Ref{}, err
	}
	_ = name // the dag's registered name is decided at Commit time
	return idxRef, nil
}

func (r *Repo) loadIndex(tx *kvstore.Tx, index model.Ref) (*model.Index, error) {
	obj, err := r.objs.MustGet(tx, index)
	if err != nil {
		return nil, err
	}
	idx, ok := obj.(*model.Index)
	if !ok {
		return nil, fmt.Errorf("repo: ref %s is not an index", index.To)
	}
	return idx, nil
}

func (r *Repo) loadDag(tx *kvstore.Tx, ref model.Ref) (*model.Dag, error) {
	obj, err := r.objs.MustGet(tx, ref)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*model.Dag)
	if !ok {
		return nil, fmt.Errorf("repo: ref %s is not a dag", ref.To)
	}
	return d, nil
}

// putValue recursively descends into a Value tree, writing each leaf/branch
// as a Datum and returning the ref to the top-level Datum (spec.md §4.6).
func (r *Repo) putValue(tx *kvstore.Tx, v *model.Value) (model.Ref, error) {
	if v == nil {
		v = model.Null()
	}
	d := &model.Datum{Kind: v.Kind, Bool: v.Bool, Int: v.Int, Float: v.Float, Str: v.Str}
	switch v.Kind {
	case model.DatumResource:
		res := *v.Resource
		if res.Data != nil {
			// Resource.Data is already a ref into this or another repo; kept
			// as-is rather than re-descended.
		}
		d.Resource = &res
	case model.DatumList:
		refs := make([]model.Ref, len(v.List))
		for i, e := range v.List {
			ref, err := r.putValue(tx, e)
			if err != nil {
				return model.Ref{}, err
			}
			refs[i] = ref
		}
		d.List = refs
	case model.DatumSet:
		refs := make([]model.Ref, len(v.Set))
		for i, e := range v.Set {
			ref, err := r.putValue(tx, e)
			if err != nil {
				return model.Ref{}, err
			}
			refs[i] = ref
		}
		// Sort by packed-ref identity so the hash is independent of the
		// caller's element order (spec.md §4.1: sets are ordered by the
		// packed bytes of their elements).
		codec.SortRefs(refs)
		d.Set = refs
	case model.DatumMap:
		refs := make(map[string]model.Ref, len(v.Map))
		for k, e := range v.Map {
			ref, err := r.putValue(tx, e)
			if err != nil {
				return model.Ref{}, err
			}
			refs[k] = ref
		}
		d.Map = refs
	}
	return r.objs.Put(tx, d)
}

// PutDatum packs an unrolled Value into the content-addressed object store
// and returns its ref, without attaching it to any dag.
func (r *Repo) PutDatum(tx *kvstore.Tx, v *model.Value) (model.Ref, error) {
	return r.putValue(tx, v)
}

// appendNode mints a Node, appends it to the index's dag and, if name is
// non-empty, registers it under that name — rewriting the dag in place at
// its existing UUID (copy-on-write within the same identity).
func (r *Repo) appendNode(tx *kvstore.Tx, index model.Ref, data model.NodeData, doc *string, name string) (model.Ref, error) {
	idx, err := r.loadIndex(tx, index)
	if err != nil {
		return model.Ref{}, err
	}
	dag, err := r.loadDag(tx, idx.Dag)
	if err != nil {
		return model.Ref{}, err
	}
	nodeRef, err := r.objs.Put(tx, &model.Node{Data: data, Doc: doc})
	if err != nil {
		return model.Ref{}, err
	}
	next := dag.Clone()
	next.Nodes = append(next.Nodes, nodeRef)
	if name != "" {
		next.Names[name] = nodeRef
	}
	if err := r.objs.PutAt(tx, idx.Dag, next); err != nil {
		return model.Ref{}, err
	}
	return nodeRef, nil
}

// PutLiteral wraps a pre-packed Datum ref in a Literal node.
func (r *Repo) PutLiteral(tx *kvstore.Tx, index model.Ref, datum model.Ref, name string, doc *string) (model.Ref, error) {
	return r.appendNode(tx, index, model.Literal{Value: datum}, doc, name)
}

// PutLoad imports the named dag's result (or, if node is non-nil, that
// specific node of it) from another commit's tree into the index's dag via
// an Import node (spec.md §4.5/§4.6).
func (r *Repo) PutLoad(tx *kvstore.Tx, index model.Ref, dag model.Ref, node *model.Ref, name string, doc *string) (model.Ref, error) {
	return r.appendNode(tx, index, model.Import{Dag: dag, Node: node}, doc, name)
}

// PutArgv reifies the materialized argument vector of a function call as an
// Argv node inside an FnDag under construction.
func (r *Repo) PutArgv(tx *kvstore.Tx, index model.Ref, value model.Ref, doc *string) (model.Ref, error) {
	return r.appendNode(tx, index, model.Argv{Value: value}, doc, "")
}

// PutFn records a consummated function application.
func (r *Repo) PutFn(tx *kvstore.Tx, index model.Ref, fnDag model.Ref, argv []model.Ref, result *model.Ref, name string, doc *string) (model.Ref, error) {
	return r.appendNode(tx, index, model.Fn{Dag: fnDag, Argv: argv, Node: result}, doc, name)
}

// SetResult marks the index's dag complete with a successful result node.
// Fails if the dag already carries a result or error (spec.md §8: committing
// an already-committed dag is rejected).
func (r *Repo) SetResult(tx *kvstore.Tx, index model.Ref, result model.Ref) error {
	idx, err := r.loadIndex(tx, index)
	if err != nil {
		return err
	}
	dag, err := r.loadDag(tx, idx.Dag)
	if err != nil {
		return err
	}
	if dag.Ready() {
		return fmt.Errorf("dag has been committed already")
	}
	next := dag.Clone()
	res := result
	next.Result = &res
	return r.objs.PutAt(tx, idx.Dag, next)
}

// SetError marks the index's dag complete with a failure. Fails if the dag
// already carries a result or error (spec.md §8).
func (r *Repo) SetError(tx *kvstore.Tx, index model.Ref, failure *model.Error) error {
	idx, err := r.loadIndex(tx, index)
	if err != nil {
		return err
	}
	dag, err := r.loadDag(tx, idx.Dag)
	if err != nil {
		return err
	}
	if dag.Ready() {
		return fmt.Errorf("dag has been committed already")
	}
	next := dag.Clone()
	next.Error = failure
	return r.objs.PutAt(tx, idx.Dag, next)
}

// Commit finalizes the index: it stages a new Commit on top of the commit
// the index was begun from, naming the index's dag as dagName in the tree,
// merges it into the branch's current tip (a plain fast-forward unless
// concurrent commits landed first, spec.md §9), and deletes the index. It
// returns the new commit ref.
func (r *Repo) Commit(tx *kvstore.Tx, index model.Ref, dagName string, message string) (model.Ref, error) {
	idx, err := r.loadIndex(tx, index)
	if err != nil {
		return model.Ref{}, err
	}
	dag, err := r.loadDag(tx, idx.Dag)
	if err != nil {
		return model.Ref{}, err
	}
	if !dag.Ready() {
		return model.Ref{}, fmt.Errorf("commit requires the dag to have a result or error set")
	}
	headCtx, err := r.ctx(tx, r.head, "")
	if err != nil {
		return model.Ref{}, err
	}
	parentCommit, err := r.objs.MustGet(tx, idx.Commit)
	if err != nil {
		return model.Ref{}, err
	}
	parentTree, err := r.objs.MustGet(tx, parentCommit.(*model.Commit).Tree)
	if err != nil {
		return model.Ref{}, err
	}
	nextTree := parentTree.(*model.Tree).Clone()
	nextTree.Dags[dagName] = idx.Dag
	treeRef, err := r.objs.Put(tx, nextTree)
	if err != nil {
		return model.Ref{}, err
	}
	now := nowISO()
	staged := &model.Commit{
		Parents:   []model.Ref{idx.Commit},
		Tree:      treeRef,
		Author:    r.user,
		Committer: r.user,
		Message:   message,
		Created:   now,
		Modified:  now,
	}
	stagedRef, err := r.objs.Put(tx, staged)
	if err != nil {
		return model.Ref{}, err
	}

	merged, err := r.Merge(tx, headCtx.CommitRef, stagedRef)
	if err != nil {
		return model.Ref{}, err
	}
	if err := r.SetHead(tx, r.head, merged); err != nil {
		return model.Ref{}, err
	}
	if err := r.objs.Delete(tx, index); err != nil {
		return model.Ref{}, err
	}
	return merged, nil
}

// DeleteIndex abandons an in-flight builder session without committing.
func (r *Repo) DeleteIndex(tx *kvstore.Tx, index model.Ref) error {
	return r.objs.Delete(tx, index)
}
