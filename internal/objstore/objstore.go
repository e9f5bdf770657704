// Package objstore layers typed, content-addressed (or UUID-identity) CRUD
// over internal/kvstore, implementing spec.md §4.3: get/put/delete/cursor,
// the BFS reachability walk and the topological dump walk.
package objstore

import (
	"fmt"

	"github.com/daggerml/dml/internal/codec"
	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// Object is implemented by every persisted value type.
type Object interface {
	model.Typed
	model.Hashable
}

var factories = map[string]func() Object{
	"index": func() Object { return &model.Index{} },
	"head":  func() Object { return &model.Head{} },
	"commit": func() Object { return &model.Commit{} },
	"tree":  func() Object { return &model.Tree{} },
	"dag":   func() Object { return &model.Dag{} },
	"fndag": func() Object { return &model.FnDag{} },
	"node":  func() Object { return &model.Node{} },
	"datum": func() Object { return &model.Datum{} },
}

// ErrImmutable is returned by Put when a caller attempts to overwrite a
// content-addressed object with different bytes at the same id.
type ErrImmutable struct{ Ref model.Ref }

func (e *ErrImmutable) Error() string {
	return fmt.Sprintf("attempt to update immutable object: %s", e.Ref.To)
}

// Store is the typed object layer for one repository.
type Store struct {
	kv *kvstore.Store
}

// New wraps a kvstore.Store.
func New(kv *kvstore.Store) *Store { return &Store{kv: kv} }

// Get dereferences ref against tx, returning (nil, false, nil) if absent.
func (s *Store) Get(tx *kvstore.Tx, ref model.Ref) (Object, bool, error) {
	if ref.IsNil() {
		return nil, false, nil
	}
	raw := tx.Get(ref.Type(), ref.ID())
	if raw == nil {
		return nil, false, nil
	}
	factory, ok := factories[ref.Type()]
	if !ok {
		return nil, false, fmt.Errorf("objstore: unknown type %q", ref.Type())
	}
	obj := factory()
	if err := codec.Unpack(raw, obj); err != nil {
		return nil, false, fmt.Errorf("objstore: unpack %s: %w", ref.To, err)
	}
	return obj, true, nil
}

// MustGet is Get but treats a missing ref as an error, for call sites where
// absence indicates a broken invariant rather than a legitimate miss.
func (s *Store) MustGet(tx *kvstore.Tx, ref model.Ref) (Object, error) {
	obj, ok, err := s.Get(tx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("objstore: no such ref: %s", ref.To)
	}
	return obj, nil
}

// PutOpts configures Put.
type PutOpts struct {
	// ReturnExisting, when the object is content-addressed and an
	// existing value with the same id differs, makes Put return the
	// existing ref instead of failing (spec.md §4.3).
	ReturnExisting bool
}

// Put stores obj, computing its id per spec.md §4.1 (content hash, or a
// fresh UUID when the type's hash field list is empty). Content-addressed
// objects are immutable: writing different bytes at an existing id fails
// unless opts.ReturnExisting is set.
func (s *Store) Put(tx *kvstore.Tx, obj Object, opts ...PutOpts) (model.Ref, error) {
	var o PutOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	id := codec.Hash(obj)
	ref := model.NewRef(obj.TypeName(), id)
	data, err := codec.Pack(obj)
	if err != nil {
		return model.Ref{}, fmt.Errorf("objstore: pack %s: %w", obj.TypeName(), err)
	}

	mintsUUID := len(obj.HashFields()) == 0
	if !mintsUUID {
		existing := tx.Get(ref.Type(), ref.ID())
		if existing != nil && !bytesEqual(existing, data) {
			if o.ReturnExisting {
				return ref, nil
			}
			return model.Ref{}, &ErrImmutable{Ref: ref}
		}
		if existing != nil {
			return ref, nil
		}
	}
	if err := tx.Put(ref.Type(), ref.ID(), data); err != nil {
		return model.Ref{}, err
	}
	return ref, nil
}

// PutAt writes obj at an explicit ref, used for UUID-identity types whose
// id is already minted (an Index or Dag being mutated in place by its
// owning builder transaction) and by dump/load to preserve ids verbatim.
func (s *Store) PutAt(tx *kvstore.Tx, ref model.Ref, obj Object) error {
	data, err := codec.Pack(obj)
	if err != nil {
		return fmt.Errorf("objstore: pack %s: %w", obj.TypeName(), err)
	}
	return tx.Put(ref.Type(), ref.ID(), data)
}

// Delete removes ref. GC moves deleted objects' bytes are simply dropped;
// callers that need to inspect a Resource leaf before deletion should do so
// before calling Delete.
func (s *Store) Delete(tx *kvstore.Tx, ref model.Ref) error {
	return tx.Delete(ref.Type(), ref.ID())
}

// Cursor enumerates every ref of typ in lexicographic key order.
func (s *Store) Cursor(tx *kvstore.Tx, typ string) []model.Ref {
	ids := tx.Keys(typ)
	out := make([]model.Ref, len(ids))
	for i, id := range ids {
		out[i] = model.NewRef(typ, id)
	}
	return out
}

// Objects enumerates every ref across every bucket.
func (s *Store) Objects(tx *kvstore.Tx) []model.Ref {
	var out []model.Ref
	for _, b := range kvstore.Buckets {
		out = append(out, s.Cursor(tx, b)...)
	}
	return out
}

// childRefs returns the direct child refs held by obj, used by Walk's BFS.
func childRefs(obj Object) []model.Ref {
	switch x := obj.(type) {
	case *model.Index:
		return []model.Ref{x.Commit, x.Dag}
	case *model.Head:
		return []model.Ref{x.Commit}
	case *model.Commit:
		refs := append([]model.Ref{}, x.Parents...)
		return append(refs, x.Tree)
	case *model.Tree:
		var refs []model.Ref
		for _, v := range x.Dags {
			refs = append(refs, v)
		}
		return refs
	case *model.Dag:
		return dagChildRefs(x)
	case *model.FnDag:
		refs := dagChildRefs(&x.Dag)
		return append(refs, x.Argv)
	case *model.Node:
		return nodeChildRefs(x)
	case *model.Datum:
		return datumChildRefs(x)
	}
	return nil
}

func dagChildRefs(d *model.Dag) []model.Ref {
	refs := append([]model.Ref{}, d.Nodes...)
	for _, v := range d.Names {
		refs = append(refs, v)
	}
	if d.Result != nil {
		refs = append(refs, *d.Result)
	}
	return refs
}

func nodeChildRefs(n *model.Node) []model.Ref {
	switch d := n.Data.(type) {
	case model.Literal:
		return []model.Ref{d.Value}
	case model.Import:
		refs := []model.Ref{d.Dag}
		if d.Node != nil {
			refs = append(refs, *d.Node)
		}
		return refs
	case model.Fn:
		refs := append([]model.Ref{d.Dag}, d.Argv...)
		if d.Node != nil {
			refs = append(refs, *d.Node)
		}
		return refs
	case model.Argv:
		return []model.Ref{d.Value}
	}
	return nil
}

func datumChildRefs(d *model.Datum) []model.Ref {
	var refs []model.Ref
	if d.Resource != nil && d.Resource.Data != nil {
		refs = append(refs, *d.Resource.Data)
	}
	refs = append(refs, d.List...)
	refs = append(refs, d.Set...)
	for _, v := range d.Map {
		refs = append(refs, v)
	}
	return refs
}

// Walk performs a BFS from roots, descending into every object's child
// refs, and returns the set of refs transitively reachable from roots
// (roots themselves included). The graph is always a DAG so this always
// terminates (spec.md §4.3).
func (s *Store) Walk(tx *kvstore.Tx, roots ...model.Ref) (map[model.Ref]bool, error) {
	seen := map[model.Ref]bool{}
	queue := append([]model.Ref{}, roots...)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if ref.IsNil() || seen[ref] {
			continue
		}
		seen[ref] = true
		obj, ok, err := s.Get(tx, ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		queue = append(queue, childRefs(obj)...)
	}
	return seen, nil
}

// WalkOrdered performs the same traversal as Walk but returns refs in
// topological order (dependencies before dependents), suitable for dumps:
// emitting a ref's payload only after everything it points at has already
// been emitted.
func (s *Store) WalkOrdered(tx *kvstore.Tx, roots ...model.Ref) ([]model.Ref, error) {
	var order []model.Ref
	visited := map[model.Ref]bool{}
	var visit func(ref model.Ref) error
	visit = func(ref model.Ref) error {
		if ref.IsNil() || visited[ref] {
			return nil
		}
		visited[ref] = true
		obj, ok, err := s.Get(tx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, child := range childRefs(obj) {
			if err := visit(child); err != nil {
				return err
			}
		}
		order = append(order, ref)
		return nil
	}
	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
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
