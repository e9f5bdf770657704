package repo

import (
	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// roots returns every head/* and index/* ref currently in the store: the
// only things GC treats as live starting points (spec.md §4.8).
func (r *Repo) roots(tx *kvstore.Tx) []model.Ref {
	roots := r.objs.Cursor(tx, "head")
	roots = append(roots, r.objs.Cursor(tx, "index")...)
	return roots
}

// Objects lists every object currently in the store, across every bucket.
func (r *Repo) Objects(tx *kvstore.Tx) []model.Ref {
	return r.objs.Objects(tx)
}

// ReachableObjects returns every ref transitively reachable from a head or
// an in-flight index.
func (r *Repo) ReachableObjects(tx *kvstore.Tx) (map[model.Ref]bool, error) {
	return r.objs.Walk(tx, r.roots(tx)...)
}

// UnreachableObjects returns every stored ref not reachable from any head or
// index, the set GC would delete.
func (r *Repo) UnreachableObjects(tx *kvstore.Tx) ([]model.Ref, error) {
	reachable, err := r.ReachableObjects(tx)
	if err != nil {
		return nil, err
	}
	var dead []model.Ref
	for _, ref := range r.Objects(tx) {
		if !reachable[ref] {
			dead = append(dead, ref)
		}
	}
	return dead, nil
}

// GC deletes every unreachable object and returns the refs it removed
// (spec.md §4.8). It never touches head/* or index/* themselves since those
// are precisely the roots.
func (r *Repo) GC(tx *kvstore.Tx) ([]model.Ref, error) {
	dead, err := r.UnreachableObjects(tx)
	if err != nil {
		return nil, err
	}
	for _, ref := range dead {
		if err := r.objs.Delete(tx, ref); err != nil {
			return nil, err
		}
	}
	r.log.Info().Int("count", len(dead)).Msg("garbage collected unreachable objects")
	return dead, nil
}
