package repo

import (
	"fmt"
	"sort"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// checkout validates that ref names an existing head and switches the
// in-memory current branch to it.
func (r *Repo) checkout(tx *kvstore.Tx, ref model.Ref) error {
	if ref.Type() != "head" {
		return fmt.Errorf("unknown ref type: %s", ref.Type())
	}
	_, ok, err := r.objs.Get(tx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no such ref: %s", ref.To)
	}
	r.head = ref
	return nil
}

// Checkout switches the repository's current branch.
func (r *Repo) Checkout(branch string) error {
	return r.WithTx(false, func(tx *kvstore.Tx) error {
		return r.checkout(tx, model.NewRef("head", branch))
	})
}

// CreateBranch creates head/<name> pointing at ref, which must be a head
// (branched from its current commit) or a commit ref directly.
func (r *Repo) CreateBranch(tx *kvstore.Tx, name string, ref model.Ref) (model.Ref, error) {
	branch := model.NewRef("head", name)
	if _, ok, err := r.objs.Get(tx, branch); err != nil {
		return model.Ref{}, err
	} else if ok {
		return model.Ref{}, fmt.Errorf("branch already exists: %s", name)
	}
	var commitRef model.Ref
	switch ref.Type() {
	case "head":
		obj, ok, err := r.objs.Get(tx, ref)
		if err != nil {
			return model.Ref{}, err
		}
		if !ok {
			return model.Ref{}, fmt.Errorf("no such ref: %s", ref.To)
		}
		commitRef = obj.(*model.Head).Commit
	case "commit":
		commitRef = ref
	default:
		return model.Ref{}, fmt.Errorf("unexpected ref type: %s", ref.Type())
	}
	if err := r.objs.PutAt(tx, branch, &model.Head{Commit: commitRef}); err != nil {
		return model.Ref{}, err
	}
	return branch, nil
}

// DeleteBranch removes head/<name>. Deleting the checked-out branch is
// rejected (spec.md §8).
func (r *Repo) DeleteBranch(tx *kvstore.Tx, name string) error {
	branch := model.NewRef("head", name)
	if branch == r.head {
		return fmt.Errorf("cannot delete the current branch")
	}
	return r.objs.Delete(tx, branch)
}

// SetHead repoints branch at commit.
func (r *Repo) SetHead(tx *kvstore.Tx, branch model.Ref, commit model.Ref) error {
	return r.objs.PutAt(tx, branch, &model.Head{Commit: commit})
}

// Heads lists every head/* ref, sorted by name.
func (r *Repo) Heads(tx *kvstore.Tx) []model.Ref {
	refs := r.objs.Cursor(tx, "head")
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID() < refs[j].ID() })
	return refs
}

// ListIndexes lists every index/* ref — abandoned builder sessions persist
// until explicitly deleted (spec.md §3 Lifecycle).
func (r *Repo) ListIndexes(tx *kvstore.Tx) []model.Ref {
	return r.objs.Cursor(tx, "index")
}
