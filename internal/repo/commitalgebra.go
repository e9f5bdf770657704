package repo

import (
	"fmt"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// TopoSort returns start's ancestry (start included) ordered so that every
// commit appears before its parents, via a DFS over Commit.Parents
// (spec.md §4.4).
func (r *Repo) TopoSort(tx *kvstore.Tx, start model.Ref) ([]model.Ref, error) {
	var order []model.Ref
	seen := map[model.Ref]bool{}
	var visit func(ref model.Ref) error
	visit = func(ref model.Ref) error {
		if ref.IsNil() || seen[ref] {
			return nil
		}
		seen[ref] = true
		obj, ok, err := r.objs.Get(tx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		order = append(order, ref)
		for _, p := range obj.(*model.Commit).Parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(start); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repo) ancestors(tx *kvstore.Tx, start model.Ref) (map[model.Ref]bool, error) {
	order, err := r.TopoSort(tx, start)
	if err != nil {
		return nil, err
	}
	set := make(map[model.Ref]bool, len(order))
	for _, ref := range order {
		set[ref] = true
	}
	return set, nil
}

// MergeBase finds the most recent common ancestor of a and b by walking a's
// ancestry looking for the first commit that is also an ancestor of b,
// following a's parents in order and recursing on each when none match
// directly — mirroring the original's iterative subset-test-with-pivot
// approach (spec.md §4.4).
func (r *Repo) MergeBase(tx *kvstore.Tx, a, b model.Ref) (model.Ref, error) {
	bAncestors, err := r.ancestors(tx, b)
	if err != nil {
		return model.Ref{}, err
	}
	if bAncestors[a] {
		return a, nil
	}
	aObj, ok, err := r.objs.Get(tx, a)
	if err != nil {
		return model.Ref{}, err
	}
	if !ok {
		return model.Ref{}, nil
	}
	for _, p := range aObj.(*model.Commit).Parents {
		if bAncestors[p] {
			return p, nil
		}
	}
	for _, p := range aObj.(*model.Commit).Parents {
		base, err := r.MergeBase(tx, p, b)
		if err != nil {
			return model.Ref{}, err
		}
		if !base.IsNil() {
			return base, nil
		}
	}
	return model.Ref{}, nil
}

// TreeDiff describes the dag-name changes between two trees.
type TreeDiff struct {
	Added   map[string]model.Ref
	Removed map[string]model.Ref
	Changed map[string][2]model.Ref // name -> [from, to]
}

// Diff computes the Tree.Dags changes from "from" to "to" (spec.md §4.4).
func (r *Repo) Diff(from, to *model.Tree) *TreeDiff {
	d := &TreeDiff{Added: map[string]model.Ref{}, Removed: map[string]model.Ref{}, Changed: map[string][2]model.Ref{}}
	for name, ref := range to.Dags {
		if oldRef, ok := from.Dags[name]; !ok {
			d.Added[name] = ref
		} else if oldRef != ref {
			d.Changed[name] = [2]model.Ref{oldRef, ref}
		}
	}
	for name, ref := range from.Dags {
		if _, ok := to.Dags[name]; !ok {
			d.Removed[name] = ref
		}
	}
	return d
}

// Patch applies diff on top of base, producing a new tree. Conflicting
// changes (a name changed on both sides relative to their merge base) are
// reported via conflicts and left as base's value.
func (r *Repo) Patch(base *model.Tree, diff *TreeDiff) (*model.Tree, []string) {
	out := base.Clone()
	var conflicts []string
	for name, ref := range diff.Added {
		if existing, ok := out.Dags[name]; ok && existing != ref {
			conflicts = append(conflicts, name)
			continue
		}
		out.Dags[name] = ref
	}
	for name, pair := range diff.Changed {
		from, to := pair[0], pair[1]
		if current, ok := out.Dags[name]; ok && current != from && current != to {
			conflicts = append(conflicts, name)
			continue
		}
		out.Dags[name] = to
	}
	for name := range diff.Removed {
		delete(out.Dags, name)
	}
	return out, conflicts
}

// Merge produces a three-way merge commit of "ours" and "theirs" against
// their common merge base, fast-forwarding (returning the other side
// unchanged, no new object) when one is already an ancestor of the other
// (spec.md §4.4, original repo.py:310-328).
func (r *Repo) Merge(tx *kvstore.Tx, ours, theirs model.Ref) (model.Ref, error) {
	return r.mergeCommits(tx, ours, theirs, "", "", "")
}

// mergeCommits is Merge with an optional author/message/created override,
// used by Rebase's two-parent replay to preserve the original merge
// commit's metadata (original repo.py:310, `self.merge(a, b, commit.author,
// commit.message, commit.created)`).
func (r *Repo) mergeCommits(tx *kvstore.Tx, ours, theirs model.Ref, author, message, created string) (model.Ref, error) {
	if ours == theirs {
		return ours, nil
	}
	base, err := r.MergeBase(tx, ours, theirs)
	if err != nil {
		return model.Ref{}, err
	}
	if base == theirs {
		return ours, nil
	}
	if base == ours {
		return theirs, nil
	}

	oursObj, err := r.objs.MustGet(tx, ours)
	if err != nil {
		return model.Ref{}, err
	}
	theirsObj, err := r.objs.MustGet(tx, theirs)
	if err != nil {
		return model.Ref{}, err
	}
	oursCommit := oursObj.(*model.Commit)
	theirsCommit := theirsObj.(*model.Commit)

	var baseTree *model.Tree
	if base.IsNil() {
		baseTree = &model.Tree{Dags: map[string]model.Ref{}}
	} else {
		baseObj, err := r.objs.MustGet(tx, base)
		if err != nil {
			return model.Ref{}, err
		}
		baseCommit := baseObj.(*model.Commit)
		bt, err := r.objs.MustGet(tx, baseCommit.Tree)
		if err != nil {
			return model.Ref{}, err
		}
		baseTree = bt.(*model.Tree)
	}

	oursTreeObj, err := r.objs.MustGet(tx, oursCommit.Tree)
	if err != nil {
		return model.Ref{}, err
	}
	theirsTreeObj, err := r.objs.MustGet(tx, theirsCommit.Tree)
	if err != nil {
		return model.Ref{}, err
	}

	theirsDiff := r.Diff(baseTree, theirsTreeObj.(*model.Tree))
	merged, conflicts := r.Patch(oursTreeObj.(*model.Tree), theirsDiff)
	if len(conflicts) > 0 {
		return model.Ref{}, fmt.Errorf("merge conflict on dag(s): %v", conflicts)
	}
	mergedTreeRef, err := r.objs.Put(tx, merged)
	if err != nil {
		return model.Ref{}, err
	}
	if author == "" {
		author = theirsCommit.Author
	}
	if message == "" {
		message = fmt.Sprintf("merge %s into %s", theirs.ID(), ours.ID())
	}
	if created == "" {
		created = nowISO()
	}
	mergeCommit := &model.Commit{
		Parents:   []model.Ref{ours, theirs},
		Tree:      mergedTreeRef,
		Author:    author,
		Committer: r.user,
		Message:   message,
		Created:   created,
		Modified:  nowISO(),
	}
	return r.objs.Put(tx, mergeCommit)
}

// replay walks commit's ancestry back to (and including) base, rebuilding
// each commit on top of onto instead: single-parent commits get a new tree
// (patch(replayed-parent.tree, diff(parent.tree, commit.tree))) and a new
// sole parent; two-parent (merge) commits have both sides replayed and
// re-merged under the original author/message/created (original
// repo.py:330-346's nested `replay`).
func (r *Repo) replay(tx *kvstore.Tx, base, onto, commit model.Ref) (model.Ref, error) {
	if commit == base {
		return onto, nil
	}
	obj, err := r.objs.MustGet(tx, commit)
	if err != nil {
		return model.Ref{}, err
	}
	c := obj.(*model.Commit)
	if len(c.Parents) == 0 {
		return model.Ref{}, fmt.Errorf("replay: commit %s has no parents", commit.ID())
	}
	if len(c.Parents) == 1 {
		x, err := r.replay(tx, base, onto, c.Parents[0])
		if err != nil {
			return model.Ref{}, err
		}
		xObj, err := r.objs.MustGet(tx, x)
		if err != nil {
			return model.Ref{}, err
		}
		xTreeObj, err := r.objs.MustGet(tx, xObj.(*model.Commit).Tree)
		if err != nil {
			return model.Ref{}, err
		}
		parentObj, err := r.objs.MustGet(tx, c.Parents[0])
		if err != nil {
			return model.Ref{}, err
		}
		parentTreeObj, err := r.objs.MustGet(tx, parentObj.(*model.Commit).Tree)
		if err != nil {
			return model.Ref{}, err
		}
		commitTreeObj, err := r.objs.MustGet(tx, c.Tree)
		if err != nil {
			return model.Ref{}, err
		}
		diff := r.Diff(parentTreeObj.(*model.Tree), commitTreeObj.(*model.Tree))
		newTree, conflicts := r.Patch(xTreeObj.(*model.Tree), diff)
		if len(conflicts) > 0 {
			return model.Ref{}, fmt.Errorf("replay conflict on dag(s): %v", conflicts)
		}
		newTreeRef, err := r.objs.Put(tx, newTree)
		if err != nil {
			return model.Ref{}, err
		}
		newCommit := &model.Commit{
			Parents:   []model.Ref{x},
			Tree:      newTreeRef,
			Author:    c.Author,
			Committer: r.user,
			Message:   c.Message,
			Created:   c.Created,
			Modified:  nowISO(),
		}
		return r.objs.Put(tx, newCommit)
	}
	if len(c.Parents) != 2 {
		return model.Ref{}, fmt.Errorf("replay: commit %s has more than two parents", commit.ID())
	}
	a, err := r.replay(tx, base, onto, c.Parents[0])
	if err != nil {
		return model.Ref{}, err
	}
	b, err := r.replay(tx, base, onto, c.Parents[1])
	if err != nil {
		return model.Ref{}, err
	}
	return r.mergeCommits(tx, a, b, c.Author, c.Message, c.Created)
}

// Rebase replays c2 onto c1, minting new content-hashed commits for every
// commit between their merge base and c2 without mutating any existing
// commit (spec.md §4.4, original repo.py:330-346).
func (r *Repo) Rebase(tx *kvstore.Tx, c1, c2 model.Ref) (model.Ref, error) {
	base, err := r.MergeBase(tx, c1, c2)
	if err != nil {
		return model.Ref{}, err
	}
	if base == c1 {
		return c2, nil
	}
	if base == c2 {
		return c1, nil
	}
	return r.replay(tx, base, c1, c2)
}

// Squash requires base to be an ancestor of commit, then collapses
// diff(base.tree, commit.tree) onto a new commit parented on base. Every
// head whose history passes through commit is then reparented onto the
// squashed commit by replaying its remaining history on top of it, so no
// branch is left pointing into the collapsed chain (spec.md §4.4).
func (r *Repo) Squash(tx *kvstore.Tx, commit, base model.Ref, message string) (model.Ref, error) {
	if base.IsNil() {
		return model.Ref{}, fmt.Errorf("squash: base commit required")
	}
	ancestors, err := r.ancestors(tx, commit)
	if err != nil {
		return model.Ref{}, err
	}
	if !ancestors[base] {
		return model.Ref{}, fmt.Errorf("squash: %s is not an ancestor of %s", base.ID(), commit.ID())
	}

	commitObj, err := r.objs.MustGet(tx, commit)
	if err != nil {
		return model.Ref{}, err
	}
	baseObj, err := r.objs.MustGet(tx, base)
	if err != nil {
		return model.Ref{}, err
	}
	c := commitObj.(*model.Commit)
	b := baseObj.(*model.Commit)

	baseTreeObj, err := r.objs.MustGet(tx, b.Tree)
	if err != nil {
		return model.Ref{}, err
	}
	commitTreeObj, err := r.objs.MustGet(tx, c.Tree)
	if err != nil {
		return model.Ref{}, err
	}
	diff := r.Diff(baseTreeObj.(*model.Tree), commitTreeObj.(*model.Tree))
	squashedTree, conflicts := r.Patch(baseTreeObj.(*model.Tree), diff)
	if len(conflicts) > 0 {
		return model.Ref{}, fmt.Errorf("squash conflict on dag(s): %v", conflicts)
	}
	squashedTreeRef, err := r.objs.Put(tx, squashedTree)
	if err != nil {
		return model.Ref{}, err
	}
	squashed := &model.Commit{
		Parents:   []model.Ref{base},
		Tree:      squashedTreeRef,
		Author:    c.Author,
		Committer: r.user,
		Message:   message,
		Created:   c.Created,
		Modified:  nowISO(),
	}
	squashedRef, err := r.objs.Put(tx, squashed)
	if err != nil {
		return model.Ref{}, err
	}

	for _, headRef := range r.objs.Cursor(tx, "head") {
		headObj, err := r.objs.MustGet(tx, headRef)
		if err != nil {
			return model.Ref{}, err
		}
		h := headObj.(*model.Head)
		descAncestors, err := r.ancestors(tx, h.Commit)
		if err != nil {
			return model.Ref{}, err
		}
		if !descAncestors[commit] {
			continue
		}
		newHeadCommit, err := r.replay(tx, commit, squashedRef, h.Commit)
		if err != nil {
			return model.Ref{}, err
		}
		if newHeadCommit != h.Commit {
			if err := r.objs.PutAt(tx, headRef, &model.Head{Commit: newHeadCommit}); err != nil {
				return model.Ref{}, err
			}
		}
	}
	return squashedRef, nil
}
