package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// commitLiteral begins a dag under dagName on the currently checked-out
// branch, commits a trivial literal int result, and returns the new branch
// tip commit ref.
func commitLiteral(t *testing.T, r *Repo, tx *kvstore.Tx, dagName string, n int64) model.Ref {
	t.Helper()
	idx, err := r.Begin(tx, dagName)
	require.NoError(t, err)
	datumRef, err := r.PutDatum(tx, model.IntVal(n))
	require.NoError(t, err)
	node, err := r.PutLiteral(tx, idx, datumRef, "", nil)
	require.NoError(t, err)
	require.NoError(t, r.SetResult(tx, idx, node))
	commitRef, err := r.Commit(tx, idx, dagName, "m")
	require.NoError(t, err)
	return commitRef
}

func TestMergeBaseAndMergeSameCommit(t *testing.T) {
	r := openTestRepo(t)
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		c := commitLiteral(t, r, tx, "d0", 1)
		base, err := r.MergeBase(tx, c, c)
		require.NoError(t, err)
		assert.Equal(t, c, base)

		merged, err := r.Merge(tx, c, c)
		require.NoError(t, err)
		assert.Equal(t, c, merged, "merging a commit with itself is a no-op")
		return nil
	})
	require.NoError(t, err)
}

func TestMergeFastForward(t *testing.T) {
	r := openTestRepo(t)
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		root := r.mustHeadCommit(t, tx)
		tip := commitLiteral(t, r, tx, "d0", 1)

		base, err := r.MergeBase(tx, root, tip)
		require.NoError(t, err)
		assert.Equal(t, root, base)

		merged, err := r.Merge(tx, root, tip)
		require.NoError(t, err)
		assert.Equal(t, tip, merged, "fast-forward must return theirs unchanged, minting no new commit")
		return nil
	})
	require.NoError(t, err)
}

// TestMergeThreeWay implements spec.md §8 scenario S5: divergent branches
// each adding a distinct dag merge into a tree containing both.
func TestMergeThreeWay(t *testing.T) {
	r := openTestRepo(t)

	var forkCommit, mainTip, branchTip model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		forkCommit = r.mustHeadCommit(t, tx)
		branchRef, err := r.CreateBranch(tx, "b", forkCommit)
		require.NoError(t, err)
		_ = branchRef
		mainTip = commitLiteral(t, r, tx, "d2", 2)
		return nil
	}))

	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		require.NoError(t, r.checkout(tx, model.NewRef("head", "b")))
		branchTip = commitLiteral(t, r, tx, "d1", 1)
		require.NoError(t, r.checkout(tx, model.NewRef("head", model.DefaultBranch)))
		return nil
	}))

	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		base, err := r.MergeBase(tx, mainTip, branchTip)
		require.NoError(t, err)
		assert.Equal(t, forkCommit, base)

		merged, err := r.Merge(tx, mainTip, branchTip)
		require.NoError(t, err)

		obj, err := r.objs.MustGet(tx, merged)
		require.NoError(t, err)
		treeObj, err := r.objs.MustGet(tx, obj.(*model.Commit).Tree)
		require.NoError(t, err)
		tree := treeObj.(*model.Tree)
		_, hasD1 := tree.Dags["d1"]
		_, hasD2 := tree.Dags["d2"]
		assert.True(t, hasD1, "merge result must contain the branch's dag")
		assert.True(t, hasD2, "merge result must contain main's dag")
		return nil
	})
	require.NoError(t, err)
}

func TestDiffAndPatch(t *testing.T) {
	r := openTestRepo(t)
	from := &model.Tree{Dags: map[string]model.Ref{
		"a": model.NewRef("dag", "1"),
		"b": model.NewRef("dag", "2"),
	}}
	to := &model.Tree{Dags: map[string]model.Ref{
		"a": model.NewRef("dag", "1"),
		"b": model.NewRef("dag", "3"),
		"c": model.NewRef("dag", "4"),
	}}
	diff := r.Diff(from, to)
	assert.Equal(t, model.NewRef("dag", "4"), diff.Added["c"])
	assert.Equal(t, [2]model.Ref{model.NewRef("dag", "2"), model.NewRef("dag", "3")}, diff.Changed["b"])
	assert.Empty(t, diff.Removed)

	patched, conflicts := r.Patch(from, diff)
	assert.Empty(t, conflicts)
	assert.Equal(t, to.Dags, patched.Dags)
}

func TestSquash(t *testing.T) {
	r := openTestRepo(t)
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		root := r.mustHeadCommit(t, tx)
		commitLiteral(t, r, tx, "d0", 1)
		tip := commitLiteral(t, r, tx, "d1", 2)

		squashed, err := r.Squash(tx, tip, root, "squashed")
		require.NoError(t, err)

		obj, err := r.objs.MustGet(tx, squashed)
		require.NoError(t, err)
		c := obj.(*model.Commit)
		assert.Equal(t, []model.Ref{root}, c.Parents)

		treeObj, err := r.objs.MustGet(tx, c.Tree)
		require.NoError(t, err)
		tree := treeObj.(*model.Tree)
		_, hasD0 := tree.Dags["d0"]
		_, hasD1 := tree.Dags["d1"]
		assert.True(t, hasD0)
		assert.True(t, hasD1)

		reHead := r.mustHeadCommit(t, tx)
		assert.Equal(t, squashed, reHead, "the checked-out branch must be reparented onto the squashed commit")
		return nil
	})
	require.NoError(t, err)
}

func TestSquashRejectsNonAncestorBase(t *testing.T) {
	r := openTestRepo(t)
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		root := r.mustHeadCommit(t, tx)
		_ = commitLiteral(t, r, tx, "d0", 1)
		tip := commitLiteral(t, r, tx, "d1", 2)

		_, err := r.Squash(tx, root, tip, "bogus")
		assert.Error(t, err, "squash must reject a base that is not an ancestor of commit")
		return nil
	})
	require.NoError(t, err)
}

// TestRebase exercises the recursive replay: a branch forked off root gets
// its single private commit replayed on top of main's tip, minting a new
// commit rather than reusing either original.
func TestRebase(t *testing.T) {
	r := openTestRepo(t)

	var forkCommit, mainTip, branchTip model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		forkCommit = r.mustHeadCommit(t, tx)
		_, err := r.CreateBranch(tx, "b", forkCommit)
		require.NoError(t, err)
		mainTip = commitLiteral(t, r, tx, "d2", 2)
		return nil
	}))

	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		require.NoError(t, r.checkout(tx, model.NewRef("head", "b")))
		branchTip = commitLiteral(t, r, tx, "d1", 1)
		require.NoError(t, r.checkout(tx, model.NewRef("head", model.DefaultBranch)))
		return nil
	}))

	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		base, err := r.MergeBase(tx, mainTip, branchTip)
		require.NoError(t, err)
		assert.Equal(t, forkCommit, base)

		rebased, err := r.Rebase(tx, mainTip, branchTip)
		require.NoError(t, err)
		assert.NotEqual(t, branchTip, rebased, "rebase must mint a new commit, not reuse the original")
		assert.NotEqual(t, mainTip, rebased)

		obj, err := r.objs.MustGet(tx, rebased)
		require.NoError(t, err)
		c := obj.(*model.Commit)
		assert.Equal(t, []model.Ref{mainTip}, c.Parents, "replayed single-parent commit gets its replayed parent as sole parent")

		treeObj, err := r.objs.MustGet(tx, c.Tree)
		require.NoError(t, err)
		tree := treeObj.(*model.Tree)
		_, hasD1 := tree.Dags["d1"]
		_, hasD2 := tree.Dags["d2"]
		assert.True(t, hasD1, "replayed commit keeps its own dag")
		assert.True(t, hasD2, "replayed commit carries main's dag forward")

		// Original commits are untouched.
		origObj, err := r.objs.MustGet(tx, branchTip)
		require.NoError(t, err)
		assert.NotEqual(t, c.Parents, origObj.(*model.Commit).Parents)
		return nil
	})
	require.NoError(t, err)
}

func TestRebaseNoOpWhenAlreadyAncestor(t *testing.T) {
	r := openTestRepo(t)
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		root := r.mustHeadCommit(t, tx)
		tip := commitLiteral(t, r, tx, "d0", 1)

		rebased, err := r.Rebase(tx, root, tip)
		require.NoError(t, err)
		assert.Equal(t, tip, rebased, "rebasing onto an ancestor is a no-op")

		rebased2, err := r.Rebase(tx, tip, root)
		require.NoError(t, err)
		assert.Equal(t, tip, rebased2, "rebasing an ancestor onto tip returns tip unchanged")
		return nil
	})
	require.NoError(t, err)
}

// mustHeadCommit is a test helper returning the current branch tip's commit
// ref.
func (r *Repo) mustHeadCommit(t *testing.T, tx *kvstore.Tx) model.Ref {
	t.Helper()
	obj, err := r.objs.MustGet(tx, r.Head())
	require.NoError(t, err)
	return obj.(*model.Head).Commit
}
