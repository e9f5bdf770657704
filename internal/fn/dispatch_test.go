package fn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/repo"
)

func openTestRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Open(t.TempDir(), "tester@host", model.DefaultBranch, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// dispatchLen applies argv=[Resource("daggerml:len"), list] against dagName
// on the repo's currently checked-out branch and returns the resulting node
// ref (a consummated Fn node, since "len" resolves synchronously).
func dispatchLen(t *testing.T, r *repo.Repo, tx *kvstore.Tx, dagName string, list *model.Value) model.Ref {
	t.Helper()
	idx, err := r.Begin(tx, dagName)
	require.NoError(t, err)

	fnDatumRef, err := r.PutDatum(tx, model.ResourceVal(model.Resource{URI: "daggerml:len"}))
	require.NoError(t, err)
	fnNodeRef, err := r.PutLiteral(tx, idx, fnDatumRef, "", nil)
	require.NoError(t, err)

	argDatumRef, err := r.PutDatum(tx, list)
	require.NoError(t, err)
	argNodeRef, err := r.PutLiteral(tx, idx, argDatumRef, "", nil)
	require.NoError(t, err)

	resultRef, err := Dispatch(r, tx, idx, []model.Ref{fnNodeRef, argNodeRef}, false)
	require.NoError(t, err)
	require.NoError(t, r.SetResult(tx, idx, resultRef))
	_, err = r.Commit(tx, idx, dagName, "m")
	require.NoError(t, err)
	return resultRef
}

// TestDispatchBuiltinLen implements spec.md §8 scenario S3's first half:
// applying a built-in fn dispatches in-process and yields the right value.
func TestDispatchBuiltinLen(t *testing.T) {
	r := openTestRepo(t)
	list := model.ListVal([]*model.Value{model.IntVal(1), model.IntVal(2), model.IntVal(3)})

	var resultRef model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		resultRef = dispatchLen(t, r, tx, "d0", list)
		return nil
	}))

	require.NoError(t, r.WithTx(false, func(tx *kvstore.Tx) error {
		got, err := r.GetNodeValue(tx, resultRef)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Int)
		return nil
	}))
}

// TestDispatchDedupesAcrossBranches implements spec.md §8 scenario S3 in
// full: the same argv applied on a different branch reuses the identical
// FnDag and its cached result instead of re-evaluating.
func TestDispatchDedupesAcrossBranches(t *testing.T) {
	r := openTestRepo(t)
	list := model.ListVal([]*model.Value{model.IntVal(1), model.IntVal(2), model.IntVal(3)})

	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		dispatchLen(t, r, tx, "d0", list)
		return nil
	}))

	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		_, err := r.CreateBranch(tx, "b0", r.Head())
		return err
	}))
	require.NoError(t, r.Checkout("b0"))

	var fnDagCountBefore int
	require.NoError(t, r.WithTx(false, func(tx *kvstore.Tx) error {
		fnDagCountBefore = len(r.Objs().Cursor(tx, "fndag"))
		return nil
	}))
	require.Equal(t, 1, fnDagCountBefore)

	var resultRef model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		resultRef = dispatchLen(t, r, tx, "d1", list)
		return nil
	}))

	require.NoError(t, r.WithTx(false, func(tx *kvstore.Tx) error {
		fnDags := r.Objs().Cursor(tx, "fndag")
		assert.Len(t, fnDags, 1, "identical argv in a different branch must reuse the single FnDag")

		got, err := r.GetNodeValue(tx, resultRef)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Int)
		return nil
	}))
}

// TestDispatchUnknownBuiltinErrors exercises the failure path for a
// `daggerml:` resource that names no known built-in op.
func TestDispatchUnknownBuiltinErrors(t *testing.T) {
	r := openTestRepo(t)
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		require.NoError(t, err)

		fnDatumRef, err := r.PutDatum(tx, model.ResourceVal(model.Resource{URI: "daggerml:nope"}))
		require.NoError(t, err)
		fnNodeRef, err := r.PutLiteral(tx, idx, fnDatumRef, "", nil)
		require.NoError(t, err)

		argDatumRef, err := r.PutDatum(tx, model.IntVal(1))
		require.NoError(t, err)
		argNodeRef, err := r.PutLiteral(tx, idx, argDatumRef, "", nil)
		require.NoError(t, err)

		resultRef, err := Dispatch(r, tx, idx, []model.Ref{fnNodeRef, argNodeRef}, false)
		require.NoError(t, err, "an unknown built-in is recorded as an FnDag error, not a Go error")

		_, err = r.GetNodeValue(tx, resultRef)
		assert.Error(t, err, "a node whose FnDag failed has no completed result")

		fndag := fnDagError(t, r, tx, resultRef)
		assert.Equal(t, "internal", fndag.Code, "an uncoded Go error falls back to the internal code")
		return nil
	}))
}

// TestDispatchBuiltinErrorCarriesCode implements spec.md §7/§8 S4: a
// built-in failure's Error.Code is the classified code the built-in raised
// (here "key", from `get` against a missing dict entry), not a generic
// dispatch-wide literal.
func TestDispatchBuiltinErrorCarriesCode(t *testing.T) {
	r := openTestRepo(t)
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		require.NoError(t, err)

		fnDatumRef, err := r.PutDatum(tx, model.ResourceVal(model.Resource{URI: "daggerml:get"}))
		require.NoError(t, err)
		fnNodeRef, err := r.PutLiteral(tx, idx, fnDatumRef, "", nil)
		require.NoError(t, err)

		dictDatumRef, err := r.PutDatum(tx, model.MapVal(map[string]*model.Value{"a": model.IntVal(1)}))
		require.NoError(t, err)
		dictNodeRef, err := r.PutLiteral(tx, idx, dictDatumRef, "", nil)
		require.NoError(t, err)

		keyDatumRef, err := r.PutDatum(tx, model.StrVal("missing"))
		require.NoError(t, err)
		keyNodeRef, err := r.PutLiteral(tx, idx, keyDatumRef, "", nil)
		require.NoError(t, err)

		resultRef, err := Dispatch(r, tx, idx, []model.Ref{fnNodeRef, dictNodeRef, keyNodeRef}, false)
		require.NoError(t, err)

		fndag := fnDagError(t, r, tx, resultRef)
		assert.Equal(t, "key", fndag.Code)
		return nil
	}))
}

// fnDagError fetches the Error off the FnDag that fnNode (an Fn-kind node)
// points at.
func fnDagError(t *testing.T, r *repo.Repo, tx *kvstore.Tx, fnNode model.Ref) *model.Error {
	t.Helper()
	obj, err := r.Objs().MustGet(tx, fnNode)
	require.NoError(t, err)
	node := obj.(*model.Node)
	fnData, ok := node.Data.(model.Fn)
	require.True(t, ok, "expected an Fn-kind node")
	fndagObj, err := r.Objs().MustGet(tx, fnData.Dag)
	require.NoError(t, err)
	fndag := fndagObj.(*model.FnDag)
	require.NotNil(t, fndag.Error)
	return fndag.Error
}
