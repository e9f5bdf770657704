package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(t.TempDir(), "tester@host", model.DefaultBranch, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// dagRefByName resolves the current branch tip's tree entry for name,
// mirroring what a dump/load or CLI layer would do to import another dag.
func dagRefByName(t *testing.T, r *Repo, tx *kvstore.Tx, name string) model.Ref {
	t.Helper()
	headObj, ok, err := r.Objs().Get(tx, r.Head())
	require.NoError(t, err)
	require.True(t, ok)
	commitObj, ok, err := r.Objs().Get(tx, headObj.(*model.Head).Commit)
	require.NoError(t, err)
	require.True(t, ok)
	treeObj, ok, err := r.Objs().Get(tx, commitObj.(*model.Commit).Tree)
	require.NoError(t, err)
	require.True(t, ok)
	ref, ok := treeObj.(*model.Tree).Dags[name]
	require.True(t, ok, "no dag named %q on current branch", name)
	return ref
}

// TestLiteralRoundTrip implements spec.md §8 scenario S1.
func TestLiteralRoundTrip(t *testing.T) {
	r := openTestRepo(t)

	want := model.MapVal(map[string]*model.Value{
		"foo": model.IntVal(23),
		"bar": model.SetVal([]*model.Value{model.IntVal(4), model.IntVal(6)}),
		"baz": model.ListVal([]*model.Value{model.BoolVal(true), model.IntVal(3)}),
	})

	var nodeRef model.Ref
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		if err != nil {
			return err
		}
		datumRef, err := r.PutDatum(tx, want)
		if err != nil {
			return err
		}
		nodeRef, err = r.PutLiteral(tx, idx, datumRef, "", nil)
		if err != nil {
			return err
		}
		if err := r.SetResult(tx, idx, nodeRef); err != nil {
			return err
		}
		_, err = r.Commit(tx, idx, "d0", "m")
		return err
	})
	require.NoError(t, err)

	err = r.WithTx(false, func(tx *kvstore.Tx) error {
		got, err := r.GetNodeValue(tx, nodeRef)
		if err != nil {
			return err
		}
		assert.True(t, want.Equal(got), "round-tripped value must equal the original")
		return nil
	})
	require.NoError(t, err)
}

// TestImport implements spec.md §8 scenario S2.
func TestImport(t *testing.T) {
	r := openTestRepo(t)

	var n0 model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		if err != nil {
			return err
		}
		datumRef, err := r.PutDatum(tx, model.IntVal(23))
		if err != nil {
			return err
		}
		n0, err = r.PutLiteral(tx, idx, datumRef, "", nil)
		if err != nil {
			return err
		}
		if err := r.SetResult(tx, idx, n0); err != nil {
			return err
		}
		_, err = r.Commit(tx, idx, "d0", "m")
		return err
	}))

	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		d0Ref := dagRefByName(t, r, tx, "d0")
		idx, err := r.Begin(tx, "d1")
		if err != nil {
			return err
		}
		n1, err := r.PutLoad(tx, idx, d0Ref, nil, "", nil)
		if err != nil {
			return err
		}

		// Build [n1, n1, 2] the way start_fn's argv materialization does:
		// unroll the imported node and assemble the composite value.
		v1, err := r.GetNodeValue(tx, n1)
		if err != nil {
			return err
		}
		composite := model.ListVal([]*model.Value{v1, v1, model.IntVal(2)})
		compositeRef, err := r.PutDatum(tx, composite)
		if err != nil {
			return err
		}
		resultNode, err := r.PutLiteral(tx, idx, compositeRef, "", nil)
		if err != nil {
			return err
		}
		if err := r.SetResult(tx, idx, resultNode); err != nil {
			return err
		}
		commitRef, err := r.Commit(tx, idx, "d1", "m")
		if err != nil {
			return err
		}

		got, err := r.GetNodeValue(tx, resultNode)
		if err != nil {
			return err
		}
		want := model.ListVal([]*model.Value{model.IntVal(23), model.IntVal(23), model.IntVal(2)})
		assert.True(t, want.Equal(got), "unrolled import composite must equal [23, 23, 2]")
		assert.False(t, commitRef.IsNil())
		return nil
	}))
}

func TestCommitWithoutResultOrErrorFails(t *testing.T) {
	r := openTestRepo(t)
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		if err != nil {
			return err
		}
		_, err = r.Commit(tx, idx, "d0", "m")
		return err
	})
	assert.Error(t, err)
}

func TestSetResultTwiceFails(t *testing.T) {
	r := openTestRepo(t)
	err := r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		if err != nil {
			return err
		}
		datumRef, err := r.PutDatum(tx, model.IntVal(1))
		if err != nil {
			return err
		}
		node, err := r.PutLiteral(tx, idx, datumRef, "", nil)
		if err != nil {
			return err
		}
		if err := r.SetResult(tx, idx, node); err != nil {
			return err
		}
		return r.SetResult(tx, idx, node)
	})
	assert.ErrorContains(t, err, "committed already")
}
