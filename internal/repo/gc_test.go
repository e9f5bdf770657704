package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// TestGCDeletesOrphanedBranch implements spec.md §8 scenario S6: a branch
// carrying a dag with a unique Resource leaf is deleted, and GC reclaims
// every object that was only reachable through it.
func TestGCDeletesOrphanedBranch(t *testing.T) {
	r := openTestRepo(t)

	const resourceURI = "s3://bucket/only-on-branch"

	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		_, err := r.CreateBranch(tx, "throwaway", r.Head())
		return err
	}))
	require.NoError(t, r.Checkout("throwaway"))

	var resourceRef model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		if err != nil {
			return err
		}
		datumRef, err := r.PutDatum(tx, model.ResourceVal(model.Resource{URI: resourceURI}))
		if err != nil {
			return err
		}
		resourceRef = datumRef
		node, err := r.PutLiteral(tx, idx, datumRef, "", nil)
		if err != nil {
			return err
		}
		if err := r.SetResult(tx, idx, node); err != nil {
			return err
		}
		_, err = r.Commit(tx, idx, "d0", "m")
		return err
	}))

	require.NoError(t, r.WithTx(false, func(tx *kvstore.Tx) error {
		reachable, err := r.ReachableObjects(tx)
		require.NoError(t, err)
		assert.True(t, reachable[resourceRef], "resource datum must be reachable while its branch exists")
		return nil
	}))

	require.NoError(t, r.Checkout(model.DefaultBranch))
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		return r.DeleteBranch(tx, "throwaway")
	}))

	var deleted []model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		var err error
		deleted, err = r.GC(tx)
		return err
	}))

	assert.Contains(t, deleted, resourceRef, "GC must reclaim the resource datum once its only branch is gone")

	require.NoError(t, r.WithTx(false, func(tx *kvstore.Tx) error {
		_, ok, err := r.Objs().Get(tx, resourceRef)
		require.NoError(t, err)
		assert.False(t, ok, "resource datum must no longer be stored after GC")
		return nil
	}))

	// A second GC run with nothing left to reclaim deletes zero objects.
	var second []model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		var err error
		second, err = r.GC(tx)
		return err
	}))
	assert.Empty(t, second, "GC must be idempotent once the store is clean")
}

func TestGCPreservesReachableObjects(t *testing.T) {
	r := openTestRepo(t)
	var nodeRef model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := r.Begin(tx, "d0")
		if err != nil {
			return err
		}
		datumRef, err := r.PutDatum(tx, model.IntVal(1))
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
	}))

	var deleted []model.Ref
	require.NoError(t, r.WithTx(true, func(tx *kvstore.Tx) error {
		var err error
		deleted, err = r.GC(tx)
		return err
	}))
	assert.Empty(t, deleted)

	require.NoError(t, r.WithTx(false, func(tx *kvstore.Tx) error {
		_, err := r.GetNodeValue(tx, nodeRef)
		return err
	}))
}
