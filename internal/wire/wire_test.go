package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/objstore"
	"github.com/daggerml/dml/internal/repo"
)

// roundTrip puts obj through ToJSON, a real JSON marshal/unmarshal (so
// integers genuinely pass through float64 the way the wire protocol does),
// and FromJSON, returning the decoded object.
func roundTrip(t *testing.T, typ string, obj objstore.Object) objstore.Object {
	t.Helper()
	encoded, err := ToJSON(obj)
	require.NoError(t, err)
	raw, err := json.Marshal(encoded)
	require.NoError(t, err)
	var decoded any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	got, err := FromJSON(typ, decoded)
	require.NoError(t, err)
	return got
}

func TestRoundTripDatumScalars(t *testing.T) {
	cases := []*model.Datum{
		{Kind: model.DatumNull},
		{Kind: model.DatumBool, Bool: true},
		{Kind: model.DatumInt, Int: 42},
		{Kind: model.DatumFloat, Float: 3.5},
		{Kind: model.DatumString, Str: "hi"},
	}
	for _, d := range cases {
		t.Run(string(d.Kind), func(t *testing.T) {
			got := roundTrip(t, "datum", d)
			assert.Equal(t, d, got)
		})
	}
}

func TestRoundTripDatumResource(t *testing.T) {
	dataRef := model.NewRef("datum", "abc")
	adapter := "my-adapter"
	d := &model.Datum{Kind: model.DatumResource, Resource: &model.Resource{
		URI: "s3://bucket/key", Data: &dataRef, Adapter: &adapter,
	}}
	got := roundTrip(t, "datum", d).(*model.Datum)
	assert.Equal(t, d.Resource.URI, got.Resource.URI)
	assert.Equal(t, *d.Resource.Data, *got.Resource.Data)
	assert.Equal(t, *d.Resource.Adapter, *got.Resource.Adapter)
}

func TestRoundTripDatumContainers(t *testing.T) {
	a, b := model.NewRef("datum", "a"), model.NewRef("datum", "b")

	list := &model.Datum{Kind: model.DatumList, List: []model.Ref{a, b}}
	got := roundTrip(t, "datum", list).(*model.Datum)
	assert.Equal(t, list.List, got.List)

	set := &model.Datum{Kind: model.DatumSet, Set: []model.Ref{a, b}}
	got = roundTrip(t, "datum", set).(*model.Datum)
	assert.Equal(t, set.Set, got.Set)

	m := &model.Datum{Kind: model.DatumMap, Map: map[string]model.Ref{"x": a, "y": b}}
	got = roundTrip(t, "datum", m).(*model.Datum)
	assert.Equal(t, m.Map, got.Map)
}

func TestRoundTripNodeVariants(t *testing.T) {
	doc := "a doc"
	valueRef := model.NewRef("datum", "v")
	dagRef := model.NewRef("dag", "d")
	importedNode := model.NewRef("node", "n1")
	fnDagRef := model.NewRef("fndag", "f")
	resultNode := model.NewRef("node", "n2")

	cases := []*model.Node{
		{Data: model.Literal{Value: valueRef}, Doc: &doc},
		{Data: model.Import{Dag: dagRef, Node: &importedNode}},
		{Data: model.Import{Dag: dagRef}},
		{Data: model.Fn{Dag: fnDagRef, Argv: []model.Ref{importedNode, resultNode}, Node: &resultNode}},
		{Data: model.Argv{Value: valueRef}},
	}
	for _, n := range cases {
		got := roundTrip(t, "node", n).(*model.Node)
		assert.Equal(t, n.Data, got.Data)
		if n.Doc != nil {
			require.NotNil(t, got.Doc)
			assert.Equal(t, *n.Doc, *got.Doc)
		}
	}
}

func TestRoundTripIndexHeadCommitTree(t *testing.T) {
	idx := &model.Index{Commit: model.NewRef("commit", "c1"), Dag: model.NewRef("dag", "d1")}
	gotIdx := roundTrip(t, "index", idx).(*model.Index)
	assert.Equal(t, idx, gotIdx)

	head := &model.Head{Commit: model.NewRef("commit", "c1")}
	gotHead := roundTrip(t, "head", head).(*model.Head)
	assert.Equal(t, head, gotHead)

	commit := &model.Commit{
		Parents:   []model.Ref{model.NewRef("commit", "p1"), model.NewRef("commit", "p2")},
		Tree:      model.NewRef("tree", "t1"),
		Author:    "alice",
		Committer: "bob",
		Message:   "msg",
		Created:   "2026-01-01T00:00:00Z",
		Modified:  "2026-01-02T00:00:00Z",
	}
	gotCommit := roundTrip(t, "commit", commit).(*model.Commit)
	assert.Equal(t, commit, gotCommit)

	tree := &model.Tree{Dags: map[string]model.Ref{"d0": model.NewRef("dag", "x")}}
	gotTree := roundTrip(t, "tree", tree).(*model.Tree)
	assert.Equal(t, tree, gotTree)
}

func TestRoundTripDagAndFnDag(t *testing.T) {
	result := model.NewRef("node", "r")
	dag := &model.Dag{
		Nodes:  []model.Ref{model.NewRef("node", "n1")},
		Names:  map[string]model.Ref{"x": model.NewRef("node", "n1")},
		Result: &result,
	}
	gotDag := roundTrip(t, "dag", dag).(*model.Dag)
	assert.Equal(t, dag, gotDag)

	errDag := &model.Dag{
		Nodes: []model.Ref{},
		Names: map[string]model.Ref{},
		Error: &model.Error{Message: "boom", Code: "internal"},
	}
	gotErrDag := roundTrip(t, "dag", errDag).(*model.Dag)
	assert.Equal(t, errDag.Error.Message, gotErrDag.Error.Message)
	assert.Equal(t, errDag.Error.Code, gotErrDag.Error.Code)

	fnDag := &model.FnDag{
		Dag:  model.Dag{Nodes: []model.Ref{model.NewRef("node", "argv1")}, Names: map[string]model.Ref{}},
		Argv: model.NewRef("node", "argv1"),
	}
	gotFnDag := roundTrip(t, "fndag", fnDag).(*model.FnDag)
	assert.Equal(t, fnDag, gotFnDag)
}

// TestDumpLoadRefRoundTrip implements spec.md §8's dump/load invariant:
// load_ref(dump_ref(r)) in a fresh repo yields a ref equal to r by string,
// and the loaded object's walk closure matches the source's by ids.
func TestDumpLoadRefRoundTrip(t *testing.T) {
	src, err := repo.Open(t.TempDir(), "tester@host", model.DefaultBranch, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	want := model.MapVal(map[string]*model.Value{
		"a": model.IntVal(1),
		"b": model.ListVal([]*model.Value{model.IntVal(2), model.IntVal(3)}),
	})

	var nodeRef model.Ref
	require.NoError(t, src.WithTx(true, func(tx *kvstore.Tx) error {
		idx, err := src.Begin(tx, "d0")
		if err != nil {
			return err
		}
		datumRef, err := src.PutDatum(tx, want)
		if err != nil {
			return err
		}
		nodeRef, err = src.PutLiteral(tx, idx, datumRef, "", nil)
		if err != nil {
			return err
		}
		if err := src.SetResult(tx, idx, nodeRef); err != nil {
			return err
		}
		_, err = src.Commit(tx, idx, "d0", "m")
		return err
	}))

	var pairs []WirePair
	var srcReachable map[model.Ref]bool
	require.NoError(t, src.WithTx(false, func(tx *kvstore.Tx) error {
		var err error
		pairs, err = DumpRef(src.Objs(), tx, nodeRef)
		require.NoError(t, err)
		srcReachable, err = src.Objs().Walk(tx, nodeRef)
		return err
	}))
	require.NotEmpty(t, pairs)
	assert.Equal(t, nodeRef.To, pairs[len(pairs)-1].Ref, "dump ends with root")

	dst, err := repo.Open(t.TempDir(), "tester2@host", model.DefaultBranch, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dst.Close() })

	var loadedRef model.Ref
	require.NoError(t, dst.WithTx(true, func(tx *kvstore.Tx) error {
		var err error
		loadedRef, err = LoadRef(dst.Objs(), tx, pairs, false)
		return err
	}))
	assert.Equal(t, nodeRef.To, loadedRef.To, "loaded ref preserves identity")

	require.NoError(t, dst.WithTx(false, func(tx *kvstore.Tx) error {
		dstReachable, err := dst.Objs().Walk(tx, loadedRef)
		require.NoError(t, err)
		assert.Len(t, dstReachable, len(srcReachable))
		for ref := range srcReachable {
			assert.True(t, dstReachable[ref], "every source-reachable ref must also be reachable in the target (%s)", ref.To)
		}

		got, err := dst.GetNodeValue(tx, loadedRef)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "loaded node must resolve to the same value")
		return nil
	}))
}
