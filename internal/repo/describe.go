package repo

import (
	"fmt"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

// CommitLogEntry is one line of `dml commit log`'s output (supplemented
// from original_source's graph-log command, minus its ASCII graph
// rendering — spec.md's Non-goals exclude a terminal UI, not the listing
// itself).
type CommitLogEntry struct {
	Ref     model.Ref
	Commit  *model.Commit
}

// ListCommits walks start's ancestry in topological order for display.
func (r *Repo) ListCommits(tx *kvstore.Tx, start model.Ref) ([]CommitLogEntry, error) {
	order, err := r.TopoSort(tx, start)
	if err != nil {
		return nil, err
	}
	out := make([]CommitLogEntry, 0, len(order))
	for _, ref := range order {
		obj, err := r.objs.MustGet(tx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, CommitLogEntry{Ref: ref, Commit: obj.(*model.Commit)})
	}
	return out, nil
}

// NodeDescription is the textual/topological summary `dml dag describe`
// reports for a single node (supplemented from original_source's describe
// command, minus its HTML visualizer — spec.md's Non-goals exclude a
// rendered viewer, not the underlying description).
type NodeDescription struct {
	Ref  model.Ref
	Kind model.NodeKind
	Doc  string
	// Depends lists the node's immediate dependencies: the argv nodes of an
	// Fn, the borrowed node of an Import, or nothing for a Literal/Argv.
	Depends []model.Ref
}

// DescribeDag summarizes every node of dagRef in insertion order.
func (r *Repo) DescribeDag(tx *kvstore.Tx, dagRef model.Ref) ([]NodeDescription, error) {
	dag, err := r.loadDag(tx, dagRef)
	if err != nil {
		return nil, err
	}
	out := make([]NodeDescription, 0, len(dag.Nodes))
	for _, nref := range dag.Nodes {
		obj, err := r.objs.MustGet(tx, nref)
		if err != nil {
			return nil, err
		}
		n := obj.(*model.Node)
		desc := NodeDescription{Ref: nref, Kind: n.Data.Kind()}
		if n.Doc != nil {
			desc.Doc = *n.Doc
		}
		switch d := n.Data.(type) {
		case model.Fn:
			desc.Depends = d.Argv
		case model.Import:
			if d.Node != nil {
				desc.Depends = []model.Ref{*d.Node}
			}
		}
		out = append(out, desc)
	}
	return out, nil
}

// DescribeNode formats a single node as a one-line summary of its kind and
// the refs it holds.
func (r *Repo) DescribeNode(tx *kvstore.Tx, nodeRef model.Ref) (string, error) {
	obj, err := r.objs.MustGet(tx, nodeRef)
	if err != nil {
		return "", err
	}
	n := obj.(*model.Node)
	switch d := n.Data.(type) {
	case model.Literal:
		return fmt.Sprintf("Literal(value=%s)", d.Value.To), nil
	case model.Import:
		return fmt.Sprintf("Import(dag=%s)", d.Dag.To), nil
	case model.Fn:
		return fmt.Sprintf("Fn(dag=%s, argv=%d)", d.Dag.To, len(d.Argv)), nil
	case model.Argv:
		return fmt.Sprintf("Argv(value=%s)", d.Value.To), nil
	}
	return "", fmt.Errorf("repo: node %s has unknown data kind", nodeRef.To)
}
