// Package repo implements the repository engine: the commit algebra, the
// DAG builder lifecycle and garbage collection described in spec.md §4.4,
// §4.5 and §4.8. A *Repo* owns an object store and the current branch
// pointer; every mutating call runs inside an explicit transaction instead
// of relying on the process-global "current repository" the original
// implementation used (spec.md §9's "Refs vs ownership" redesign note).
package repo

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/objstore"
	"github.com/daggerml/dml/pkg/log"
)

// metaBucket holds free-standing metadata keys (e.g. the "init" marker); it
// is kvstore's bucket named "meta".
const metaBucket = kvstore.MetaBucket

// Repo is a handle onto one repository's object store plus the branch
// currently checked out.
type Repo struct {
	kv   *kvstore.Store
	objs *objstore.Store
	user string
	head model.Ref // e.g. head/main
	log  zerolog.Logger
}

// Open opens an existing repository at dir, or initializes a new one when
// create is true. branch selects (and, for a fresh repo, creates) the
// checked-out branch.
func Open(dir, user, branch string, create bool) (*Repo, error) {
	kv, err := kvstore.Open(dir, create)
	if err != nil {
		return nil, err
	}
	r := &Repo{
		kv:   kv,
		objs: objstore.New(kv),
		user: user,
		head: model.NewRef("head", branch),
		log:  log.Logger.With().Str("component", "repo").Str("branch", branch).Logger(),
	}
	if err := r.init(); err != nil {
		kv.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying environment.
func (r *Repo) Close() error { return r.kv.Close() }

// User returns the configured committer identity.
func (r *Repo) User() string { return r.user }

// Head returns the currently checked-out branch ref.
func (r *Repo) Head() model.Ref { return r.head }

// Objs exposes the underlying typed object store, for packages (fn, wire,
// remote) that need direct Get/Put/Walk access alongside the higher-level
// builder and commit-algebra operations.
func (r *Repo) Objs() *objstore.Store { return r.objs }

func (r *Repo) init() error {
	return r.WithTx(true, func(tx *kvstore.Tx) error {
		if tx.Get(metaBucket, "init") != nil {
			return r.checkout(tx, r.head)
		}
		tree := &model.Tree{Dags: map[string]model.Ref{}}
		treeRef, err := r.objs.Put(tx, tree)
		if err != nil {
			return err
		}
		now := nowISO()
		rootCommit := &model.Commit{
			Parents:   nil,
			Tree:      treeRef,
			Author:    r.user,
			Committer: r.user,
			Message:   "initial commit",
			Created:   now,
			Modified:  now,
		}
		rootRef := model.NewRef("commit", model.ZeroCommitID)
		if err := r.objs.PutAt(tx, rootRef, rootCommit); err != nil {
			return err
		}
		head := &model.Head{Commit: rootRef}
		if err := r.objs.PutAt(tx, r.head, head); err != nil {
			return err
		}
		if err := tx.Put(metaBucket, "init", []byte("1")); err != nil {
			return err
		}
		return r.checkout(tx, r.head)
	})
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Nested calls from within fn (via the Repo's own
// methods) piggy-back on this same transaction (spec.md §4.2/§5).
func (r *Repo) WithTx(write bool, fn func(tx *kvstore.Tx) error) (err error) {
	tx, err := r.kv.Begin(write)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// ctxInfo is the resolved state reachable from a head or index ref: the
// pointed-to object, its commit, the commit's tree, and (if a dag name is
// given) that dag — mirroring the original's Ctx dataclass, generalized
// to work uniformly over both Head and Index since both expose a Commit
// field.
type ctxInfo struct {
	Ref       model.Ref
	CommitRef model.Ref
	Commit    *model.Commit
	TreeRef   model.Ref
	Tree      *model.Tree
	DagRef    model.Ref
	Dag       *model.Dag
}

type hasCommit interface {
	GetCommit() model.Ref
}

func (r *Repo) ctx(tx *kvstore.Tx, ref model.Ref, dagName string) (*ctxInfo, error) {
	obj, ok, err := r.objs.Get(tx, ref)
	if err != nil {
		return nil, err
	}
	info := &ctxInfo{Ref: ref}
	if !ok {
		return info, nil
	}
	hc, ok := obj.(hasCommit)
	if !ok {
		return nil, fmt.Errorf("repo: ref %s does not carry a commit", ref.To)
	}
	info.CommitRef = hc.GetCommit()
	if info.CommitRef.IsNil() {
		return info, nil
	}
	cobj, ok, err := r.objs.Get(tx, info.CommitRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return info, nil
	}
	info.Commit = cobj.(*model.Commit)
	tobj, ok, err := r.objs.Get(tx, info.Commit.Tree)
	if err != nil {
		return nil, err
	}
	if !ok {
		return info, nil
	}
	info.TreeRef = info.Commit.Tree
	info.Tree = tobj.(*model.Tree)
	if dagName != "" {
		if dref, ok := info.Tree.Dags[dagName]; ok {
			info.DagRef = dref
			dobj, ok, err := r.objs.Get(tx, dref)
			if err != nil {
				return nil, err
			}
			if ok {
				info.Dag = dobj.(*model.Dag)
			}
		}
	}
	return info, nil
}
