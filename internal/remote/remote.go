// Package remote implements repository sync over a named remote pointer and
// a subprocess handler, spec.md §4.9. Grounded on
// `original_source/src/daggerml_cli/remote_file_handler.py`'s tag/get/put
// compare-and-swap protocol, translated into a Go subprocess-exec handler
// interface (the teacher's pkg/health/exec.go shape, reused for a
// Tag/Get/Put contract instead of a health probe).
package remote

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/repo"
	"github.com/daggerml/dml/internal/wire"
)

// Handler is the three-verb contract a `dml-remote-<scheme>-handler`
// executable implements over process I/O (spec.md §4.9).
type Handler interface {
	// Tag returns the remote's current content tag.
	Tag(uri string) (string, error)
	// Get fetches the remote repository file's raw bytes, failing if the
	// remote's tag no longer matches tag.
	Get(uri, tag string) ([]byte, error)
	// Put uploads data, failing (compare-and-swap) if the remote's tag no
	// longer matches tag.
	Put(uri, tag string, data []byte) error
}

// ExecHandler dispatches to `dml-remote-<scheme>-handler` on PATH.
type ExecHandler struct {
	Scheme string
}

func handlerName(scheme string) string {
	return fmt.Sprintf("dml-remote-%s-handler", scheme)
}

func (h ExecHandler) run(args []string, stdin []byte) ([]byte, error) {
	cmd := exec.Command(handlerName(h.Scheme), args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("remote handler %s failed: %v", handlerName(h.Scheme), err)
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s: %s", msg, stderr.String())
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return stdout.Bytes(), nil
}

func (h ExecHandler) Tag(uri string) (string, error) {
	out, err := h.run([]string{"tag", uri}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (h ExecHandler) Get(uri, tag string) ([]byte, error) {
	return h.run([]string{"get", uri, tag}, nil)
}

func (h ExecHandler) Put(uri, tag string, data []byte) error {
	_, err := h.run([]string{"put", uri, tag}, data)
	return err
}

// scheme extracts the URI scheme (everything before "://").
func scheme(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[:i]
	}
	return uri
}

// HandlerFor resolves the appropriate Handler for uri's scheme.
func HandlerFor(uri string) Handler {
	return ExecHandler{Scheme: scheme(uri)}
}

// Clone fetches the remote's dump into r's store (spec.md §4.9 "clone(name,
// repo): fetch the remote file into <config>/repo/<repo>"). As in Fetch, only
// the dump's root head is recorded, under `head/<remote>/<id>`; the current
// branch is not moved.
func Clone(r *repo.Repo, tx *kvstore.Tx, uri, remoteName string) error {
	h := HandlerFor(uri)
	tag, err := h.Tag(uri)
	if err != nil {
		return err
	}
	data, err := h.Get(uri, tag)
	if err != nil {
		return err
	}
	return ingestDump(r, tx, data, remoteName)
}

// Fetch downloads the remote's dump and loads it into the local store
// without touching the current branch (spec.md §4.9). Only the dump's root
// and the objects it reaches are loaded; when that root is a head it is
// recorded under a namespaced `head/<remote>/<id>` ref. The remote's other
// heads are not loaded.
func Fetch(r *repo.Repo, tx *kvstore.Tx, uri, remoteName string) error {
	h := HandlerFor(uri)
	tag, err := h.Tag(uri)
	if err != nil {
		return err
	}
	data, err := h.Get(uri, tag)
	if err != nil {
		return err
	}
	return ingestDump(r, tx, data, remoteName)
}

func ingestDump(r *repo.Repo, tx *kvstore.Tx, data []byte, remoteName string) error {
	pairs, err := decodeDump(data)
	if err != nil {
		return err
	}
	rootRef, err := wire.LoadRef(r.Objs(), tx, pairs, true)
	if err != nil {
		return err
	}
	if rootRef.Type() == "head" {
		namespaced := model.NewRef("head", remoteName+"/"+rootRef.ID())
		return r.SetHead(tx, namespaced, mustHeadCommit(r, tx, rootRef))
	}
	return nil
}

func mustHeadCommit(r *repo.Repo, tx *kvstore.Tx, headRef model.Ref) model.Ref {
	obj, err := r.Objs().MustGet(tx, headRef)
	if err != nil {
		return model.Ref{}
	}
	return obj.(*model.Head).Commit
}

// Pull fetches uri then merges `<remote>/<branch>` into the current branch.
func Pull(r *repo.Repo, tx *kvstore.Tx, uri, remoteName, branch string) (model.Ref, error) {
	if err := Fetch(r, tx, uri, remoteName); err != nil {
		return model.Ref{}, err
	}
	remoteHead := model.NewRef("head", remoteName+"/"+branch)
	remoteObj, err := r.Objs().MustGet(tx, remoteHead)
	if err != nil {
		return model.Ref{}, err
	}
	localObj, err := r.Objs().MustGet(tx, r.Head())
	if err != nil {
		return model.Ref{}, err
	}
	merged, err := r.Merge(tx, localObj.(*model.Head).Commit, remoteObj.(*model.Head).Commit)
	if err != nil {
		return model.Ref{}, err
	}
	return merged, r.SetHead(tx, r.Head(), merged)
}

// Push loads the remote's dump into r's store, merges the current branch
// into the remote head's commit, records the result locally as
// `head/pushed`, and uploads the dump of that head with compare-and-swap on
// the original tag (spec.md §4.9).
func Push(r *repo.Repo, tx *kvstore.Tx, uri string) error {
	h := HandlerFor(uri)
	tag, err := h.Tag(uri)
	if err != nil {
		return err
	}
	remoteData, err := h.Get(uri, tag)
	if err != nil {
		return err
	}
	remotePairs, err := decodeDump(remoteData)
	if err != nil {
		return err
	}
	remoteRootRef, err := wire.LoadRef(r.Objs(), tx, remotePairs, true)
	if err != nil {
		return err
	}
	localObj, err := r.Objs().MustGet(tx, r.Head())
	if err != nil {
		return err
	}
	var remoteCommit model.Ref
	if remoteRootRef.Type() == "head" {
		remoteHeadObj, err := r.Objs().MustGet(tx, remoteRootRef)
		if err != nil {
			return err
		}
		remoteCommit = remoteHeadObj.(*model.Head).Commit
	}
	merged, err := r.Merge(tx, remoteCommit, localObj.(*model.Head).Commit)
	if err != nil {
		return err
	}
	mergedHeadRef := model.NewRef("head", "pushed")
	if err := r.Objs().PutAt(tx, mergedHeadRef, &model.Head{Commit: merged}); err != nil {
		return err
	}
	out, err := wire.DumpRef(r.Objs(), tx, mergedHeadRef)
	if err != nil {
		return err
	}
	blob, err := encodeDump(out)
	if err != nil {
		return err
	}
	return h.Put(uri, tag, blob)
}
