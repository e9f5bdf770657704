package fn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/repo"
	"github.com/daggerml/dml/internal/wire"
)

// adapterRequest is the stdin payload spec.md §4.6 specifies for an
// external function adapter: the unrolled argument list, a cache
// identity the adapter may use to memoize expensive work itself, and a
// dump of the in-flight FnDag so the adapter can inspect what has run so
// far (e.g. to resume after a crash).
type adapterRequest struct {
	Kwargs   []*model.Value `json:"kwargs"`
	CacheDB  string         `json:"cache_db"`
	CacheKey string         `json:"cache_key"`
	Dump     []wire.WirePair `json:"dump"`
}

// adapterResponse is the adapter's stdout payload: a dump the engine
// ingests with wire.LoadRef, whose last pair is the node carrying the
// computed result Datum.
type adapterResponse struct {
	Dump []wire.WirePair `json:"dump"`
}

// runAdapter spawns adapterName as a subprocess (an executable on PATH, or
// the `dml-remote-<scheme>-handler` naming convention for a remote-backed
// resource) with the JSON request on stdin and the JSON response on
// stdout, per spec.md §4.6. Grounded on the teacher's pkg/health/exec.go
// subprocess pattern: build the command, capture stdout/stderr separately,
// check the exit code, and wrap a nonzero exit or empty response in an
// error carrying stderr.
func runAdapter(r *repo.Repo, tx *kvstore.Tx, adapterName, uri string, fnDagRef model.Ref, args []*model.Value) (*model.Value, error) {
	dump, err := wire.DumpRef(r.Objs(), tx, fnDagRef)
	if err != nil {
		return nil, fmt.Errorf("fn: dump fndag %s: %w", fnDagRef.To, err)
	}
	req := adapterRequest{
		Kwargs:   args,
		CacheDB:  r.User(),
		CacheKey: fnDagRef.ID(),
		Dump:     dump,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("fn: marshal adapter request: %w", err)
	}

	cmd := exec.Command(adapterName, uri)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("adapter %s failed: %v", adapterName, err)
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s: %s", msg, stderr.String())
		}
		return nil, fmt.Errorf("%s", msg)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("adapter %s returned an empty response", adapterName)
	}

	var resp adapterResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("fn: decode adapter response: %w", err)
	}
	if len(resp.Dump) == 0 {
		return nil, fmt.Errorf("adapter %s returned an empty dump", adapterName)
	}
	resultNodeRef, err := wire.LoadRef(r.Objs(), tx, resp.Dump, true)
	if err != nil {
		return nil, fmt.Errorf("fn: load adapter dump: %w", err)
	}
	return r.GetNodeValue(tx, resultNodeRef)
}
