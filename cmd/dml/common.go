package main

import (
	"fmt"

	"github.com/daggerml/dml/internal/dmlconfig"
	"github.com/daggerml/dml/internal/repo"
)

// openRepo resolves configuration from the environment and opens (creating
// if requested) the repository it names.
func openRepo(create bool) (*repo.Repo, *dmlconfig.Config, error) {
	cfg, err := dmlconfig.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.RepoPath == "" {
		return nil, nil, fmt.Errorf("no repository selected (set DML_REPO or DML_REPO_PATH)")
	}
	r, err := repo.Open(cfg.RepoPath, cfg.User, cfg.Branch, create)
	if err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}
