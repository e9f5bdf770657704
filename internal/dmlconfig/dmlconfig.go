// Package dmlconfig resolves repository location and identity from
// environment variables and two small JSON files, per spec.md §6 and
// SPEC_FULL.md §4.3. Deliberately plain os.LookupEnv + encoding/json: none
// of the pack's config libraries fit six env vars and two flat JSON files
// with no nesting or hot-reload requirement (see DESIGN.md).
package dmlconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	envConfigDir  = "DML_CONFIG_DIR"
	envProjectDir = "DML_PROJECT_DIR"
	envRepo       = "DML_REPO"
	envBranch     = "DML_BRANCH"
	envUser       = "DML_USER"
	envRepoPath   = "DML_REPO_PATH"
)

const defaultBranch = "main"

// Config is the resolved set of locations and identity a `dml` invocation
// operates with.
type Config struct {
	ConfigDir  string
	ProjectDir string
	Repo       string
	Branch     string
	User       string
	RepoPath   string
}

// projectFile is the optional `<project_dir>/config` JSON document.
type projectFile struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	User   string `json:"user"`
}

// repoFile is the optional `<config_dir>/repo/<name>/config` JSON document.
type repoFile struct {
	MapSize int64 `json:"map_size"`
}

// Load resolves a Config from the environment, falling back to the project
// config file, then to hardcoded defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg := &Config{
		ConfigDir:  envOrDefault(envConfigDir, filepath.Join(home, ".config", "dml")),
		ProjectDir: envOrDefault(envProjectDir, "."),
		Branch:     defaultBranch,
		User:       envOrDefault(envUser, defaultUser()),
	}

	if pf, err := readProjectFile(cfg.ProjectDir); err == nil && pf != nil {
		if pf.Repo != "" {
			cfg.Repo = pf.Repo
		}
		if pf.Branch != "" {
			cfg.Branch = pf.Branch
		}
		if pf.User != "" {
			cfg.User = pf.User
		}
	}

	if v, ok := os.LookupEnv(envRepo); ok {
		cfg.Repo = v
	}
	if v, ok := os.LookupEnv(envBranch); ok {
		cfg.Branch = v
	}
	if v, ok := os.LookupEnv(envUser); ok {
		cfg.User = v
	}

	if v, ok := os.LookupEnv(envRepoPath); ok {
		cfg.RepoPath = v
	} else if cfg.Repo != "" {
		cfg.RepoPath = filepath.Join(cfg.ConfigDir, "repo", cfg.Repo)
	}

	return cfg, nil
}

func envOrDefault(key, dflt string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return dflt
}

func defaultUser() string {
	if u, err := os.UserHomeDir(); err == nil {
		return filepath.Base(u)
	}
	return "unknown"
}

func readProjectFile(dir string) (*projectFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var pf projectFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

// ReadRepoMapSize reads the per-repo `{map_size}` override file, returning
// 0 if absent. Nothing in this module calls it; kvstore does not take a map
// size from this file.
func ReadRepoMapSize(configDir, repo string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(configDir, "repo", repo, "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var rf repoFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return 0, err
	}
	return rf.MapSize, nil
}

// Status is the read-only, zero-side-effect snapshot `dml status` prints
// (supplemented from original_source's `api.py:status`, SPEC_FULL.md §7.1).
type Status struct {
	Repo       string `json:"repo"`
	Branch     string `json:"branch"`
	User       string `json:"user"`
	ConfigDir  string `json:"config_dir"`
	ProjectDir string `json:"project_dir"`
	RepoPath   string `json:"repo_path"`
}

// CurrentStatus builds a Status from cfg.
func CurrentStatus(cfg *Config) Status {
	return Status{
		Repo:       cfg.Repo,
		Branch:     cfg.Branch,
		User:       cfg.User,
		ConfigDir:  cfg.ConfigDir,
		ProjectDir: cfg.ProjectDir,
		RepoPath:   cfg.RepoPath,
	}
}
