package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daggerml/dml/internal/dmlconfig"
	"github.com/daggerml/dml/internal/kvstore"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage repositories (create, delete, copy, list, gc, path)",
}

var repoCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.ConfigDir, "repo", args[0])
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		store, err := kvstore.Open(path, true)
		if err != nil {
			return err
		}
		return store.Close()
	},
}

var repoDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		return os.RemoveAll(filepath.Join(cfg.ConfigDir, "repo", args[0]))
	},
}

var repoCopyCmd = &cobra.Command{
	Use:   "copy <name> <dest>",
	Short: "Copy a repository's data file to dest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		store, err := kvstore.Open(filepath.Join(cfg.ConfigDir, "repo", args[0]), false)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Copy(args[1])
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(filepath.Join(cfg.ConfigDir, "repo"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Println(e.Name())
			}
		}
		return nil
	},
}

var repoGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect unreachable objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		var deleted int
		if err := r.WithTx(true, func(tx *kvstore.Tx) error {
			refs, err := r.GC(tx)
			deleted = len(refs)
			return err
		}); err != nil {
			return err
		}
		fmt.Printf("deleted %d objects\n", deleted)
		return nil
	},
}

var repoPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the current repository's store path",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := openRepo(false)
		if err != nil {
			return err
		}
		fmt.Println(cfg.RepoPath)
		return nil
	},
}

func init() {
	repoCmd.AddCommand(repoCreateCmd, repoDeleteCmd, repoCopyCmd, repoListCmd, repoGCCmd, repoPathCmd)
}
