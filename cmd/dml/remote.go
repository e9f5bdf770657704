package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daggerml/dml/internal/dmlconfig"
	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/remote"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage remotes (create, delete, list, clone, fetch, pull, push)",
}

func remoteURIPath(cfg *dmlconfig.Config, name string) string {
	return filepath.Join(cfg.ConfigDir, "remote", name, "uri")
}

func readRemoteURI(cfg *dmlconfig.Config, name string) (string, error) {
	data, err := os.ReadFile(remoteURIPath(cfg, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

var remoteCreateCmd = &cobra.Command{
	Use:   "create <name> <uri>",
	Short: "Register a remote pointer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		path := remoteURIPath(cfg, args[0])
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(args[1]+"\n"), 0o644)
	},
}

var remoteDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a remote pointer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		return os.RemoveAll(filepath.Dir(remoteURIPath(cfg, args[0])))
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered remotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(filepath.Join(cfg.ConfigDir, "remote"))
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

var remoteCloneCmd = &cobra.Command{
	Use:   "clone <name>",
	Short: "Clone a remote repository into the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cfg, err := openRepo(true)
		if err != nil {
			return err
		}
		defer r.Close()
		uri, err := readRemoteURI(cfg, args[0])
		if err != nil {
			return err
		}
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			return remote.Clone(r, tx, uri, args[0])
		})
	},
}

var remoteFetchCmd = &cobra.Command{
	Use:   "fetch <name>",
	Short: "Fetch a remote's heads into namespaced local refs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cfg, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		uri, err := readRemoteURI(cfg, args[0])
		if err != nil {
			return err
		}
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			return remote.Fetch(r, tx, uri, args[0])
		})
	},
}

var remotePullCmd = &cobra.Command{
	Use:   "pull <name> <branch>",
	Short: "Fetch then merge a remote branch into the current one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cfg, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		uri, err := readRemoteURI(cfg, args[0])
		if err != nil {
			return err
		}
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			_, err := remote.Pull(r, tx, uri, args[0], args[1])
			return err
		})
	},
}

var remotePushCmd = &cobra.Command{
	Use:   "push <name>",
	Short: "Merge the current branch into the remote with compare-and-swap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cfg, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		uri, err := readRemoteURI(cfg, args[0])
		if err != nil {
			return err
		}
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			return remote.Push(r, tx, uri)
		})
	},
}

func init() {
	remoteCmd.AddCommand(remoteCreateCmd, remoteDeleteCmd, remoteListCmd, remoteCloneCmd, remoteFetchCmd, remotePullCmd, remotePushCmd)
}
