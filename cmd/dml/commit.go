package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Inspect commit history (log, revert)",
}

var commitLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List the current branch's commit history (flat table: ref, parents, message, modified)",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(false, func(tx *kvstore.Tx) error {
			headObj, err := r.Objs().MustGet(tx, r.Head())
			if err != nil {
				return err
			}
			entries, err := r.ListCommits(tx, headObj.(*model.Head).Commit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				parents := make([]string, len(e.Commit.Parents))
				for i, p := range e.Commit.Parents {
					parents[i] = p.ID()
				}
				fmt.Printf("%s\t%s\t%s\t%s\n", e.Ref.ID(), strings.Join(parents, ","), e.Commit.Message, e.Commit.Modified)
			}
			return nil
		})
	},
}

var commitRevertCmd = &cobra.Command{
	Use:   "revert <commit-ref>",
	Short: "Reset the current branch to point at an earlier commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			return r.SetHead(tx, r.Head(), model.NewRef("commit", args[0]))
		})
	},
}

func init() {
	commitCmd.AddCommand(commitLogCmd, commitRevertCmd)
}
