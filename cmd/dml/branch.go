package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage branches (create, delete, list, use, merge, rebase)",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Println(r.Head().ID())
		return nil
	},
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name> [from]",
	Short: "Create a branch from the current or named head",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		from := r.Head()
		if len(args) == 2 {
			from = model.NewRef("head", args[1])
		}
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			_, err := r.CreateBranch(tx, args[0], from)
			return err
		})
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			return r.DeleteBranch(tx, args[0])
		})
	},
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(false, func(tx *kvstore.Tx) error {
			for _, ref := range r.Heads(tx) {
				fmt.Println(ref.ID())
			}
			return nil
		})
	},
}

var branchUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the checked-out branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.Checkout(args[0])
	},
}

var branchMergeCmd = &cobra.Command{
	Use:   "merge <name>",
	Short: "Merge another branch into the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			ours, err := r.Objs().MustGet(tx, r.Head())
			if err != nil {
				return err
			}
			theirsRef := model.NewRef("head", args[0])
			theirs, err := r.Objs().MustGet(tx, theirsRef)
			if err != nil {
				return err
			}
			merged, err := r.Merge(tx, ours.(*model.Head).Commit, theirs.(*model.Head).Commit)
			if err != nil {
				return err
			}
			return r.SetHead(tx, r.Head(), merged)
		})
	},
}

var branchRebaseCmd = &cobra.Command{
	Use:   "rebase <onto>",
	Short: "Rebase the current branch onto another",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			ours, err := r.Objs().MustGet(tx, r.Head())
			if err != nil {
				return err
			}
			ontoRef := model.NewRef("head", args[0])
			onto, err := r.Objs().MustGet(tx, ontoRef)
			if err != nil {
				return err
			}
			rebased, err := r.Rebase(tx, onto.(*model.Head).Commit, ours.(*model.Head).Commit)
			if err != nil {
				return err
			}
			return r.SetHead(tx, r.Head(), rebased)
		})
	},
}

func init() {
	branchCmd.AddCommand(branchCreateCmd, branchDeleteCmd, branchListCmd, branchUseCmd, branchMergeCmd, branchRebaseCmd)
}
