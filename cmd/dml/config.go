package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daggerml/dml/internal/dmlconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the selected repo, branch or user (config {repo|branch|user})",
}

func printConfigField(field string) error {
	cfg, err := dmlconfig.Load()
	if err != nil {
		return err
	}
	switch field {
	case "repo":
		fmt.Println(cfg.Repo)
	case "branch":
		fmt.Println(cfg.Branch)
	case "user":
		fmt.Println(cfg.User)
	}
	return nil
}

var configRepoCmd = &cobra.Command{
	Use:  "repo",
	RunE: func(cmd *cobra.Command, args []string) error { return printConfigField("repo") },
}

var configBranchCmd = &cobra.Command{
	Use:  "branch",
	RunE: func(cmd *cobra.Command, args []string) error { return printConfigField("branch") },
}

var configUserCmd = &cobra.Command{
	Use:  "user",
	RunE: func(cmd *cobra.Command, args []string) error { return printConfigField("user") },
}

func init() {
	configCmd.AddCommand(configRepoCmd, configBranchCmd, configUserCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print repo/branch/user/config_dir/project_dir/repo_path (read-only, no side effects)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dmlconfig.Load()
		if err != nil {
			return err
		}
		s := dmlconfig.CurrentStatus(cfg)
		fmt.Printf("repo:        %s\n", s.Repo)
		fmt.Printf("branch:      %s\n", s.Branch)
		fmt.Printf("user:        %s\n", s.User)
		fmt.Printf("config_dir:  %s\n", s.ConfigDir)
		fmt.Printf("project_dir: %s\n", s.ProjectDir)
		fmt.Printf("repo_path:   %s\n", s.RepoPath)
		return nil
	},
}
