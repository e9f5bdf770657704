// Command dml is the CLI front-end for the content-addressed object store
// and execution ledger implemented by internal/repo, internal/fn,
// internal/wire and internal/remote. Grounded on cmd/warren/main.go's
// root-command + persistent-flags + subcommand-tree shape (SPEC_FULL.md
// §6.9), trimmed to this domain's surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	flagLogLevel string
	flagLogJSON  bool
	flagDebug    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dml",
	Short:   "Content-addressed object store and execution ledger for computation graphs",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := log.InfoLevel
		switch flagLogLevel {
		case "debug":
			level = log.DebugLevel
		case "warn":
			level = log.WarnLevel
		case "error":
			level = log.ErrorLevel
		}
		log.Init(log.Config{Level: level, JSONOutput: flagLogJSON})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("dml version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Print the full Go error chain on failure")

	rootCmd.AddCommand(repoCmd, branchCmd, dagCmd, commitCmd, remoteCmd, configCmd, statusCmd)
}

// printErr converts any remaining Go error into a model.Error with code
// "internal" before printing, matching SPEC_FULL.md §6.9's exit-code
// contract: a model.Error's message goes to stderr, with the full chain
// only under --debug.
func printErr(err error) {
	if err == nil {
		return
	}
	me, ok := err.(*model.Error)
	if !ok {
		me = model.NewError(err, "internal")
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", me.Message)
	if flagDebug {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	}
}
