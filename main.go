package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/cmd"
	"github.com/qw4990/sql_advisor/utils"
)

var (
	rootCmd = &cobra.Command{
		Use:   "sql-advisor",
		Short: "SQL query advisor",
		Long: `SQL query advisor measures queries, reads their plans, suggests indexes,
and optionally applies the indexes and keeps them only when they make the queries faster`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.AddCommand(cmd.NewSuggestCmd())
	rootCmd.AddCommand(cmd.NewExplainCmd())
	rootCmd.AddCommand(cmd.NewOptimizeCmd())
	rootCmd.AddCommand(cmd.NewEvaluateCmd())
	rootCmd.AddCommand(cmd.NewPreCheckCmd())
	rootCmd.AddCommand(cmd.NewHistoryCmd())
}

func main() {
	err := rootCmd.Execute()
	utils.SyncLogger()
	if err != nil {
		os.Exit(1)
	}
}
