package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/utils"
)

type evaluateCmdOpt struct {
	commonOpt
	queryOpt

	indexFile      string
	minImprovement float64
	runs           int
	output         string
	historyDir     string
}

// NewEvaluateCmd creates the evaluate command, which validates user provided
// indexes instead of the suggested ones.
func NewEvaluateCmd() *cobra.Command {
	var opt evaluateCmdOpt
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "create the specified indexes, measure the queries and keep the indexes only if they help",
		Long:  `create the indexes of --index-file, measure the specified queries before and after, and drop the indexes when the improvement is below --min-improvement`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opt.indexFile == "" {
				return errors.New("no index file, set --index-file")
			}
			cfg, err := opt.loadConfig()
			if err != nil {
				return err
			}
			queries, err := opt.queryOpt.load()
			if err != nil {
				return err
			}
			ddls, err := utils.ParseRawSQLsFromFile(opt.indexFile)
			if err != nil {
				return err
			}
			utils.Infof("load %d index statements from %v", len(ddls), opt.indexFile)

			param := cfg.Parameter()
			if cmd.Flags().Changed("min-improvement") {
				param.MinImprovement = opt.minImprovement
			}
			if cmd.Flags().Changed("runs") {
				param.Runs = opt.runs
			}

			ctx := cmd.Context()
			conn, err := openConnection(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			env, err := newAdvisorEnv(cfg, opt.historyDir)
			if err != nil {
				return err
			}
			defer env.Close()

			a := env.newAdvisor(param)
			for _, q := range queries {
				r, err := a.EvaluateIndexes(ctx, conn, q.Text, ddls)
				if err != nil {
					return fmt.Errorf("evaluate indexes for %v: %w", q.Alias, err)
				}
				if err := PrintAndSaveOptimizationResult(opt.output, q, r); err != nil {
					return err
				}
			}
			return nil
		},
	}

	opt.commonOpt.addFlags(cmd)
	opt.queryOpt.addFlags(cmd)
	cmd.Flags().StringVar(&opt.indexFile, "index-file", "", "a file of ';' separated CREATE INDEX statements")
	cmd.Flags().Float64Var(&opt.minImprovement, "min-improvement", 0.10, "the relative improvement required to keep the indexes")
	cmd.Flags().IntVar(&opt.runs, "runs", 1, "executions per measurement, the median is reported")
	cmd.Flags().StringVar(&opt.output, "output", "", "the directory to save the reports into")
	cmd.Flags().StringVar(&opt.historyDir, "history-dir", "", "the directory of the optimization history, enables the history")
	return cmd
}
