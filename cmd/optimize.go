package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/advisor"
	"github.com/qw4990/sql_advisor/utils"
)

type optimizeCmdOpt struct {
	commonOpt
	queryOpt

	apply          bool
	auto           bool
	noValidate     bool
	minImprovement float64
	runs           int
	maxSuggestions int
	fastQuery      time.Duration
	clearCache     bool
	output         string
	historyDir     string
}

// NewOptimizeCmd creates the optimize command, the full measure, analyze,
// apply and validate loop.
func NewOptimizeCmd() *cobra.Command {
	var opt optimizeCmdOpt
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "measure the specified queries, suggest indexes and optionally apply them",
		Long: `measure the specified queries, analyze their plans and suggest indexes for them.
With --apply the suggested indexes are created, the queries are measured again, and
the indexes are dropped when the improvement is below --min-improvement.
With --auto the strategy is chosen per query from its kind and the size of its largest table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opt.loadConfig()
			if err != nil {
				return err
			}
			queries, err := opt.queryOpt.load()
			if err != nil {
				return err
			}

			param := cfg.Parameter()
			flags := cmd.Flags()
			if flags.Changed("no-validate") {
				param.Validate = !opt.noValidate
			}
			if flags.Changed("min-improvement") {
				param.MinImprovement = opt.minImprovement
			}
			if flags.Changed("runs") {
				param.Runs = opt.runs
			}
			if flags.Changed("max-suggestions") {
				param.MaxSuggestions = opt.maxSuggestions
			}
			if flags.Changed("fast-query-threshold") {
				param.FastQueryThreshold = opt.fastQuery
			}
			if flags.Changed("clear-cache") {
				param.ClearCache = opt.clearCache
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

			var kept, rolledBack int
			for _, q := range queries {
				queryParam, apply := param, opt.apply
				if opt.auto {
					s := advisor.ChooseStrategy(ctx, conn, q.Text)
					utils.Infof("strategy of %v: %v", q.Alias, s)
					queryParam, apply = s.Apply(param), s.ApplyChanges()
				}

				r, err := env.newAdvisor(queryParam).Optimize(ctx, conn, q.Text, apply)
				if err != nil {
					return fmt.Errorf("optimize %v: %w", q.Alias, err)
				}
				if v := r.Validation; v != nil && len(r.AppliedIndexes) > 0 {
					if v.Kept {
						kept++
					} else {
						rolledBack++
					}
				}
				if err := PrintAndSaveOptimizationResult(opt.output, q, r); err != nil {
					return err
				}
			}

			fmt.Println("===================== summary =====================")
			fmt.Printf("Queries: %v, indexes kept for %v, rolled back for %v\n", len(queries), kept, rolledBack)
			fmt.Println(conn.Stats().Format())
			return nil
		},
	}

	opt.commonOpt.addFlags(cmd)
	opt.queryOpt.addFlags(cmd)
	cmd.Flags().BoolVar(&opt.apply, "apply", false, "create the suggested indexes and validate them")
	cmd.Flags().BoolVar(&opt.auto, "auto", false, "choose the strategy of every query automatically, overrides --apply")
	cmd.Flags().BoolVar(&opt.noValidate, "no-validate", false, "keep created indexes whatever the improvement")
	cmd.Flags().Float64Var(&opt.minImprovement, "min-improvement", 0.10, "the relative improvement required to keep created indexes")
	cmd.Flags().IntVar(&opt.runs, "runs", 1, "executions per measurement, the median is reported")
	cmd.Flags().IntVar(&opt.maxSuggestions, "max-suggestions", 5, "max number of indexes to suggest for one query, at most 10")
	cmd.Flags().DurationVar(&opt.fastQuery, "fast-query-threshold", 0, "do not apply indexes for queries faster than this, 0 disables it")
	cmd.Flags().BoolVar(&opt.clearCache, "clear-cache", false, "ask the server to drop its caches before every timed run")
	cmd.Flags().StringVar(&opt.output, "output", "", "the directory to save the reports into")
	cmd.Flags().StringVar(&opt.historyDir, "history-dir", "", "the directory of the optimization history, enables the history")
	return cmd
}
