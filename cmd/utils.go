package cmd

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/advisor"
	"github.com/qw4990/sql_advisor/cache"
	"github.com/qw4990/sql_advisor/config"
	"github.com/qw4990/sql_advisor/database"
	"github.com/qw4990/sql_advisor/history"
	"github.com/qw4990/sql_advisor/utils"
)

// commonOpt holds the flags shared by all commands.
type commonOpt struct {
	configPath string
	driver     string
	dsn        string
	logLevel   string
}

func (o *commonOpt) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configPath, "config", "", "the YAML config file")
	cmd.Flags().StringVar(&o.driver, "driver", "", "the database driver: mysql, sqlite or postgres (overrides $"+config.EnvDriver+")")
	cmd.Flags().StringVar(&o.dsn, "dsn", "", "the data source name, e.g. 'root:@tcp(127.0.0.1:3306)/test' (overrides $"+config.EnvDSN+")")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "log level, one of 'debug', 'info', 'warning', 'error'")
}

// loadConfig applies, by increasing precedence, the defaults, the config
// file, the environment and the command line flags.
func (o *commonOpt) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.driver != "" {
		cfg.Driver = o.driver
	}
	if o.dsn != "" {
		cfg.DSN = o.dsn
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
		utils.SetLogLevel(cfg.LogLevel)
	default:
		return cfg, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return cfg, nil
}

func openConnection(ctx context.Context, cfg config.Config) (database.Connection, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no data source name, set --dsn, $%v or 'dsn' in the config file", config.EnvDSN)
	}
	conn, err := database.Open(ctx, cfg.Driver, cfg.DSN, cfg.RetryPolicy())
	if err != nil {
		return nil, err
	}
	utils.Infof("connected to the %v database", conn.Dialect().Name())
	return conn, nil
}

// queryOpt selects the queries a command works on.
type queryOpt struct {
	query     string
	queryPath string
	queries   string
}

func (o *queryOpt) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.query, "query", "", "the query to work on")
	cmd.Flags().StringVar(&o.queryPath, "query-path", "", "a file of ';' separated queries, or a directory of *.sql files")
	cmd.Flags().StringVar(&o.queries, "queries", "", "aliases of the queries to consider, e.g. 'q1,q2'")
}

// load returns the selected SELECT queries, without system queries and with
// duplicates compressed by fingerprint.
func (o *queryOpt) load() ([]utils.Query, error) {
	var queries utils.Set[utils.Query]
	switch {
	case o.query != "":
		queries = utils.NewQueries("", o.query)
	case o.queryPath != "":
		var err error
		if queries, err = utils.LoadQueries("", o.queryPath); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("no query, set --query or --query-path")
	}
	if o.queries != "" {
		queries = utils.FilterBySQLAlias(queries, strings.Split(o.queries, ","))
	}
	queries = utils.CompressQueries(utils.FilterSystemQueries(utils.FilterSelectQueries(queries)))
	if queries.Size() == 0 {
		return nil, errors.New("no query left to work on")
	}
	return queries.ToList(), nil
}

// advisorEnv is the cache and history shared by the advisors of one command.
type advisorEnv struct {
	cache   *cache.TTLCache[*advisor.OptimizationResult]
	history history.Store
}

func newAdvisorEnv(cfg config.Config, historyDir string) (*advisorEnv, error) {
	env := new(advisorEnv)
	if cfg.Cache.Enabled {
		c, err := cache.New[*advisor.OptimizationResult](cfg.CacheOptions())
		if err != nil {
			return nil, err
		}
		env.cache = c
	}
	if historyDir == "" {
		historyDir = cfg.History.Dir
	}
	if cfg.History.Enabled || historyDir != "" {
		s, err := history.OpenBadgerStore(historyDir)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.history = s
	}
	return env, nil
}

func (e *advisorEnv) newAdvisor(param advisor.Parameter) *advisor.Advisor {
	var opts []advisor.Option
	if e.cache != nil {
		opts = append(opts, advisor.WithCache(e.cache))
	}
	if e.history != nil {
		opts = append(opts, advisor.WithHistory(e.history))
	}
	return advisor.NewAdvisor(param, opts...)
}

func (e *advisorEnv) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
	if e.history != nil {
		if err := e.history.Close(); err != nil {
			utils.Warningf("close history store: %v", err)
		}
	}
}

// FormatOptimizationResult renders one optimization result as a report.
func FormatOptimizationResult(q utils.Query, r *advisor.OptimizationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alias: %v\n", q.Alias)
	fmt.Fprintf(&b, "Fingerprint: %v\n", r.Fingerprint)
	fmt.Fprintf(&b, "SQL:\n%v\n\n", q.Text)
	if r.Cached {
		b.WriteString("(cached result)\n")
	}
	fmt.Fprintf(&b, "Rows: %v\n", r.BeforeRows)
	fmt.Fprintf(&b, "Execution Time: %v\n", r.BeforeTiming)

	b.WriteString("\n------------------ plan ------------------\n")
	if r.Plan.Empty() {
		b.WriteString("(no plan)\n")
	} else {
		fmt.Fprintf(&b, "%v\n%v", r.Plan.Mode, r.Plan.Format())
	}

	b.WriteString("\n------------------ analysis --------------\n")
	b.WriteString(r.Explanation)
	b.WriteString("\n")

	if r.SkipReason != "" {
		fmt.Fprintf(&b, "\nIndexes not applied: %v\n", r.SkipReason)
	}
	if len(r.CreatedIndexes) > 0 {
		b.WriteString("\n------------------ indexes ---------------\n")
		rows := make([][]string, 0, len(r.CreatedIndexes))
		for _, c := range r.CreatedIndexes {
			errMsg := ""
			if c.Err != nil {
				errMsg = c.Err.Error()
			}
			rows = append(rows, []string{c.Index.IndexName, string(c.Status), c.DDL, errMsg})
		}
		b.WriteString(utils.FormatTable([]string{"INDEX", "STATUS", "DDL", "ERROR"}, rows))
	}
	if r.AfterTime != nil {
		fmt.Fprintf(&b, "\nRows After: %v\n", *r.AfterRows)
		fmt.Fprintf(&b, "Execution Time After: %v\n", *r.AfterTime)
	}
	if v := r.Validation; v != nil {
		decision := "rolled back"
		if v.Kept {
			decision = "kept"
		}
		fmt.Fprintf(&b, "Improvement: %.2f%% (measured %v), indexes %v: %v\n", v.Improvement*100, v.MeasuredAfter, decision, v.Reason)
	}
	return b.String()
}

// PrintAndSaveOptimizationResult prints the report and, when savePath is set,
// saves it with the DDL of the kept indexes and the annotated query.
func PrintAndSaveOptimizationResult(savePath string, q utils.Query, r *advisor.OptimizationResult) error {
	report := FormatOptimizationResult(q, r)
	fmt.Printf("===================== %v =====================\n", q.Alias)
	fmt.Println(report)
	if savePath == "" {
		return nil
	}
	dir := path.Join(savePath, q.Alias)
	if err := utils.SaveContentTo(path.Join(dir, "report.txt"), report); err != nil {
		return err
	}
	var ddl strings.Builder
	for _, c := range r.CreatedIndexes {
		if c.Status == advisor.IndexKept {
			ddl.WriteString(c.DDL + "\n")
		}
	}
	if err := utils.SaveContentTo(path.Join(dir, "ddl.sql"), ddl.String()); err != nil {
		return err
	}
	return utils.SaveContentTo(path.Join(dir, "query.sql"), advisor.AnnotateQuery(q.Text, r.Suggestions)+";\n")
}
