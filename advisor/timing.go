package advisor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/qw4990/sql_advisor/database"
	"github.com/qw4990/sql_advisor/utils"
)

// Timing holds the elapsed time of every run of one measurement.
type Timing struct {
	Runs []time.Duration
}

// Median returns the median run, the mean of the two middle runs for an even count.
func (t Timing) Median() time.Duration {
	if len(t.Runs) == 0 {
		return 0
	}
	sorted := slices.Clone(t.Runs)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Mean returns the average run.
func (t Timing) Mean() time.Duration {
	if len(t.Runs) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range t.Runs {
		total += d
	}
	return total / time.Duration(len(t.Runs))
}

// Min returns the fastest run.
func (t Timing) Min() time.Duration {
	if len(t.Runs) == 0 {
		return 0
	}
	return slices.Min(t.Runs)
}

// Max returns the slowest run.
func (t Timing) Max() time.Duration {
	if len(t.Runs) == 0 {
		return 0
	}
	return slices.Max(t.Runs)
}

func (t Timing) String() string {
	if len(t.Runs) == 1 {
		return t.Runs[0].String()
	}
	return fmt.Sprintf("median %v, mean %v, min %v, max %v (%d runs)", t.Median(), t.Mean(), t.Min(), t.Max(), len(t.Runs))
}

// Improvement returns the relative improvement (before - after) / before.
// It is 0 when before is 0 and negative when after is slower.
func Improvement(before, after time.Duration) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before)
}

// measure executes the query param.Runs times and returns the row count of
// the last run with the timing of all runs. Only the execution is timed.
func (a *Advisor) measure(ctx context.Context, conn database.Connection, query string) (int64, Timing, error) {
	var timing Timing
	var rows int64
	for i := 0; i < a.param.Runs; i++ {
		if a.param.ClearCache {
			if err := conn.ResetCaches(ctx); err != nil {
				if database.IsConnectivityError(err) {
					return 0, timing, asConnectivityError(conn, err)
				}
				utils.Debugf("reset caches: %v", err)
			}
		}
		start := a.now()
		res, err := conn.ExecuteQuery(ctx, query)
		elapsed := a.now().Sub(start)
		if err != nil {
			if database.IsConnectivityError(err) {
				return 0, timing, asConnectivityError(conn, err)
			}
			return 0, timing, &QueryExecutionError{Query: query, Err: err}
		}
		rows = res.RowCount
		timing.Runs = append(timing.Runs, elapsed)
		utils.Debugf("run %d/%d: %v rows in %v", i+1, a.param.Runs, rows, elapsed)
	}
	return rows, timing, nil
}
