package advisor

import (
	"context"
	"fmt"

	"github.com/qw4990/sql_advisor/database"
	"github.com/qw4990/sql_advisor/utils"
)

// EvaluateIndexes applies the given `CREATE INDEX` statements instead of the
// suggested ones and validates them the way Optimize validates suggestions.
// Statements that cannot be parsed are reported as failed and never executed.
func (a *Advisor) EvaluateIndexes(ctx context.Context, conn database.Connection, query string, ddls []string) (*OptimizationResult, error) {
	r, err := a.analyze(ctx, conn, query, true)
	if err != nil {
		return nil, err
	}

	var candidates []CreatedIndex
	for _, ddl := range ddls {
		idx, err := utils.ParseCreateIndexStmt(ddl)
		if err != nil {
			utils.Warningf("skip %v: %v", ddl, err)
			r.CreatedIndexes = append(r.CreatedIndexes, CreatedIndex{
				DDL:    ddl,
				Status: IndexFailed,
				Err:    &IndexCreationError{DDL: ddl, Err: err},
			})
			r.AppliedIndexes = append(r.AppliedIndexes, fmt.Sprintf("Failed: %v (%v)", ddl, err))
			continue
		}
		candidates = append(candidates, CreatedIndex{Index: idx, DDL: ddl})
	}

	if err := a.applyAndValidate(ctx, conn, r, candidates); err != nil {
		return nil, err
	}
	return a.finish(r, true), nil
}

// EvaluateIndexes evaluates the statements with the default parameters.
func EvaluateIndexes(ctx context.Context, conn database.Connection, query string, ddls []string) (*OptimizationResult, error) {
	return NewAdvisor(DefaultParameter()).EvaluateIndexes(ctx, conn, query, ddls)
}
