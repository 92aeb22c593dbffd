package advisor

import (
	"fmt"
	"strings"
)

// QueryExecutionError means the query under analysis failed to run.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// PlanUnavailableError means every EXPLAIN form failed for the query.
type PlanUnavailableError struct {
	Query    string
	Attempts []error // one per EXPLAIN prefix, in the order they were tried
}

func (e *PlanUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "EXPLAIN failed: no EXPLAIN form available"
	}
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return "EXPLAIN failed: " + strings.Join(msgs, "; ")
}

func (e *PlanUnavailableError) Unwrap() []error {
	return e.Attempts
}

// IndexCreationError means one `CREATE INDEX` statement failed.
type IndexCreationError struct {
	DDL string
	Err error
}

func (e *IndexCreationError) Error() string {
	return fmt.Sprintf("create index failed: %v (%v)", e.DDL, e.Err)
}

func (e *IndexCreationError) Unwrap() error {
	return e.Err
}
