package advisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qw4990/sql_advisor/database"
	"github.com/qw4990/sql_advisor/history"
	"github.com/qw4990/sql_advisor/utils"
)

// State is a step of one optimization run.
type State int

const (
	StateIdle State = iota
	StateBaselineMeasured
	StatePlanAnalyzed
	StateSuggestionsComputed
	StateAppliedPending
	StateValidated
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBaselineMeasured:
		return "BaselineMeasured"
	case StatePlanAnalyzed:
		return "PlanAnalyzed"
	case StateSuggestionsComputed:
		return "SuggestionsComputed"
	case StateAppliedPending:
		return "AppliedPending"
	case StateValidated:
		return "Validated"
	case StateDone:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IndexStatus is what happened to one index an optimization run tried to create.
type IndexStatus string

const (
	IndexCreated       IndexStatus = "created"
	IndexKept          IndexStatus = "kept"
	IndexDropped       IndexStatus = "dropped"
	IndexFailed        IndexStatus = "failed"
	IndexAlreadyExists IndexStatus = "already-exists"
	IndexDropFailed    IndexStatus = "drop-failed"

	// IndexRedundant marks a candidate that is a prefix of an index already
	// present after this run; it is never executed.
	IndexRedundant IndexStatus = "redundant"
)

// CreatedIndex reports one `CREATE INDEX` attempt.
type CreatedIndex struct {
	Index  utils.Index
	DDL    string
	Status IndexStatus
	Err    error
}

// Validation is the keep-or-drop decision taken after re-measuring the query.
// A failed validation is a result, never an error.
type Validation struct {
	Improvement   float64       // (before - after) / before on median timings
	Threshold     float64       // the required improvement
	Kept          bool          // false means the created indexes were dropped
	Reason        string        // human readable justification of the decision
	MeasuredAfter time.Duration // the measured median, even when the baseline is reported
}

// OptimizationResult is the outcome of one optimization run.
// The After* fields are nil unless indexes were applied.
type OptimizationResult struct {
	RunID       string
	Query       string
	Fingerprint string

	BeforeRows   int64
	BeforeTime   time.Duration // median of BeforeTiming
	BeforeTiming Timing

	Plan    Plan
	PlanErr error // set when no EXPLAIN form worked
	Issues  []string

	Suggestions      []string // DDL of SuggestedIndexes
	SuggestedIndexes []IndexSuggestion
	Explanation      string

	AfterRows   *int64
	AfterTime   *time.Duration
	AfterTiming *Timing

	// AppliedIndexes lists the DDL that succeeded, followed in execution
	// order by "Failed: <ddl> (<error>)" markers for the DDL that did not.
	AppliedIndexes []string
	CreatedIndexes []CreatedIndex
	Validation     *Validation
	SkipReason     string // why indexes were not applied although asked to

	Cached bool // served from the result cache
	Trace  []State
}

// KeptIndexes returns the names of the created indexes left in place.
func (r *OptimizationResult) KeptIndexes() []string {
	return r.indexesWithStatus(IndexKept)
}

// DroppedIndexes returns the names of the created indexes dropped again.
func (r *OptimizationResult) DroppedIndexes() []string {
	return r.indexesWithStatus(IndexDropped, IndexDropFailed)
}

func (r *OptimizationResult) indexesWithStatus(status ...IndexStatus) []string {
	var names []string
	for _, c := range r.CreatedIndexes {
		if slices.Contains(status, c.Status) {
			names = append(names, c.Index.IndexName)
		}
	}
	return names
}

// Improvement returns the measured relative improvement, 0 when nothing was applied.
func (r *OptimizationResult) Improvement() float64 {
	if r.Validation != nil {
		return r.Validation.Improvement
	}
	if r.AfterTime == nil {
		return 0
	}
	return Improvement(r.BeforeTime, *r.AfterTime)
}

func (r *OptimizationResult) enter(s State) {
	utils.Debugf("optimization %v: %v", r.RunID, s)
	r.Trace = append(r.Trace, s)
}

func (r *OptimizationResult) clone() *OptimizationResult {
	c := *r
	c.BeforeTiming = Timing{Runs: slices.Clone(r.BeforeTiming.Runs)}
	c.Plan = r.Plan.clone()
	c.Issues = slices.Clone(r.Issues)
	c.Suggestions = slices.Clone(r.Suggestions)
	c.SuggestedIndexes = slices.Clone(r.SuggestedIndexes)
	for i := range c.SuggestedIndexes {
		c.SuggestedIndexes[i].Index.Columns = slices.Clone(c.SuggestedIndexes[i].Index.Columns)
	}
	if r.AfterRows != nil {
		rows := *r.AfterRows
		c.AfterRows = &rows
	}
	if r.AfterTime != nil {
		d := *r.AfterTime
		c.AfterTime = &d
	}
	if r.AfterTiming != nil {
		c.AfterTiming = &Timing{Runs: slices.Clone(r.AfterTiming.Runs)}
	}
	c.AppliedIndexes = slices.Clone(r.AppliedIndexes)
	c.CreatedIndexes = slices.Clone(r.CreatedIndexes)
	for i := range c.CreatedIndexes {
		c.CreatedIndexes[i].Index.Columns = slices.Clone(c.CreatedIndexes[i].Index.Columns)
	}
	c.Trace = slices.Clone(r.Trace)
	if r.Validation != nil {
		v := *r.Validation
		c.Validation = &v
	}
	return &c
}

// ResultCache holds read-only optimization results by query fingerprint.
type ResultCache interface {
	Get(fingerprint string) (*OptimizationResult, bool)
	Set(fingerprint string, r *OptimizationResult) bool
	Clear()
}

// Advisor runs optimization passes with fixed parameters.
// One Advisor may serve many connections, but a connection must not be
// used by two passes at the same time.
type Advisor struct {
	param   Parameter
	cache   ResultCache
	history history.Store
	now     func() time.Time
}

// Option configures an Advisor.
type Option func(a *Advisor)

// WithCache serves read-only passes from the cache.
func WithCache(c ResultCache) Option {
	return func(a *Advisor) { a.cache = c }
}

// WithHistory records every completed pass in the store.
func WithHistory(s history.Store) Option {
	return func(a *Advisor) { a.history = s }
}

// WithClock replaces time.Now for measurements and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Advisor) { a.now = now }
}

// NewAdvisor creates an Advisor. Out of range parameters are clamped.
func NewAdvisor(param Parameter, opts ...Option) *Advisor {
	a := &Advisor{param: validateParameter(param), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Parameter returns the effective parameters.
func (a *Advisor) Parameter() Parameter {
	return a.param
}

// OptimizeOnce runs one optimization pass with the default parameters.
func OptimizeOnce(ctx context.Context, conn database.Connection, query string, applyChanges bool) (*OptimizationResult, error) {
	return NewAdvisor(DefaultParameter()).Optimize(ctx, conn, query, applyChanges)
}

// Optimize measures the query, analyzes its plan and suggests indexes.
// With applyChanges it also creates the suggested indexes, measures the query
// again and drops the indexes when the improvement is below MinImprovement.
//
// Only connectivity loss and failures of the query itself are returned as
// errors. EXPLAIN and index creation failures are reported in the result.
func (a *Advisor) Optimize(ctx context.Context, conn database.Connection, query string, applyChanges bool) (*OptimizationResult, error) {
	r, err := a.analyze(ctx, conn, query, applyChanges)
	if err != nil || r.Cached {
		return r, err
	}
	if applyChanges {
		candidates := make([]CreatedIndex, 0, len(r.SuggestedIndexes))
		for _, s := range r.SuggestedIndexes {
			candidates = append(candidates, CreatedIndex{Index: s.Index, DDL: s.DDL()})
		}
		if err := a.applyAndValidate(ctx, conn, r, candidates); err != nil {
			return nil, err
		}
	}
	return a.finish(r, applyChanges), nil
}

// analyze runs the read-only part of a pass: baseline, plan and suggestions.
func (a *Advisor) analyze(ctx context.Context, conn database.Connection, query string, applyChanges bool) (*OptimizationResult, error) {
	fingerprint := utils.Fingerprint(query)
	if !applyChanges && a.cache != nil {
		if cached, ok := a.cache.Get(fingerprint); ok {
			utils.Debugf("optimization result of %v served from cache", fingerprint)
			r := cached.clone()
			r.Cached = true
			return r, nil
		}
	}

	r := &OptimizationResult{RunID: uuid.NewString(), Query: query, Fingerprint: fingerprint}
	r.enter(StateIdle)

	rows, timing, err := a.measure(ctx, conn, query)
	if err != nil {
		return nil, err
	}
	r.BeforeRows, r.BeforeTiming, r.BeforeTime = rows, timing, timing.Median()
	utils.Debugf("baseline: %v rows, %v", rows, timing)
	r.enter(StateBaselineMeasured)

	plan, err := RunExplain(ctx, conn, query)
	if err != nil {
		if database.IsConnectivityError(err) {
			return nil, asConnectivityError(conn, err)
		}
		utils.Warningf("%v", err)
		r.PlanErr = err
		r.Issues = []string{err.Error()}
	} else {
		r.Plan = plan
		r.Issues = DetectPlanIssues(plan)
	}
	r.enter(StatePlanAnalyzed)

	knownTables := a.knownTables(ctx, conn)
	r.SuggestedIndexes = SynthesizeIndexes(ExtractColumnsWithTables(query, knownTables), a.param, knownTables)
	r.Suggestions = SuggestionDDLs(r.SuggestedIndexes)
	r.Explanation = Explain(r.Issues, r.Suggestions)
	r.enter(StateSuggestionsComputed)
	return r, nil
}

func (a *Advisor) knownTables(ctx context.Context, conn database.Connection) []string {
	if !a.param.ValidateTables {
		return nil
	}
	tables, err := conn.ListTables(ctx)
	if err != nil {
		utils.Warningf("cannot list tables, suggestions are not validated: %v", err)
		return nil
	}
	return tables
}

// applyAndValidate creates the candidates, re-measures the query and keeps
// or drops the created indexes.
func (a *Advisor) applyAndValidate(ctx context.Context, conn database.Connection, r *OptimizationResult, candidates []CreatedIndex) error {
	if a.param.FastQueryThreshold > 0 && r.BeforeTime < a.param.FastQueryThreshold {
		r.SkipReason = fmt.Sprintf("baseline %v is already below the fast query threshold %v", r.BeforeTime, a.param.FastQueryThreshold)
		utils.Infof("skip applying indexes: %v", r.SkipReason)
		return nil
	}

	r.enter(StateAppliedPending)
	if err := a.applyIndexes(ctx, conn, r, candidates); err != nil {
		return err
	}

	rows, timing, err := a.measure(ctx, conn, r.Query)
	if err != nil {
		utils.Warningf("re-measurement failed, dropping created indexes: %v", err)
		if dropErr := a.dropCreated(ctx, conn, r); dropErr != nil {
			return errors.Join(err, dropErr)
		}
		return err
	}
	after := timing.Median()
	r.AfterRows, r.AfterTime, r.AfterTiming = &rows, &after, &timing
	utils.Debugf("after applying indexes: %v rows, %v", rows, timing)

	if err := a.validate(ctx, conn, r); err != nil {
		return err
	}
	r.enter(StateValidated)
	return nil
}

// applyIndexes executes every `CREATE INDEX` candidate and commits once.
// A failing statement is recorded and the loop goes on.
func (a *Advisor) applyIndexes(ctx context.Context, conn database.Connection, r *OptimizationResult, candidates []CreatedIndex) error {
	var present []utils.Index
	for _, c := range candidates {
		if !isCreateIndex(c.DDL) {
			utils.Debugf("skip %v: not a CREATE INDEX statement", c.DDL)
			continue
		}
		if covering, ok := coveringIndex(present, c.Index); ok {
			c.Status = IndexRedundant
			utils.Infof("skip %v: %v already covers %v", c.Index.IndexName, covering.IndexName, c.Index.Key())
			r.CreatedIndexes = append(r.CreatedIndexes, c)
			continue
		}
		err := conn.CreateIndex(ctx, c.DDL)
		switch {
		case err == nil:
			c.Status = IndexCreated
			r.AppliedIndexes = append(r.AppliedIndexes, c.DDL)
			present = append(present, c.Index)
		case conn.Dialect().IsDuplicateIndex(err):
			c.Status = IndexAlreadyExists
			present = append(present, c.Index)
			utils.Warningf("index %v already exists, leave it as is", c.Index.IndexName)
		case database.IsConnectivityError(err):
			return asConnectivityError(conn, err)
		default:
			c.Status = IndexFailed
			c.Err = &IndexCreationError{DDL: c.DDL, Err: err}
			r.AppliedIndexes = append(r.AppliedIndexes, fmt.Sprintf("Failed: %v (%v)", c.DDL, err))
			utils.Warningf("%v", c.Err)
		}
		r.CreatedIndexes = append(r.CreatedIndexes, c)
	}
	return a.commit(ctx, conn)
}

// coveringIndex returns the first index of present that has idx as a prefix.
func coveringIndex(present []utils.Index, idx utils.Index) (utils.Index, bool) {
	if len(idx.Columns) == 0 {
		return utils.Index{}, false
	}
	for _, p := range present {
		if p.PrefixContain(idx) {
			return p, true
		}
	}
	return utils.Index{}, false
}

func (a *Advisor) validate(ctx context.Context, conn database.Connection, r *OptimizationResult) error {
	v := &Validation{
		Improvement:   Improvement(r.BeforeTime, *r.AfterTime),
		Threshold:     a.param.MinImprovement,
		MeasuredAfter: *r.AfterTime,
	}
	r.Validation = v
	created := r.indexesWithStatus(IndexCreated)
	switch {
	case len(created) == 0:
		v.Reason = "no index was created"
		return nil
	case !a.param.Validate:
		v.Kept = true
		v.Reason = "validation disabled"
	case v.Improvement >= v.Threshold:
		v.Kept = true
		v.Reason = fmt.Sprintf("improvement %.1f%% reaches the %.1f%% threshold", v.Improvement*100, v.Threshold*100)
	default:
		v.Reason = fmt.Sprintf("improvement %.1f%% is below the %.1f%% threshold", v.Improvement*100, v.Threshold*100)
		utils.Infof("rolling back %v: %v", strings.Join(created, ", "), v.Reason)
		if err := a.dropCreated(ctx, conn, r); err != nil {
			return err
		}
		// the schema is back to the baseline, so are the reported numbers
		rows, before, timing := r.BeforeRows, r.BeforeTime, r.BeforeTiming
		r.AfterRows, r.AfterTime, r.AfterTiming = &rows, &before, &timing
		return nil
	}
	for i := range r.CreatedIndexes {
		if r.CreatedIndexes[i].Status == IndexCreated {
			r.CreatedIndexes[i].Status = IndexKept
		}
	}
	utils.Infof("keeping %v: %v", strings.Join(created, ", "), v.Reason)
	if a.cache != nil {
		a.cache.Clear()
	}
	return nil
}

// dropCreated drops every index this pass created and commits.
// Only a lost connection is returned as an error.
func (a *Advisor) dropCreated(ctx context.Context, conn database.Connection, r *OptimizationResult) error {
	for i := range r.CreatedIndexes {
		c := &r.CreatedIndexes[i]
		if c.Status != IndexCreated {
			continue
		}
		if err := conn.DropIndex(ctx, c.Index.TableName, c.Index.IndexName); err != nil {
			c.Status, c.Err = IndexDropFailed, err
			utils.Errorf("drop index %v on %v: %v", c.Index.IndexName, c.Index.TableName, err)
			if database.IsConnectivityError(err) {
				return asConnectivityError(conn, err)
			}
			continue
		}
		c.Status = IndexDropped
	}
	return a.commit(ctx, conn)
}

func (a *Advisor) commit(ctx context.Context, conn database.Connection) error {
	if err := conn.Commit(ctx); err != nil {
		if database.IsConnectivityError(err) {
			return asConnectivityError(conn, err)
		}
		utils.Warningf("commit: %v", err)
	}
	return nil
}

// finish records a completed pass and moves it to Done.
func (a *Advisor) finish(r *OptimizationResult, applyChanges bool) *OptimizationResult {
	r.enter(StateDone)
	if !applyChanges && a.cache != nil {
		a.cache.Set(r.Fingerprint, r.clone())
	}
	if a.history != nil {
		if err := a.history.Record(a.historyEntry(r)); err != nil {
			utils.Warningf("record history of %v: %v", r.RunID, err)
		}
	}
	return r
}

func (a *Advisor) historyEntry(r *OptimizationResult) history.Entry {
	e := history.Entry{
		RunID:          r.RunID,
		Fingerprint:    r.Fingerprint,
		Query:          r.Query,
		Timestamp:      a.now(),
		Applied:        r.AfterTime != nil,
		BeforeTime:     r.BeforeTime,
		Improvement:    r.Improvement(),
		Issues:         r.Issues,
		Suggestions:    r.Suggestions,
		DroppedIndexes: r.DroppedIndexes(),
	}
	if r.Validation != nil {
		e.AfterTime = r.Validation.MeasuredAfter
		e.Kept = r.Validation.Kept
	}
	for _, c := range r.CreatedIndexes {
		switch c.Status {
		case IndexKept, IndexDropped, IndexDropFailed, IndexCreated:
			e.CreatedIndexes = append(e.CreatedIndexes, c.Index.IndexName)
		}
	}
	return e
}

func isCreateIndex(ddl string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(ddl)), "CREATE INDEX")
}

func asConnectivityError(conn database.Connection, err error) error {
	var connErr *database.ConnectivityError
	if errors.As(err, &connErr) {
		return err
	}
	return &database.ConnectivityError{Driver: conn.Dialect().Name(), Err: err}
}
