package advisor

import (
	"time"

	"github.com/qw4990/sql_advisor/utils"
)

// Parameter is the input parameters of the advisor.
type Parameter struct {
	MaxSuggestions     int           // the max number of index suggestions of one pass
	MinImprovement     float64       // the relative improvement required to keep created indexes
	Runs               int           // executions per measurement, the median is reported
	Validate           bool          // drop created indexes when the improvement is below MinImprovement
	FastQueryThreshold time.Duration // skip applying indexes when the baseline is faster, 0 disables it
	ClearCache         bool          // ask the server to drop its caches before every timed run
	AllowComposite     bool          // suggest a composite WHERE + ORDER BY index
	ValidateTables     bool          // check resolved tables against the tables of the database
}

// DefaultParameter returns the default parameters.
func DefaultParameter() Parameter {
	return Parameter{
		MaxSuggestions: 5,
		MinImprovement: 0.10,
		Runs:           1,
		Validate:       true,
		AllowComposite: true,
		ValidateTables: true,
	}
}

func validateParameter(p Parameter) Parameter {
	if p.MaxSuggestions < 1 {
		utils.Warningf("max number of suggestions should be at least 1, set from %v to 1", p.MaxSuggestions)
		p.MaxSuggestions = 1
	}
	if p.MaxSuggestions > 10 {
		utils.Warningf("max number of suggestions should be at most 10, set from %v to 10", p.MaxSuggestions)
		p.MaxSuggestions = 10
	}
	if p.MinImprovement < 0 {
		utils.Warningf("min improvement should be at least 0, set from %v to 0", p.MinImprovement)
		p.MinImprovement = 0
	}
	if p.MinImprovement > 1 {
		utils.Warningf("min improvement should be at most 1, set from %v to 1", p.MinImprovement)
		p.MinImprovement = 1
	}
	if p.Runs < 1 {
		utils.Warningf("number of runs should be at least 1, set from %v to 1", p.Runs)
		p.Runs = 1
	}
	if p.Runs > 100 {
		utils.Warningf("number of runs should be at most 100, set from %v to 100", p.Runs)
		p.Runs = 100
	}
	if p.FastQueryThreshold < 0 {
		utils.Warningf("fast query threshold should not be negative, set from %v to 0", p.FastQueryThreshold)
		p.FastQueryThreshold = 0
	}
	return p
}
