package domain

import (
	"errors"
	"time"
)

// Result is the classification state of an analysis job.
type Result string

const (
	ResultPending Result = "pending"
	ResultCovid   Result = "covid"
	ResultH5N1    Result = "h5n1"
	ResultHealthy Result = "healthy"
	ResultFailed  Result = "failed"
)

// Results lists every result in the order summaries report them.
var Results = []Result{ResultPending, ResultCovid, ResultH5N1, ResultHealthy, ResultFailed}

// TimestampLayout is ISO-8601 UTC with fixed-width microseconds and a literal
// Z, so stored timestamps sort lexically in chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var (
	// ErrJobNotFound is returned when no job has the requested id
	ErrJobNotFound = errors.New("analysis job not found")

	// ErrLabNotFound is returned when a lab id is not in the reference set
	ErrLabNotFound = errors.New("lab not found")

	// ErrJobConflict is returned when a job id is already taken
	ErrJobConflict = errors.New("analysis job already exists")
)

// ResultCounts holds per-result job counts for a lab.
type ResultCounts struct {
	Pending int `db:"pending"`
	Covid   int `db:"covid"`
	H5N1    int `db:"h5n1"`
	Healthy int `db:"healthy"`
	Failed  int `db:"failed"`
	Urgent  int `db:"urgent"`
}

// Add counts one job.
func (c *ResultCounts) Add(result Result, urgent bool) {
	switch result {
	case ResultPending:
		c.Pending++
	case ResultCovid:
		c.Covid++
	case ResultH5N1:
		c.H5N1++
	case ResultHealthy:
		c.Healthy++
	case ResultFailed:
		c.Failed++
	}
	if urgent {
		c.Urgent++
	}
}
