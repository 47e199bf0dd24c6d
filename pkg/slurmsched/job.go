package slurmsched

import (
	"time"

	"github.com/google/uuid"
)

// Job describes a single batch submission. It is owned by the client; the
// backends only ever hold it by pointer and never copy it, since pointer
// identity is the key used by the per-backend bookkeeping side tables.
type Job struct {
	Name           string
	ScriptFilename string
	Workdir        string
	Stdout         string
	Stderr         string

	NumTasks          *int
	NumTasksPerNode   *int
	NumTasksPerCore   *int
	NumTasksPerSocket *int
	NumCPUsPerTask    *int

	SchedPartition       string
	SchedAccount         string
	SchedNodelist        string
	SchedExcludeNodelist string
	SchedReservation     string
	SchedExclusiveAccess *bool
	SchedAccess          []string
	UseSMT               *bool

	TimeLimit       *time.Duration
	MaxPendingTime  *time.Duration

	// Options is the ordered list of raw additional directives. The last
	// "-C"/"--constraint" value here is joined with "&" after the last one
	// found in SchedAccess (see preamble.go).
	Options []string

	// Result fields, mutated only by the backend that owns this job.
	JobID     int
	State     string
	ExitCode  int
	Nodelist  []string
	Exception error

	completionTime *float64
	uuid           string
}

// UUID returns a stable identifier for this job, generated lazily on first
// use and independent of the Slurm-assigned JobID (which does not exist
// until after a successful submit). It exists purely for log correlation
// across the pre-submit and post-submit phases of a job's life.
func (j *Job) UUID() string {
	if j.uuid == "" {
		j.uuid = uuid.NewString()
	}

	return j.uuid
}
