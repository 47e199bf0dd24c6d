package slurmsched

import (
	"errors"
	"fmt"
)

// Kind tags the category of a SchedulerError.
type Kind int

// Error kinds. See spec §7.
const (
	// KindSubmissionFailure means sbatch's stdout could not be parsed for a job id.
	KindSubmissionFailure Kind = iota
	// KindCommandFailure means a strict command returned a non-zero exit status.
	KindCommandFailure
	// KindCommandTimeout means a command exceeded its configured timeout.
	KindCommandTimeout
	// KindNodeQueryFailure means scontrol output was missing an expected field.
	KindNodeQueryFailure
	// KindJobBlocked means a pending-reason was judged unrecoverable and the job was cancelled.
	KindJobBlocked
	// KindTimedOut means max_pending_time elapsed and the job was cancelled.
	KindTimedOut
)

func (k Kind) String() string {
	switch k {
	case KindSubmissionFailure:
		return "submission_failure"
	case KindCommandFailure:
		return "command_failure"
	case KindCommandTimeout:
		return "command_timeout"
	case KindNodeQueryFailure:
		return "node_query_failure"
	case KindJobBlocked:
		return "job_blocked"
	case KindTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind, so callers can errors.Is against the kind
// without reaching into SchedulerError fields.
var (
	ErrSubmissionFailure = errors.New("submission failure")
	ErrCommandFailure    = errors.New("command failure")
	ErrCommandTimeout    = errors.New("command timeout")
	ErrNodeQueryFailure  = errors.New("node query failure")
	ErrJobBlocked        = errors.New("job blocked")
	ErrTimedOut          = errors.New("maximum pending time exceeded")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindSubmissionFailure:
		return ErrSubmissionFailure
	case KindCommandFailure:
		return ErrCommandFailure
	case KindCommandTimeout:
		return ErrCommandTimeout
	case KindNodeQueryFailure:
		return ErrNodeQueryFailure
	case KindJobBlocked:
		return ErrJobBlocked
	case KindTimedOut:
		return ErrTimedOut
	default:
		return nil
	}
}

// SchedulerError is the tagged error type returned by this package's
// operations. It carries the job id (when applicable) and the kind so that
// callers can branch on errors.As while errors.Is still matches the plain
// sentinel.
type SchedulerError struct {
	Kind   Kind
	JobID  int
	Reason string
	Err    error
}

func (e *SchedulerError) Error() string {
	msg := sentinelFor(e.Kind).Error()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}

	if e.JobID != 0 {
		msg = fmt.Sprintf("%s (jobid=%d)", msg, e.JobID)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *SchedulerError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(sentinelFor(e.Kind), e.Err)
	}

	return sentinelFor(e.Kind)
}

func newError(kind Kind, jobID int, reason string, cause error) *SchedulerError {
	return &SchedulerError{Kind: kind, JobID: jobID, Reason: reason, Err: cause}
}
