package slurmsched

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// squeueDelay rate-limits squeue polling: squeue reflects very recent
// submissions unreliably, so Poll waits out the remainder of this delay
// (measured from the most recently submitted job in the batch) before
// querying.
const squeueDelay = 2 * time.Second

var squeueLinePatt = regexp.MustCompile(
	`^(?P<jobid>\d+(?:_\d+)?)\|(?P<state>\S+)\|(?P<nodespec>\S*)\|(?P<reason>.+)$`,
)

// SqueueBackend polls job state via squeue instead of sacct. squeue shows
// only still-queued or still-running jobs, so a job's disappearance from
// its output is the only signal of completion; this backend then
// synthesizes a terminal state for it (spec §6).
type SqueueBackend struct {
	*SacctBackend

	cancelled map[*Job]bool
}

// NewSqueueBackend builds a squeue-polling backend around runner.
func NewSqueueBackend(runner Runner, cfg Config, logger *slog.Logger) *SqueueBackend {
	b := &SqueueBackend{
		SacctBackend: NewSacctBackend(runner, cfg, logger),
		cancelled:    make(map[*Job]bool),
	}
	b.SacctBackend.doCancel = b.Cancel
	b.SacctBackend.doPoll = b.Poll

	return b
}

// CompletionTime is not retrievable through squeue.
func (b *SqueueBackend) CompletionTime(ctx context.Context, job *Job) (*float64, error) {
	return nil, nil
}

// Poll queries squeue for jobs, rate-limited by squeueDelay, and
// synthesizes CANCELLED/COMPLETED for any job squeue no longer reports.
func (b *SqueueBackend) Poll(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	var latestSubmit time.Time

	jobIDs := make([]string, len(jobs))

	for i, job := range jobs {
		jobIDs[i] = strconv.Itoa(job.JobID)

		st := b.bk.get(job)
		if st.submitTime.After(latestSubmit) {
			latestSubmit = st.submitTime
		}
	}

	if remaining := squeueDelay - b.now().Sub(latestSubmit); remaining > 0 {
		b.sleep(remaining)
	}

	out, err := b.runner.Squeue(ctx, jobIDs)
	if err != nil {
		return newError(KindCommandFailure, 0, "squeue failed", err)
	}

	byBaseID := make(map[int][]string)
	reasonsByBaseID := make(map[int][]string)
	nodespecByBaseID := make(map[int]string)

	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		m := squeueLinePatt.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		baseID, err := strconv.Atoi(strings.SplitN(m[1], "_", 2)[0])
		if err != nil {
			continue
		}

		byBaseID[baseID] = append(byBaseID[baseID], m[2])
		reasonsByBaseID[baseID] = append(reasonsByBaseID[baseID], m[4])
		nodespecByBaseID[baseID] = m[3]
	}

	for _, job := range jobs {
		states, seen := byBaseID[job.JobID]

		if !seen {
			if b.cancelled[job] {
				job.State = "CANCELLED"
			} else {
				job.State = "COMPLETED"
				// squeue carries no exit code once a job has left its
				// view; assume success rather than leave a stale value.
				job.ExitCode = 0
			}

			continue
		}

		job.State = strings.Join(states, ",")

		if err := b.setNodelist(ctx, job, nodespecByBaseID[job.JobID]); err != nil {
			b.logger.Debug("could not resolve job nodelist", "jobid", job.JobID, "err", err)
		}

		st := b.bk.get(job)
		if st.isCancelling || pending(job.State) {
			continue
		}

		for _, reason := range reasonsByBaseID[job.JobID] {
			if err := b.checkAndCancel(ctx, job, reason); err != nil {
				job.Exception = err
			}
		}
	}

	return nil
}

// Cancel runs scancel and additionally remembers job as explicitly
// cancelled, since squeue cannot distinguish a completed job from a
// cancelled one once it has left its view.
func (b *SqueueBackend) Cancel(ctx context.Context, job *Job) error {
	if err := b.SacctBackend.Cancel(ctx, job); err != nil {
		return err
	}

	b.cancelled[job] = true

	return nil
}
