package slurmsched

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openregtest/slurmsched/internal/common"
)

// sacctQueueRatio is how many poll() calls happen, on average, for every
// squeue-based blocked-reason check; checking every call would hammer
// squeue needlessly for jobs that are simply running.
const sacctQueueRatio = 10

// waitIntervals cycles the back-off (in seconds) between poll() calls
// inside Wait.
var waitIntervals = []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}

// cancelReasons are squeue pending-reasons judged unrecoverable. A job
// found pending for one of these is cancelled rather than left to wait
// indefinitely.
var cancelReasons = []string{
	"FrontEndDown",
	"Licenses",
	"NodeDown",
	"PartitionDown",
	"PartitionInactive",
	"PartitionNodeLimit",
	"QOSJobLimit",
	"QOSResourceLimit",
	"QOSUsageThreshold",
	"ReqNodeNotAvail",
}

var sacctJobStatePatt = regexp.MustCompile(
	`^(?P<jobid>\d+(?:_\d+)?)\|(?P<state>[^|]+)\|(?P<exitcode>\d+):(?P<signal>\d+)\|(?P<nodespec>.*)$`,
)

// SacctBackend is the default scheduler backend, polling job state through
// sacct (spec §4, §6). SqueueBackend embeds it and overrides the methods
// that need squeue semantics instead.
type SacctBackend struct {
	runner Runner
	cfg    Config
	bk     *bookkeeping
	logger *slog.Logger

	// now and sleep are indirections over time.Now/time.Sleep so that
	// Wait's polling loop can be driven deterministically in tests.
	now   func() time.Time
	sleep func(time.Duration)

	// doCancel and doPoll are bound to b.Cancel/b.Poll by NewSacctBackend,
	// and rebound by NewSqueueBackend to its own overrides. Go embedding
	// does not give virtual dispatch, so internal callers that need the
	// overridden behavior (Wait, checkAndCancel, checkPendingTimeout) go
	// through these indirections rather than calling b.Cancel/b.Poll
	// directly.
	doCancel func(context.Context, *Job) error
	doPoll   func(context.Context, []*Job) error
}

// NewSacctBackend builds a sacct-polling backend around runner.
func NewSacctBackend(runner Runner, cfg Config, logger *slog.Logger) *SacctBackend {
	b := &SacctBackend{
		runner: runner,
		cfg:    cfg.withDefaults(),
		bk:     newBookkeeping(),
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	b.doCancel = b.Cancel
	b.doPoll = b.Poll

	return b
}

// Submit runs sbatch on job.ScriptFilename and records the assigned job id.
func (b *SacctBackend) Submit(ctx context.Context, job *Job) error {
	out, err := b.runner.Sbatch(ctx, job.ScriptFilename)
	if err != nil {
		return newError(KindCommandFailure, 0, "sbatch failed", err)
	}

	m := regexp.MustCompile(`Submitted batch job (\d+)`).FindStringSubmatch(out)
	if m == nil {
		return newError(KindSubmissionFailure, 0, "could not retrieve the job id of the submitted job", nil)
	}

	jobID, err := strconv.Atoi(m[1])
	if err != nil {
		return newError(KindSubmissionFailure, 0, "could not parse submitted job id", err)
	}

	job.JobID = jobID

	st := b.bk.get(job)
	st.submitTime = b.now()
	st.updateStateCount = 0

	return nil
}

// IsArray reports whether job was submitted with a job array option. It
// defers to the pure IsArray helper (preamble.go) and additionally caches
// the result per job, matching the memoised lookup the rest of this
// backend performs once a job id exists.
func (b *SacctBackend) IsArray(job *Job) bool {
	st := b.bk.get(job)
	if st.isJobArray == nil {
		v := IsArray(job)
		st.isJobArray = &v

		if v {
			b.logger.Debug("detected job array option", "jobid", job.JobID)
		}
	}

	return *st.isJobArray
}

// AllNodes returns every node known to the cluster.
func (b *SacctBackend) AllNodes(ctx context.Context) (NodeSet, error) {
	out, err := b.runner.ScontrolShowAllNodes(ctx)
	if err != nil {
		return nil, newError(KindNodeQueryFailure, 0, "could not retrieve node information", err)
	}

	return ParseNodes(out, b.logger), nil
}

// DefaultPartition returns the cluster's default partition, or "" if none
// is marked.
func (b *SacctBackend) DefaultPartition(ctx context.Context) (string, error) {
	return DefaultPartition(ctx, b.runner)
}

// FilterNodes narrows candidate to the nodes usable by job.
func (b *SacctBackend) FilterNodes(ctx context.Context, candidate NodeSet, job *Job) (NodeSet, error) {
	return FilterNodes(ctx, b.runner, candidate, job, b.logger)
}

// Poll updates the State, ExitCode and Nodelist of every job in jobs. Jobs
// not yet visible in the sacct output are left untouched.
func (b *SacctBackend) Poll(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	jobIDs := make([]string, len(jobs))

	var start time.Time

	for i, job := range jobs {
		jobIDs[i] = strconv.Itoa(job.JobID)

		st := b.bk.get(job)
		if start.IsZero() || st.submitTime.Before(start) {
			start = st.submitTime
		}
	}

	out, err := b.runner.Sacct(ctx, jobIDs, start)
	if err != nil {
		return newError(KindCommandFailure, 0, "sacct failed", err)
	}

	byBaseID := groupSacctLines(out)
	if len(byBaseID) == 0 {
		b.logger.Debug("job state not matched", "output", out)

		return nil
	}

	for _, job := range jobs {
		rows, ok := byBaseID[job.JobID]
		if !ok {
			continue
		}

		st := b.bk.get(job)
		st.updateStateCount++

		states := make([]string, len(rows))
		nodespecs := make([]string, len(rows))
		maxExit := 0

		for i, row := range rows {
			states[i] = row.state

			exit, err := strconv.Atoi(row.exitcode)
			if err == nil && exit > maxExit {
				maxExit = exit
			}

			nodespecs[i] = row.nodespec
		}

		job.State = strings.Join(states, ",")

		if completed(job.State) {
			job.ExitCode = maxExit
		}

		if err := b.setNodelist(ctx, job, strings.Join(nodespecs, ",")); err != nil {
			b.logger.Debug("could not resolve job nodelist", "jobid", job.JobID, "err", err)
		}

		if st.updateStateCount%sacctQueueRatio == 0 {
			if err := b.cancelIfBlocked(ctx, job); err != nil {
				job.Exception = err
			}
		}
	}

	return nil
}

type sacctRow struct {
	state    string
	exitcode string
	nodespec string
}

// groupSacctLines parses `sacct -P` output into rows keyed by the base job
// id (the part before "_" for array sub-jobs).
func groupSacctLines(out string) map[int][]sacctRow {
	byBaseID := make(map[int][]sacctRow)

	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		m := sacctJobStatePatt.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		baseID, err := strconv.Atoi(strings.SplitN(m[1], "_", 2)[0])
		if err != nil {
			continue
		}

		byBaseID[baseID] = append(byBaseID[baseID], sacctRow{
			state:    m[2],
			exitcode: m[3],
			nodespec: m[5],
		})
	}

	return byBaseID
}

// setNodelist expands nodespec (the compact NodeList column from sacct/squeue,
// e.g. "node[01-04,06]") into individual node names and assigns it to
// job.Nodelist the first time it is called for that job with a nodespec
// other than "" or "None assigned"; once job.Nodelist is set, later calls
// are no-ops, since Slurm only ever adds to a running job's allocation, never
// removes from it, until it is gone from the accounting records entirely.
// Expansion is done locally rather than via another scontrol round trip,
// since the names are all that is needed here.
func (b *SacctBackend) setNodelist(_ context.Context, job *Job, nodespec string) error {
	if job.Nodelist != nil {
		return nil
	}

	if nodespec == "" || nodespec == "None assigned" {
		return nil
	}

	names := common.NodelistParser(nodespec)
	sort.Strings(names)
	job.Nodelist = names

	return nil
}

// cancelIfBlocked checks job's squeue pending-reason and cancels it if the
// reason is judged unrecoverable (spec §4.6/§4.7).
func (b *SacctBackend) cancelIfBlocked(ctx context.Context, job *Job) error {
	st := b.bk.get(job)
	if st.isCancelling || !pending(job.State) {
		return nil
	}

	out, err := b.runner.Squeue(ctx, []string{strconv.Itoa(job.JobID)})
	if err != nil {
		return newError(KindCommandFailure, job.JobID, "squeue failed", err)
	}

	if strings.TrimSpace(out) == "" {
		return nil
	}

	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if err := b.checkAndCancel(ctx, job, line); err != nil {
			return err
		}
	}

	return nil
}

// checkAndCancel inspects one squeue pending-reason line and cancels job
// if the reason is in cancelReasons, unless it is ReqNodeNotAvail and the
// named unavailable nodes turn out not to actually be down.
func (b *SacctBackend) checkAndCancel(ctx context.Context, job *Job, reasonLine string) error {
	reasons := cancelReasons
	if b.cfg.IgnoreReqNodeNotAvail {
		reasons = removeString(cancelReasons, "ReqNodeNotAvail")
	}

	reason, details, _ := strings.Cut(reasonLine, ",")
	reason = strings.TrimSpace(reason)

	if !contains(reasons, reason) {
		return nil
	}

	if reason == "ReqNodeNotAvail" && details != "" {
		nodeNames := strings.TrimPrefix(strings.TrimSpace(details), "UnavailableNodes:")
		if nodeNames == "" {
			return nil
		}

		out, err := b.runner.ScontrolShowNode(ctx, nodeNames)
		if err != nil {
			return newError(KindNodeQueryFailure, job.JobID, "could not query unavailable nodes", err)
		}

		nodes := ParseNodes(out, b.logger)

		anyDown := false

		for _, n := range nodes {
			if n.IsDown() {
				anyDown = true

				break
			}
		}

		if !anyDown {
			return nil
		}
	}

	if err := b.doCancel(ctx, job); err != nil {
		return err
	}

	msg := "job cancelled because it was blocked due to a perhaps non-recoverable reason: " + reason
	if details != "" {
		msg += "," + details
	}

	return newError(KindJobBlocked, job.JobID, msg, nil)
}

// Wait blocks until job completes or exceeds job.MaxPendingTime, merging
// job array output files on successful completion.
func (b *SacctBackend) Wait(ctx context.Context, job *Job) error {
	if completed(job.State) {
		if b.IsArray(job) {
			b.mergeFiles(job)
		}

		return nil
	}

	if err := b.doPoll(ctx, []*Job{job}); err != nil {
		return err
	}

	interval := 0

	for !completed(job.State) {
		if timedOut, err := b.checkPendingTimeout(ctx, job); timedOut {
			return err
		}

		b.sleep(waitIntervals[interval%len(waitIntervals)])
		interval++

		if err := b.doPoll(ctx, []*Job{job}); err != nil {
			return err
		}
	}

	if b.IsArray(job) {
		b.mergeFiles(job)
	}

	return nil
}

func (b *SacctBackend) checkPendingTimeout(ctx context.Context, job *Job) (bool, error) {
	if job.MaxPendingTime == nil || !pending(job.State) {
		return false, nil
	}

	st := b.bk.get(job)
	if b.now().Sub(st.submitTime) < *job.MaxPendingTime {
		return false, nil
	}

	if err := b.doCancel(ctx, job); err != nil {
		return true, err
	}

	return true, newError(KindTimedOut, job.JobID, "maximum pending time exceeded", nil)
}

// mergeFiles concatenates the per-task output/error files of a completed
// job array into job.Stdout/job.Stderr, mirroring the "_%a"-suffixed
// filenames emitted by EmitPreamble.
func (b *SacctBackend) mergeFiles(job *Job) {
	outGlob, _ := filepathGlob(job.Workdir, job.Stdout+"_*")
	errGlob, _ := filepathGlob(job.Workdir, job.Stderr+"_*")

	b.logger.Debug("merging job array output files", "files", outGlob)
	b.logger.Debug("merging job array error files", "files", errGlob)

	concatFiles(filepath.Join(job.Workdir, job.Stdout), outGlob)
	concatFiles(filepath.Join(job.Workdir, job.Stderr), errGlob)
}

// Cancel runs scancel against job and marks it as cancelling so future
// poll()/wait() calls do not try to cancel it again.
func (b *SacctBackend) Cancel(ctx context.Context, job *Job) error {
	b.logger.Debug("cancelling job", "jobid", job.JobID)

	if err := b.runner.Scancel(ctx, strconv.Itoa(job.JobID)); err != nil {
		return newError(KindCommandFailure, job.JobID, "scancel failed", err)
	}

	b.bk.get(job).isCancelling = true

	return nil
}

// Finished reports whether job has reached a terminal state, enforcing the
// MaxPendingTime cancellation the same way Wait does for callers that poll
// manually instead of calling Wait.
func (b *SacctBackend) Finished(ctx context.Context, job *Job) (bool, error) {
	if job.Exception != nil {
		exc := job.Exception
		job.Exception = nil

		var schedErr *SchedulerError
		if errors.As(exc, &schedErr) && schedErr.Kind == KindJobBlocked {
			return false, exc
		}

		b.logger.Debug("ignoring error during polling", "err", exc)

		return false, nil
	}

	if timedOut, err := b.checkPendingTimeout(ctx, job); timedOut {
		return false, err
	}

	return completed(job.State), nil
}

// CompletionTime returns the UNIX timestamp job completed at, querying
// sacct a second time (with SLURM_TIME_FORMAT=%s) since the state-polling
// query never requests the End field.
func (b *SacctBackend) CompletionTime(ctx context.Context, job *Job) (*float64, error) {
	if job.completionTime != nil || !completed(job.State) {
		return job.completionTime, nil
	}

	st := b.bk.get(job)

	out, err := b.runner.SacctEnd(ctx, []string{strconv.Itoa(job.JobID)}, st.submitTime)
	if err != nil {
		return nil, newError(KindCommandFailure, job.JobID, "sacct failed", err)
	}

	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "|", 2)
		if len(fields) != 2 {
			continue
		}

		if strings.SplitN(fields[0], "_", 2)[0] != strconv.Itoa(job.JobID) {
			continue
		}

		end, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			continue
		}

		job.completionTime = &end

		return job.completionTime, nil
	}

	return nil, newError(KindNodeQueryFailure, job.JobID, "could not find completion time in sacct output", nil)
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}

	return false
}

func removeString(items []string, v string) []string {
	out := items[:0:0]

	for _, it := range items {
		if it != v {
			out = append(out, it)
		}
	}

	return out
}

