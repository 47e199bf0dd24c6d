package slurmsched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openregtest/slurmsched/pkg/slurmsched/faketools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSacctBackend(runner *faketools.Runner, cfg Config) *SacctBackend {
	b := NewSacctBackend(runner, cfg, discardLogger())
	b.sleep = func(time.Duration) {} // tests never actually wait

	return b
}

func TestSacctSubmitParsesJobID(t *testing.T) {
	runner := &faketools.Runner{
		SbatchFunc: func(ctx context.Context, scriptPath string) (string, error) {
			return "Submitted batch job 123\n", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{ScriptFilename: "job.sh"}

	if err := b.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if job.JobID != 123 {
		t.Errorf("job.JobID = %d, want 123", job.JobID)
	}
}

func TestSacctSubmitUnparsableOutput(t *testing.T) {
	runner := &faketools.Runner{
		SbatchFunc: func(ctx context.Context, scriptPath string) (string, error) {
			return "sbatch: error: something went wrong\n", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{ScriptFilename: "job.sh"}

	err := b.Submit(context.Background(), job)
	if err == nil {
		t.Fatal("Submit() error = nil, want error")
	}

	if !errors.Is(err, ErrSubmissionFailure) {
		t.Errorf("Submit() error = %v, want ErrSubmissionFailure", err)
	}
}

func TestSacctPollSimpleJobCompletes(t *testing.T) {
	runner := &faketools.Runner{
		SbatchFunc: func(ctx context.Context, scriptPath string) (string, error) {
			return "Submitted batch job 1\n", nil
		},
		SacctFunc: func(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
			return "1|COMPLETED|0:0|node01\n", nil
		},
		ScontrolShowNodeFunc: func(ctx context.Context, nodeSpec string) (string, error) {
			return "NodeName=node01 Partitions=gpu ActiveFeatures=v100 State=IDLE", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{ScriptFilename: "job.sh"}

	if err := b.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := b.Poll(context.Background(), []*Job{job}); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if job.State != "COMPLETED" {
		t.Errorf("job.State = %q, want COMPLETED", job.State)
	}

	if job.ExitCode != 0 {
		t.Errorf("job.ExitCode = %d, want 0", job.ExitCode)
	}

	if len(job.Nodelist) != 1 || job.Nodelist[0] != "node01" {
		t.Errorf("job.Nodelist = %v, want [node01]", job.Nodelist)
	}
}

func TestSacctPollNonZeroExitCode(t *testing.T) {
	runner := &faketools.Runner{
		SbatchFunc: func(ctx context.Context, scriptPath string) (string, error) {
			return "Submitted batch job 1\n", nil
		},
		SacctFunc: func(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
			return "1|FAILED|1:0|node01\n", nil
		},
		ScontrolShowNodeFunc: func(ctx context.Context, nodeSpec string) (string, error) {
			return "NodeName=node01 Partitions=gpu ActiveFeatures=v100 State=IDLE", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{ScriptFilename: "job.sh"}

	_ = b.Submit(context.Background(), job)

	if err := b.Poll(context.Background(), []*Job{job}); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if job.ExitCode != 1 {
		t.Errorf("job.ExitCode = %d, want 1", job.ExitCode)
	}
}

func TestSacctWaitMergesArrayOutputFiles(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "out.log_0"), []byte("a"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "out.log_1"), []byte("b"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	runner := &faketools.Runner{
		SbatchFunc: func(ctx context.Context, scriptPath string) (string, error) {
			return "Submitted batch job 9\n", nil
		},
		SacctFunc: func(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
			return "9_0|COMPLETED|0:0|node01\n9_1|COMPLETED|0:0|node01\n", nil
		},
		ScontrolShowNodeFunc: func(ctx context.Context, nodeSpec string) (string, error) {
			return "NodeName=node01 Partitions=gpu ActiveFeatures=v100 State=IDLE", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{
		ScriptFilename: "job.sh",
		Workdir:        dir,
		Stdout:         "out.log",
		Options:        []string{"--array=0-1"},
	}

	if err := b.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := b.Wait(context.Background(), job); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	merged, err := os.ReadFile(filepath.Join(dir, "out.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if string(merged) != "ab" {
		t.Errorf("merged output = %q, want %q", merged, "ab")
	}
}

func TestSacctWaitCancelsOnMaxPendingTime(t *testing.T) {
	scancelled := false

	runner := &faketools.Runner{
		SbatchFunc: func(ctx context.Context, scriptPath string) (string, error) {
			return "Submitted batch job 5\n", nil
		},
		SacctFunc: func(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
			return "5|PENDING|0:0|\n", nil
		},
		ScancelFunc: func(ctx context.Context, jobID string) error {
			scancelled = true
			return nil
		},
	}

	b := newTestSacctBackend(runner, Config{})

	clock := time.Now()
	b.now = func() time.Time { return clock }

	maxPending := 5 * time.Second
	job := &Job{ScriptFilename: "job.sh", MaxPendingTime: &maxPending}

	if err := b.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Advance the clock past MaxPendingTime before Wait's first poll, and
	// keep it there for every subsequent sleep/poll cycle.
	clock = clock.Add(10 * time.Second)

	err := b.Wait(context.Background(), job)
	if err == nil {
		t.Fatal("Wait() error = nil, want KindTimedOut error")
	}

	var schedErr *SchedulerError
	if !errors.As(err, &schedErr) || schedErr.Kind != KindTimedOut {
		t.Errorf("Wait() error = %v, want KindTimedOut", err)
	}

	if !scancelled {
		t.Error("Wait() did not cancel the job via scancel")
	}
}

func TestSacctCheckAndCancelUnrecoverableReason(t *testing.T) {
	scancelled := false

	runner := &faketools.Runner{
		ScancelFunc: func(ctx context.Context, jobID string) error {
			scancelled = true
			return nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{JobID: 3}

	err := b.checkAndCancel(context.Background(), job, "Licenses")
	if err == nil {
		t.Fatal("checkAndCancel() error = nil, want error for Licenses")
	}

	var schedErr *SchedulerError
	if !errors.As(err, &schedErr) || schedErr.Kind != KindJobBlocked {
		t.Errorf("checkAndCancel() error = %v, want KindJobBlocked", err)
	}

	if !scancelled {
		t.Error("checkAndCancel() did not cancel the job for an unrecoverable reason")
	}
}

func TestSacctCheckAndCancelRecoverableReqNodeNotAvail(t *testing.T) {
	scancelled := false

	runner := &faketools.Runner{
		ScancelFunc: func(ctx context.Context, jobID string) error {
			scancelled = true
			return nil
		},
		ScontrolShowNodeFunc: func(ctx context.Context, nodeSpec string) (string, error) {
			// Node is up (no DOWN/DRAIN/etc state), so ReqNodeNotAvail is
			// judged recoverable and the job must not be cancelled.
			return "NodeName=node01 Partitions=gpu ActiveFeatures=v100 State=IDLE", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{JobID: 4}

	err := b.checkAndCancel(context.Background(), job, "ReqNodeNotAvail,UnavailableNodes:node01")
	if err != nil {
		t.Fatalf("checkAndCancel() error = %v, want nil for a recoverable reason", err)
	}

	if scancelled {
		t.Error("checkAndCancel() cancelled the job despite the node being up")
	}
}

func TestSacctCheckAndCancelUnrecoverableReqNodeNotAvail(t *testing.T) {
	scancelled := false

	runner := &faketools.Runner{
		ScancelFunc: func(ctx context.Context, jobID string) error {
			scancelled = true
			return nil
		},
		ScontrolShowNodeFunc: func(ctx context.Context, nodeSpec string) (string, error) {
			return "NodeName=node01 Partitions=gpu ActiveFeatures=v100 State=DOWN", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{JobID: 4}

	err := b.checkAndCancel(context.Background(), job, "ReqNodeNotAvail,UnavailableNodes:node01")
	if err == nil {
		t.Fatal("checkAndCancel() error = nil, want error for a down node")
	}

	if !scancelled {
		t.Error("checkAndCancel() did not cancel the job even though the node is down")
	}
}

func TestSacctCheckAndCancelIgnoreReqNodeNotAvail(t *testing.T) {
	scancelled := false

	runner := &faketools.Runner{
		ScancelFunc: func(ctx context.Context, jobID string) error {
			scancelled = true
			return nil
		},
	}

	b := newTestSacctBackend(runner, Config{IgnoreReqNodeNotAvail: true})
	job := &Job{JobID: 6}

	err := b.checkAndCancel(context.Background(), job, "ReqNodeNotAvail,UnavailableNodes:node01")
	if err != nil {
		t.Fatalf("checkAndCancel() error = %v, want nil when IgnoreReqNodeNotAvail is set", err)
	}

	if scancelled {
		t.Error("checkAndCancel() cancelled the job despite IgnoreReqNodeNotAvail")
	}

	// The package-level cancelReasons slice must be unaffected by the
	// per-call filtering above.
	if !contains(cancelReasons, "ReqNodeNotAvail") {
		t.Error("IgnoreReqNodeNotAvail mutated the shared cancelReasons slice")
	}
}

func TestSacctCompletionTime(t *testing.T) {
	runner := &faketools.Runner{
		SbatchFunc: func(ctx context.Context, scriptPath string) (string, error) {
			return "Submitted batch job 2\n", nil
		},
		SacctFunc: func(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
			return "2|COMPLETED|0:0|node01\n", nil
		},
		SacctEndFunc: func(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
			return "2|1700000000\n", nil
		},
		ScontrolShowNodeFunc: func(ctx context.Context, nodeSpec string) (string, error) {
			return "NodeName=node01 Partitions=gpu ActiveFeatures=v100 State=IDLE", nil
		},
	}

	b := newTestSacctBackend(runner, Config{})
	job := &Job{ScriptFilename: "job.sh"}

	_ = b.Submit(context.Background(), job)
	_ = b.Poll(context.Background(), []*Job{job})

	ct, err := b.CompletionTime(context.Background(), job)
	if err != nil {
		t.Fatalf("CompletionTime() error = %v", err)
	}

	if ct == nil || *ct != 1700000000 {
		t.Errorf("CompletionTime() = %v, want 1700000000", ct)
	}

	// A second call must be a cached no-op, not a second sacct round trip.
	callsBefore := len(runner.Calls)

	if _, err := b.CompletionTime(context.Background(), job); err != nil {
		t.Fatalf("CompletionTime() second call error = %v", err)
	}

	if len(runner.Calls) != callsBefore {
		t.Error("CompletionTime() issued another sacct call instead of using the cached value")
	}
}

func TestSacctIsArrayCachesDetection(t *testing.T) {
	runner := &faketools.Runner{}
	b := newTestSacctBackend(runner, Config{})

	job := &Job{Options: []string{"--array=0-3"}}

	if !b.IsArray(job) {
		t.Fatal("IsArray() = false, want true")
	}

	// Mutate Options after the first call; the cached result must stick.
	job.Options = nil

	if !b.IsArray(job) {
		t.Error("IsArray() = false on second call, want cached true")
	}
}
