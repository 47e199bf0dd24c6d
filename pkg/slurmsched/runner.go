package slurmsched

import (
	"context"
	"time"

	"github.com/openregtest/slurmsched/internal/osexec"
	"github.com/openregtest/slurmsched/internal/privilege"
)

// Runner executes the Slurm command line tools. It is the seam backends
// call through for every external process, so tests can swap in a fake
// dispatcher (see faketools) instead of exec'ing real binaries.
type Runner interface {
	FilterRunner

	Sbatch(ctx context.Context, scriptPath string) (string, error)
	// Sacct returns job state rows for jobIDs submitted on or after since.
	Sacct(ctx context.Context, jobIDs []string, since time.Time) (string, error)
	// SacctEnd returns the jobid|end pairs (UNIX seconds) for jobIDs
	// submitted on or after since, used by CompletionTime.
	SacctEnd(ctx context.Context, jobIDs []string, since time.Time) (string, error)
	Squeue(ctx context.Context, jobIDs []string) (string, error)
	Scancel(ctx context.Context, jobID string) error
}

// cliRunner is the production Runner, invoking the real Slurm tools via
// internal/osexec, with the exec mode (native/cap/sudo) resolved once at
// construction via internal/privilege.
type cliRunner struct {
	cfg  Config
	mode privilege.ExecMode
}

// NewRunner builds a Runner against cfg, detecting the exec mode for the
// sbatch binary and using that same mode for every Slurm tool invocation.
func NewRunner(ctx context.Context, cfg Config) Runner {
	cfg = cfg.withDefaults()

	return &cliRunner{
		cfg:  cfg,
		mode: privilege.Detect(ctx, cfg.SbatchPath, cfg.CommandTimeout),
	}
}

func (r *cliRunner) run(ctx context.Context, path string, args []string, timeout time.Duration) (string, error) {
	cmd, cmdArgs := path, args
	if r.mode == privilege.ModeSudo {
		cmd, cmdArgs = "sudo", append([]string{path}, args...)
	}

	out, err := osexec.Strict(ctx, cmd, cmdArgs, nil, timeout)

	return string(out), err
}

func (r *cliRunner) Sbatch(ctx context.Context, scriptPath string) (string, error) {
	return r.run(ctx, r.cfg.SbatchPath, []string{scriptPath}, r.cfg.JobSubmitTimeout)
}

func (r *cliRunner) Sacct(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
	args := []string{
		"-S", since.Format("2006-01-02"),
		"-n", "-P",
		"--format=JobID,State,ExitCode,NodeList",
		"-j", joinComma(jobIDs),
	}

	return r.run(ctx, r.cfg.SacctPath, args, r.cfg.CommandTimeout)
}

func (r *cliRunner) SacctEnd(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
	args := []string{
		"-S", since.Format("2006-01-02"),
		"-n", "-P",
		"-o", "jobid,end",
		"-j", joinComma(jobIDs),
	}

	cmd, cmdArgs := r.cfg.SacctPath, args
	if r.mode == privilege.ModeSudo {
		cmd, cmdArgs = "sudo", append([]string{r.cfg.SacctPath}, args...)
	}

	out, err := osexec.Strict(ctx, cmd, cmdArgs, []string{"SLURM_TIME_FORMAT=%s"}, r.cfg.CommandTimeout)

	return string(out), err
}

func (r *cliRunner) Squeue(ctx context.Context, jobIDs []string) (string, error) {
	args := []string{
		"-h", "-o", "%i|%T|%N|%r",
		"-j", joinComma(jobIDs),
	}

	return r.run(ctx, r.cfg.SqueuePath, args, r.cfg.CommandTimeout)
}

func (r *cliRunner) Scancel(ctx context.Context, jobID string) error {
	_, err := r.run(ctx, r.cfg.ScancelPath, []string{jobID}, r.cfg.CommandTimeout)

	return err
}

func (r *cliRunner) ScontrolShowRes(ctx context.Context, name string) (string, error) {
	return r.run(ctx, r.cfg.ScontrolPath, []string{"show", "res", name}, r.cfg.CommandTimeout)
}

func (r *cliRunner) ScontrolShowNode(ctx context.Context, nodeSpec string) (string, error) {
	return r.run(ctx, r.cfg.ScontrolPath, []string{"show", "-o", "node", nodeSpec}, r.cfg.CommandTimeout)
}

func (r *cliRunner) ScontrolShowAllNodes(ctx context.Context) (string, error) {
	return r.run(ctx, r.cfg.ScontrolPath, []string{"-a", "show", "-o", "nodes"}, r.cfg.CommandTimeout)
}

func (r *cliRunner) ScontrolShowPartitions(ctx context.Context) (string, error) {
	return r.run(ctx, r.cfg.ScontrolPath, []string{"show", "-o", "partitions"}, r.cfg.CommandTimeout)
}

func joinComma(items []string) string {
	out := ""

	for i, it := range items {
		if i > 0 {
			out += ","
		}

		out += it
	}

	return out
}
