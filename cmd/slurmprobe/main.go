// Command slurmprobe submits a single batch script to Slurm, waits for it
// to finish and reports its final state. It exists mainly to exercise the
// slurmsched package end to end against a real cluster.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/openregtest/slurmsched/internal/common"
	"github.com/openregtest/slurmsched/pkg/slurmsched"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
)

const appName = "slurmprobe"

// appConfig is the top-level YAML document this command loads its
// scheduler configuration from.
type appConfig struct {
	Schedulers map[string]slurmsched.Config `yaml:"schedulers"`
}

func main() {
	app := kingpin.New(appName, "Submit and wait for a single Slurm batch job.")

	configFile := app.Flag("config.file", "Path to the scheduler configuration file.").
		Default("slurmsched.yml").String()
	schedulerName := app.Flag("scheduler", "Name of the schedulers.<name> entry to use.").
		Default("slurm").String()
	scriptFile := app.Flag("job.script", "Path to the sbatch script to submit.").Required().String()
	workdir := app.Flag("job.workdir", "Working directory the job runs in.").Default(".").String()
	maxPendingTime := app.Flag("job.max-pending-time", "Cancel the job if it is still pending after this long.").
		Duration()

	promslogConfig := &promslog.Config{}
	flag.AddFlags(app, promslogConfig)
	app.HelpFlag.Short('h')

	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse CLI flags: %v\n", err)
		os.Exit(1)
	}

	logger := promslog.New(promslogConfig)

	cfg, err := common.MakeConfig[appConfig](*configFile)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	schedCfg, ok := cfg.Schedulers[*schedulerName]
	if !ok {
		logger.Error("no such scheduler configured", "scheduler", *schedulerName)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := slurmsched.New(ctx, schedCfg, logger)
	if err != nil {
		logger.Error("failed to build scheduler backend", "err", err)
		os.Exit(1)
	}

	job := &slurmsched.Job{
		ScriptFilename: *scriptFile,
		Workdir:        *workdir,
	}

	if *maxPendingTime > 0 {
		job.MaxPendingTime = maxPendingTime
	}

	logger.Info("submitting job", "script", job.ScriptFilename)

	if err := backend.Submit(ctx, job); err != nil {
		logger.Error("submit failed", "err", err)
		os.Exit(1)
	}

	logger.Info("submitted", "jobid", job.JobID)

	start := time.Now()
	if err := backend.Wait(ctx, job); err != nil {
		logger.Error("wait failed", "jobid", job.JobID, "err", err)
		os.Exit(1)
	}

	logger.Info("job finished",
		"jobid", job.JobID,
		"state", job.State,
		"exitcode", job.ExitCode,
		"elapsed", time.Since(start),
	)
}
