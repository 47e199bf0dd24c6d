// Package faketools provides a scriptable stand-in for slurmsched.Runner so
// tests can drive backend logic without exec'ing real Slurm binaries.
package faketools

import (
	"context"
	"time"
)

// Runner implements slurmsched.Runner by delegating each method to a
// configurable function field. Any field left nil panics if called, which
// surfaces unexpected calls during a test rather than silently returning a
// zero value.
type Runner struct {
	SbatchFunc                 func(ctx context.Context, scriptPath string) (string, error)
	SacctFunc                  func(ctx context.Context, jobIDs []string, since time.Time) (string, error)
	SacctEndFunc               func(ctx context.Context, jobIDs []string, since time.Time) (string, error)
	SqueueFunc                 func(ctx context.Context, jobIDs []string) (string, error)
	ScancelFunc                func(ctx context.Context, jobID string) error
	ScontrolShowResFunc        func(ctx context.Context, name string) (string, error)
	ScontrolShowNodeFunc       func(ctx context.Context, nodeSpec string) (string, error)
	ScontrolShowAllNodesFunc   func(ctx context.Context) (string, error)
	ScontrolShowPartitionsFunc func(ctx context.Context) (string, error)

	// Calls records, in order, the name of every method invoked.
	Calls []string
}

func (r *Runner) Sbatch(ctx context.Context, scriptPath string) (string, error) {
	r.Calls = append(r.Calls, "sbatch")

	return r.SbatchFunc(ctx, scriptPath)
}

func (r *Runner) Sacct(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
	r.Calls = append(r.Calls, "sacct")

	return r.SacctFunc(ctx, jobIDs, since)
}

func (r *Runner) SacctEnd(ctx context.Context, jobIDs []string, since time.Time) (string, error) {
	r.Calls = append(r.Calls, "sacct-end")

	return r.SacctEndFunc(ctx, jobIDs, since)
}

func (r *Runner) Squeue(ctx context.Context, jobIDs []string) (string, error) {
	r.Calls = append(r.Calls, "squeue")

	return r.SqueueFunc(ctx, jobIDs)
}

func (r *Runner) Scancel(ctx context.Context, jobID string) error {
	r.Calls = append(r.Calls, "scancel")

	return r.ScancelFunc(ctx, jobID)
}

func (r *Runner) ScontrolShowRes(ctx context.Context, name string) (string, error) {
	r.Calls = append(r.Calls, "scontrol-show-res")

	return r.ScontrolShowResFunc(ctx, name)
}

func (r *Runner) ScontrolShowNode(ctx context.Context, nodeSpec string) (string, error) {
	r.Calls = append(r.Calls, "scontrol-show-node")

	return r.ScontrolShowNodeFunc(ctx, nodeSpec)
}

func (r *Runner) ScontrolShowAllNodes(ctx context.Context) (string, error) {
	r.Calls = append(r.Calls, "scontrol-show-all-nodes")

	return r.ScontrolShowAllNodesFunc(ctx)
}

func (r *Runner) ScontrolShowPartitions(ctx context.Context) (string, error) {
	r.Calls = append(r.Calls, "scontrol-show-partitions")

	return r.ScontrolShowPartitionsFunc(ctx)
}
