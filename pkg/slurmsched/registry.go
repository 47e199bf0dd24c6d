package slurmsched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrUnknownBackend is returned by New for an unregistered Config.Kind.
var ErrUnknownBackend = errors.New("unknown scheduler backend")

// Backend is the interface every scheduler backend implements. SacctBackend
// is the default implementation; SqueueBackend overrides the methods where
// squeue semantics differ (spec §6).
type Backend interface {
	Submit(ctx context.Context, job *Job) error
	Poll(ctx context.Context, jobs []*Job) error
	Wait(ctx context.Context, job *Job) error
	Cancel(ctx context.Context, job *Job) error
	Finished(ctx context.Context, job *Job) (bool, error)
	CompletionTime(ctx context.Context, job *Job) (*float64, error)
	IsArray(job *Job) bool

	AllNodes(ctx context.Context) (NodeSet, error)
	DefaultPartition(ctx context.Context) (string, error)
	FilterNodes(ctx context.Context, candidate NodeSet, job *Job) (NodeSet, error)
}

type factory func(runner Runner, cfg Config, logger *slog.Logger) Backend

var (
	registryLock = sync.RWMutex{}
	factories    = map[string]factory{
		"sacct":  func(r Runner, c Config, l *slog.Logger) Backend { return NewSacctBackend(r, c, l) },
		"squeue": func(r Runner, c Config, l *slog.Logger) Backend { return NewSqueueBackend(r, c, l) },
	}
)

// Register adds a named backend factory to the registry, so that hosts
// embedding this package can plug in additional backends the way they
// register their own resource managers or collectors.
func Register(name string, f func(runner Runner, cfg Config, logger *slog.Logger) Backend) {
	registryLock.Lock()
	defer registryLock.Unlock()
	factories[name] = f
}

// New builds the Backend named by cfg.Kind, constructing a production
// Runner for it via NewRunner.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	registryLock.RLock()
	f, ok := factories[cfg.Kind]
	registryLock.RUnlock()

	if !ok {
		return nil, ErrUnknownBackend
	}

	return f(NewRunner(ctx, cfg), cfg, logger), nil
}
