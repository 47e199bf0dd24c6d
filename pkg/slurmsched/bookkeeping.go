package slurmsched

import (
	"sync"
	"time"
)

// jobState is the per-job, per-backend bookkeeping described in spec §3.
// It lives in a side-table owned by the backend instance (not as package
// globals, and not on Job itself, since Job is owned by the client) so that
// multiple backend instances never share state through a common Job.
type jobState struct {
	submitTime       time.Time
	updateStateCount int
	isJobArray       *bool // nil until first computed
	isCancelling     bool
	cancelled        bool // not used; SqueueBackend keeps its own cancelled map
}

// bookkeeping is a mutex-guarded map[*Job]*jobState. A backend instance
// owns exactly one of these. The mutex exists because poll() may in
// principle be invoked concurrently with other operations on a shared
// instrumentation wrapper (see metrics.go); the state machine itself is
// still single-threaded per job as required by spec §5.
type bookkeeping struct {
	mu   sync.Mutex
	jobs map[*Job]*jobState
}

func newBookkeeping() *bookkeeping {
	return &bookkeeping{jobs: make(map[*Job]*jobState)}
}

func (b *bookkeeping) get(job *Job) *jobState {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.jobs[job]
	if !ok {
		st = &jobState{}
		b.jobs[job] = st
	}

	return st
}

func (b *bookkeeping) delete(job *Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.jobs, job)
}
