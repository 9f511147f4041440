package repos

import (
	"context"
	"sync/atomic"
	"time"
)

// Job is the exclusive sync slot for one repository. It lives from
// AcquireJob until ReleaseJob.
type Job struct {
	RepositoryID string
	StartedAt    time.Time

	ctx             context.Context
	cancel          context.CancelFunc
	attempts        atomic.Int64
	cancelRequested atomic.Bool
	done            chan struct{}
}

func newJob(parent context.Context, id string, now time.Time) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		RepositoryID: id,
		StartedAt:    now,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Context is cancelled when the job is cancelled or its parent ends.
func (j *Job) Context() context.Context {
	return j.ctx
}

// Cancel requests a clean stop. The running sync observes it at its next
// suspension point.
func (j *Job) Cancel() {
	j.cancelRequested.Store(true)
	j.cancel()
}

func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// Attempt records a failed attempt and returns the new count.
func (j *Job) Attempt() int64 {
	return j.attempts.Add(1)
}

func (j *Job) Attempts() int64 {
	return j.attempts.Load()
}

// Done is closed once the slot has been released.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
