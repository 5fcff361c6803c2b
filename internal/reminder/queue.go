package reminder

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Job is one unit of gateway work.
type Job func(ctx context.Context)

// Runner executes gateway jobs. Jobs submitted by one goroutine run in
// submission order.
type Runner interface {
	Run(job Job)
}

// Inline runs each job on the caller's goroutine.
type Inline struct{}

func (Inline) Run(job Job) {
	job(context.Background())
}

// Queue runs jobs one at a time on a background worker, in FIFO order. Run
// never blocks.
type Queue struct {
	mu      sync.Mutex
	jobs    []Job
	wake    chan struct{}
	done    chan struct{}
	running sync.WaitGroup
	log     zerolog.Logger
}

func NewQueue(log zerolog.Logger) *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
}

func (q *Queue) Run(job Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.running.Add(1)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start processes jobs until ctx is cancelled, then drains what is left.
// In-flight jobs are not cancelled with ctx.
func (q *Queue) Start(ctx context.Context) {
	defer close(q.done)
	jobCtx := context.WithoutCancel(ctx)

	for {
		q.drain(jobCtx)
		select {
		case <-ctx.Done():
			q.drain(jobCtx)
			q.log.Debug().Msg("reminder queue stopped")
			return
		case <-q.wake:
		}
	}
}

// Wait blocks until every job submitted so far has run.
func (q *Queue) Wait() {
	q.running.Wait()
}

// Done is closed once Start has returned.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		q.runJob(ctx, job)
	}
}

func (q *Queue) runJob(ctx context.Context, job Job) {
	defer q.running.Done()
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("reminder job panicked")
		}
	}()
	job(ctx)
}
