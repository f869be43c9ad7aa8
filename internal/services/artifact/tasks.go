package artifact

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type task struct {
	id string
	fn func(context.Context) error
}

// Supervisor runs detached side-effect work on a bounded worker set. Frame
// forwarding never waits on it: Submit is non-blocking and a full queue
// drops the task with a log line rather than stall the caller.
type Supervisor struct {
	queue  chan task
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor starts workers goroutines draining a queue of depth tasks
func NewSupervisor(workers, depth int) *Supervisor {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		queue:  make(chan task, depth),
		group:  &errgroup.Group{},
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		s.group.Go(s.worker)
	}
	return s
}

func (s *Supervisor) worker() error {
	for t := range s.queue {
		s.run(t)
	}
	return nil
}

// run executes one task, capturing panics and logging failures so they never
// escape the worker.
func (s *Supervisor) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("task", t.id).
				Str("panic", fmt.Sprint(r)).
				Msg("Background task panicked")
		}
	}()

	if err := t.fn(s.ctx); err != nil {
		log.Error().
			Str("task", t.id).
			Err(err).
			Msg("Background task failed")
	}
}

// Submit enqueues a task without blocking. Returns false when the queue is
// full and the task was dropped.
func (s *Supervisor) Submit(id string, fn func(context.Context) error) bool {
	select {
	case s.queue <- task{id: id, fn: fn}:
		return true
	default:
		log.Warn().Str("task", id).Msg("Background queue full - dropping task")
		return false
	}
}

// Close stops accepting work, waits for in-flight tasks, then cancels the
// shared context.
func (s *Supervisor) Close() {
	close(s.queue)
	s.group.Wait() //nolint:errcheck // workers never return errors
	s.cancel()
}
