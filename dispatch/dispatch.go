// Package dispatch delivers callbacks on a single consumer goroutine.
package dispatch

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dispatcher runs posted tasks on the host's callback context.
type Dispatcher interface {
	Post(task func())
}

// Queue is an unbounded FIFO drained by one goroutine. Tasks run in the order they were posted.
type Queue struct {
	lock    sync.Mutex
	tasks   []func()
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
	logger  zerolog.Logger
}

var _ Dispatcher = (*Queue)(nil)

type Option func(*Queue)

func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// NewQueue starts the consumer goroutine. Call Close to stop it.
func NewQueue(options ...Option) *Queue {
	q := &Queue{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  log.With().Str("component", "dispatch").Logger(),
	}
	for _, opt := range options {
		opt(q)
	}
	go q.run()
	return q
}

// Post enqueues a task. Tasks posted after Close are dropped.
func (q *Queue) Post(task func()) {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		q.logger.Warn().Msg("task posted to closed queue dropped")
		return
	}
	q.tasks = append(q.tasks, task)
	q.lock.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every task posted before the call has run.
// It must not be called from a task.
func (q *Queue) Flush() {
	done := make(chan struct{})
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		<-q.stopped
		return
	}
	q.lock.Unlock()
	q.Post(func() { close(done) })
	select {
	case <-done:
	case <-q.stopped:
	}
}

// Close runs the tasks already queued and stops the consumer.
func (q *Queue) Close() {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	q.lock.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.stopped
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		q.lock.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.lock.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.lock.Unlock()

		q.runTask(task)
	}
}

func (q *Queue) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic in dispatched task")
		}
	}()
	task()
}

// Immediate runs tasks synchronously on the posting goroutine.
type Immediate struct{}

var _ Dispatcher = Immediate{}

func (Immediate) Post(task func()) {
	task()
}
