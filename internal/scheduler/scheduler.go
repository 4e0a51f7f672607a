// Package scheduler runs all network work off the foreground: one-shot tasks
// from a bounded queue, and the long-running polling loops.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"poscalc/internal/logger"
)

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrStopped   = errors.New("scheduler is not running")
)

// TaskFunc does its own I/O and writes its results to the session.
type TaskFunc func(ctx context.Context) error

type Task struct {
	ID   string
	Name string
	Run  TaskFunc
}

type Options struct {
	QueueSize int
	Workers   int
	// OnError receives every failed task and loop step.
	OnError func(source string, err error)
}

type Scheduler struct {
	queue   chan Task
	workers int
	onError func(string, error)
	log     *logger.Logger

	mu      sync.Mutex
	loops   []*Loop
	running atomic.Bool
	stopped atomic.Bool
}

func New(opts Options) *Scheduler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Scheduler{
		queue:   make(chan Task, opts.QueueSize),
		workers: opts.Workers,
		onError: opts.OnError,
		log:     logger.With("scheduler"),
	}
}

// AddLoop registers a loop to start with Run. Loops added after Run has
// started are ignored.
func (s *Scheduler) AddLoop(l *Loop) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.loops = append(s.loops, l)
	s.mu.Unlock()
}

// Submit enqueues a task and returns its id. It never blocks. Tasks
// submitted before Run wait in the queue.
func (s *Scheduler) Submit(name string, fn TaskFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("task %s: nil func", name)
	}
	if s.stopped.Load() {
		return "", ErrStopped
	}
	task := Task{ID: uuid.NewString(), Name: name, Run: fn}
	select {
	case s.queue <- task:
		queueDepth.Set(float64(len(s.queue)))
		return task.ID, nil
	default:
		tasksTotal.WithLabelValues(name, "rejected").Inc()
		s.log.Warnf("queue full, rejected task %s", name)
		return "", ErrQueueFull
	}
}

// Running reports whether Run is executing.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Run blocks until ctx is done. Cancelling ctx is the only way to stop the
// loops and workers; tasks still queued at that point are dropped. A
// scheduler runs once.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer func() {
		s.stopped.Store(true)
		s.running.Store(false)
	}()

	s.mu.Lock()
	loops := append([]*Loop(nil), s.loops...)
	s.mu.Unlock()

	s.log.Infof("started workers=%d loops=%d", s.workers, len(loops))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			s.work(gctx)
			return nil
		})
	}
	for _, l := range loops {
		l := l
		g.Go(func() error {
			l.Run(gctx, s.report)
			return nil
		})
	}
	err := g.Wait()
	s.log.Infof("stopped, %d queued tasks dropped", len(s.queue))
	return err
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.queue:
			queueDepth.Set(float64(len(s.queue)))
			s.execute(ctx, task)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, task Task) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("panic in task %s: %v\n%s", task.Name, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
			s.report(task.Name, err)
		}
		tasksTotal.WithLabelValues(task.Name, outcome).Inc()
		s.log.Debugf("task %s (%s) finished in %v", task.Name, task.ID, time.Since(start))
	}()
	err = task.Run(ctx)
}

func (s *Scheduler) report(source string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.log.Warnf("%s: %v", source, err)
	if s.onError != nil {
		s.onError(source, err)
	}
}
