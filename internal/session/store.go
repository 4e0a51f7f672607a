// Package session holds the single-writer session state. Mutations are
// queued to one goroutine; readers get published copies.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"poscalc/internal/logger"
)

var ErrStopped = errors.New("session store is stopped")

// Mutation runs on the store goroutine and may change s freely.
type Mutation func(s *State)

type envelope struct {
	name  string
	fn    Mutation
	reply chan error
}

// Store is the only writer of State. Snapshot never blocks and never returns
// a partially applied mutation.
type Store struct {
	msgCh  chan envelope
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	log    *logger.Logger

	state    *State
	snapshot atomic.Value

	subMu sync.Mutex
	subs  map[int]chan uint64
	next  int
}

func NewStore(initial *State, queue int) *Store {
	if initial == nil {
		initial = NewState(RiskInputs{})
	}
	if queue <= 0 {
		queue = 64
	}
	s := &Store{
		msgCh:  make(chan envelope, queue),
		stopCh: make(chan struct{}),
		log:    logger.With("session"),
		state:  initial,
		subs:   make(map[int]chan uint64),
	}
	s.snapshot.Store(initial.clone())
	return s
}

func (s *Store) Start() {
	s.wg.Add(1)
	go s.runLoop()
}

// Stop is safe to call more than once.
func (s *Store) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
}

// Snapshot returns the last published state. Callers must not modify it.
func (s *Store) Snapshot() *State {
	return s.snapshot.Load().(*State)
}

// Update queues fn without waiting for it to run.
func (s *Store) Update(name string, fn Mutation) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	select {
	case s.msgCh <- envelope{name: name, fn: fn}:
		return nil
	case <-s.stopCh:
		return ErrStopped
	}
}

// UpdateSync queues fn and waits until it has been applied and published.
func (s *Store) UpdateSync(ctx context.Context, name string, fn Mutation) error {
	env := envelope{name: name, fn: fn, reply: make(chan error, 1)}
	select {
	case s.msgCh <- env:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrStopped
	}
	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrStopped
	}
}

// Alert queues a user-visible alert.
func (s *Store) Alert(title, message string) error {
	return s.Update("alert", func(st *State) {
		if _, evicted := st.AddAlert(title, message); evicted {
			s.log.Warnf("alert list full, dropped oldest alert")
		}
	})
}

// Subscribe returns a channel that receives the latest version after each
// publish. Slow readers miss intermediate versions, never the latest one.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) runLoop() {
	defer s.wg.Done()
	s.log.Debugf("session store started")
	for {
		select {
		case env := <-s.msgCh:
			s.handle(env)
		case <-s.stopCh:
			s.log.Debugf("session store stopping")
			return
		}
	}
}

func (s *Store) handle(env envelope) {
	var err error
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("panic applying %s: %v\n%s", env.name, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
		if env.reply != nil {
			env.reply <- err
			close(env.reply)
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			s.log.Warnf("slow mutation %s took %v", env.name, dur)
		}
	}()

	// Mutate a working copy so a panic halfway leaves the state untouched.
	work := s.state.clone()
	env.fn(work)
	work.Version = s.state.Version + 1
	s.state = work
	s.publish()
}

func (s *Store) publish() {
	s.snapshot.Store(s.state.clone())
	version := s.state.Version
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- version:
		default:
			// drop the stale version and leave the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- version:
			default:
			}
		}
	}
}
