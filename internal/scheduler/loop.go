package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"poscalc/internal/logger"
)

// StepFunc is one loop iteration.
type StepFunc func(ctx context.Context) error

// Loop calls Step at most once per Interval until its context ends. After a
// failed step it also waits out an exponential backoff, reset on the next
// success. A failure never ends the loop.
type Loop struct {
	Name       string
	Interval   time.Duration
	BackoffMin time.Duration
	BackoffMax time.Duration
	Step       StepFunc

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewLoop(name string, interval, backoffMin, backoffMax time.Duration, step StepFunc) *Loop {
	return &Loop{
		Name:       name,
		Interval:   interval,
		BackoffMin: backoffMin,
		BackoffMax: backoffMax,
		Step:       step,
	}
}

// Run reports every failed step; the first failure of a streak is flagged so
// callers can alert once instead of on every retry.
func (l *Loop) Run(ctx context.Context, report func(source string, err error)) {
	log := logger.With("loop." + l.Name)
	if l.Step == nil {
		log.Warnf("step is nil, exit")
		return
	}
	if l.Interval <= 0 {
		log.Warnf("invalid interval=%s, exit", l.Interval)
		return
	}
	sleep := l.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	limiter := rate.NewLimiter(rate.Every(l.Interval), 1)
	b := &backoff.Backoff{Min: l.BackoffMin, Max: l.BackoffMax, Factor: 2, Jitter: true}
	if b.Min <= 0 {
		b.Min = l.Interval
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}

	log.Infof("started interval=%s backoff=%s..%s", l.Interval, b.Min, b.Max)
	streak := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			log.Infof("ctx done, exit")
			return
		}
		err := l.step(ctx)
		if ctx.Err() != nil {
			log.Infof("ctx done, exit")
			return
		}
		if err == nil {
			if streak > 0 {
				log.Infof("recovered after %d failures", streak)
			}
			streak = 0
			b.Reset()
			loopStepsTotal.WithLabelValues(l.Name, "ok").Inc()
			continue
		}
		streak++
		loopStepsTotal.WithLabelValues(l.Name, "error").Inc()
		if report != nil {
			report(l.Name, &StepError{Loop: l.Name, Streak: streak, Err: err})
		}
		wait := b.Duration()
		log.Debugf("failure %d, backing off %s", streak, wait)
		if !sleep(ctx, wait) {
			log.Infof("ctx done, exit")
			return
		}
	}
}

func (l *Loop) step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.With("loop."+l.Name).Errorf("panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.Step(ctx)
}

// StepError wraps a loop failure with its position in the current streak.
type StepError struct {
	Loop   string
	Streak int
	Err    error
}

func (e *StepError) Error() string {
	return e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// First reports whether this failure started a new streak.
func (e *StepError) First() bool {
	return e.Streak == 1
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
