package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Check is one independent step of a monitoring cycle
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Loop runs an ordered list of checks on a fixed interval. A failing check
// does not stop the cycle; a cycle with failures waits RetryDelay instead of
// Interval before the next one.
type Loop struct {
	logger     *zap.Logger
	name       string
	interval   time.Duration
	retryDelay time.Duration
	checks     []Check

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLoop creates a new monitoring loop
func NewLoop(name string, interval, retryDelay time.Duration, checks []Check, logger *zap.Logger) *Loop {
	if retryDelay <= 0 || retryDelay > interval {
		retryDelay = interval
	}
	return &Loop{
		logger:     logger.Named(name),
		name:       name,
		interval:   interval,
		retryDelay: retryDelay,
		checks:     checks,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the loop in the background until ctx is cancelled or Stop is called
func (l *Loop) Start(ctx context.Context) error {
	if l.interval <= 0 {
		return fmt.Errorf("invalid interval for loop %s: %s", l.name, l.interval)
	}
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("loop %s already started", l.name)
	}

	l.logger.Info("Starting monitoring loop",
		zap.Duration("interval", l.interval),
		zap.Duration("retry_delay", l.retryDelay),
		zap.Int("checks", len(l.checks)))

	go l.run(ctx)
	return nil
}

// Stop stops the loop and waits for the current cycle to finish
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.logger.Info("Stopping monitoring loop")
		close(l.stop)
	})
	if l.started.Load() {
		<-l.done
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-timer.C:
		}

		wait := l.interval
		if err := l.RunCycle(ctx); err != nil {
			wait = l.retryDelay
		}
		timer.Reset(wait)
	}
}

// RunCycle runs every check once, in order, and returns the first failure.
func (l *Loop) RunCycle(ctx context.Context) error {
	var firstErr error
	failed := 0

	for _, check := range l.checks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := l.runCheck(ctx, check); err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("check %s failed: %w", check.Name, err)
			}
			l.logger.Error("Check failed",
				zap.String("check", check.Name),
				zap.Error(err))
		}
	}

	if failed > 0 {
		l.logger.Warn("Cycle finished with failures",
			zap.Int("failed", failed),
			zap.Duration("retry_in", l.retryDelay))
	} else {
		l.logger.Debug("Cycle finished", zap.Int("checks", len(l.checks)))
	}
	return firstErr
}

func (l *Loop) runCheck(ctx context.Context, check Check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return check.Run(ctx)
}
