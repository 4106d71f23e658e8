// Package scheduler drives the token lifecycle manager at a fixed cadence
// and gates periodic health reporting on the tick outcome. Cancelling the
// context suppresses future ticks; an in-flight network call runs to its
// own timeout.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TokenTicker is the tick operation of the lifecycle manager.
// *token.Manager satisfies it.
type TokenTicker interface {
	Tick(ctx context.Context, now time.Time) bool
}

// HealthReporter sends one health report. *reporter.Reporter satisfies it.
type HealthReporter interface {
	Send(ctx context.Context)
}

// Loop is the periodic driver for the agent.
type Loop struct {
	manager  TokenTicker
	reporter HealthReporter
	logger   *zap.Logger

	tickInterval   time.Duration
	healthInterval time.Duration

	lastReport time.Time
}

// New creates a scheduler loop.
func New(manager TokenTicker, reporter HealthReporter, tickInterval, healthInterval time.Duration, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		manager:        manager,
		reporter:       reporter,
		logger:         logger,
		tickInterval:   tickInterval,
		healthInterval: healthInterval,
	}
}

// Start runs the loop until the context is cancelled. Each tick evaluates
// the token timers; while the credential is usable, a health report goes
// out whenever the reporting interval has elapsed.
func (l *Loop) Start(ctx context.Context) {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	l.logger.Info("Scheduler started",
		zap.Duration("tick_interval", l.tickInterval),
		zap.Duration("health_interval", l.healthInterval))

	// Evaluate once immediately rather than waiting a full tick.
	l.step(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Scheduler stopped")
			return
		case now := <-ticker.C:
			l.step(ctx, now)
		}
	}
}

// step performs one scheduling decision.
func (l *Loop) step(ctx context.Context, now time.Time) {
	usable := l.manager.Tick(ctx, now)
	if !usable {
		return
	}
	if now.Sub(l.lastReport) >= l.healthInterval {
		l.reporter.Send(ctx)
		l.lastReport = now
	}
}
