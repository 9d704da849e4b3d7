// Package retry runs session operations under a linear back-off policy for
// transient transport failures.
package retry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy configures Do. Zero fields fall back to the defaults.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" default:"3"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay" default:"1s"`
}

// DefaultPolicy returns three attempts with a one second base delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Delay returns the wait before the retry that follows the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// Do calls fn until it succeeds, fails with a non-transient error, or the policy's
// attempts are exhausted, in which case the last error is returned.
// Cancelling ctx interrupts the wait between attempts.
func Do[T any](ctx context.Context, p Policy, logger *logrus.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !device.IsTransient(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
				"delay":   delay,
				"error":   err,
			}).Warn("Transient failure, retrying")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"op":       op,
			"attempts": p.MaxAttempts,
			"error":    lastErr,
		}).Error("Retry attempts exhausted")
	}
	return zero, lastErr
}

// Run is Do for operations that only return an error.
func Run(ctx context.Context, p Policy, logger *logrus.Logger, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
