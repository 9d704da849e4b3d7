package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
	"github.com/stretchr/testify/suite"
)

type RetryTestSuite struct {
	suite.Suite
	logger *logrus.Logger
	policy Policy
}

func (s *RetryTestSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.policy = Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}
}

// TestExhaustion verifies that an always-busy operation runs exactly MaxAttempts times.
//
// GOAL: Retry exhaustion propagates the last transient error
//
// TEST SCENARIO: fn always returns ErrBusy → called 4 times → last error returned
func (s *RetryTestSuite) TestExhaustion() {
	calls := 0
	_, err := Do(context.Background(), s.policy, s.logger, "read", func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d: %w", calls, device.ErrBusy)
	})

	s.Require().Error(err)
	s.Equal(4, calls, "MUST invoke the operation exactly MaxAttempts times")
	s.ErrorIs(err, device.ErrBusy)
	s.Contains(err.Error(), "attempt 4", "MUST propagate the last error")
}

// TestSuccessAtK verifies that success on attempt K stops retrying.
//
// GOAL: Return the first successful value
//
// TEST SCENARIO: fails twice with ErrSessionClosed then succeeds → 3 calls, value returned
func (s *RetryTestSuite) TestSuccessAtK() {
	calls := 0
	v, err := Do(context.Background(), s.policy, s.logger, "read", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", device.ErrSessionClosed
		}
		return "ok", nil
	})

	s.Require().NoError(err)
	s.Equal("ok", v)
	s.Equal(3, calls, "MUST stop after the first success")
}

// TestNonTransientAbortsImmediately verifies that non-transient failures are not retried.
func (s *RetryTestSuite) TestNonTransientAbortsImmediately() {
	boom := errors.New("boom")
	calls := 0
	err := Run(context.Background(), s.policy, s.logger, "write", func(ctx context.Context) error {
		calls++
		return boom
	})

	s.ErrorIs(err, boom)
	s.Equal(1, calls, "MUST NOT retry a non-transient failure")
}

// TestLinearBackoff verifies the wait before each retry grows with the attempt number.
func (s *RetryTestSuite) TestLinearBackoff() {
	p := Policy{MaxAttempts: 3, BaseDelay: 1000 * time.Millisecond}
	s.Equal(1000*time.Millisecond, p.Delay(1))
	s.Equal(2000*time.Millisecond, p.Delay(2))
	s.Equal(3000*time.Millisecond, p.Delay(3))
}

// TestContextCancelsWait verifies that cancellation interrupts the back-off.
//
// GOAL: A cancelled context ends the retry loop without waiting out the delay
//
// TEST SCENARIO: long base delay, cancel after first failure → context.Canceled quickly
func (s *RetryTestSuite) TestContextCancelsWait() {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}

	calls := 0
	start := time.Now()
	err := Run(ctx, p, s.logger, "connect", func(ctx context.Context) error {
		calls++
		cancel()
		return device.ErrBusy
	})

	s.ErrorIs(err, context.Canceled)
	s.Equal(1, calls)
	s.Less(time.Since(start), time.Minute, "MUST NOT wait out the back-off")
}

// TestZeroPolicyUsesDefaults verifies that an empty policy behaves as the default one.
func (s *RetryTestSuite) TestZeroPolicyUsesDefaults() {
	p := Policy{}.normalized()
	s.Equal(DefaultMaxAttempts, p.MaxAttempts)
	s.Equal(DefaultBaseDelay, p.BaseDelay)
	s.Equal(DefaultPolicy().MaxAttempts, 3)
	s.Equal(time.Second, DefaultPolicy().BaseDelay)
}

func TestRetryTestSuite(t *testing.T) {
	suite.Run(t, new(RetryTestSuite))
}
