package testutils

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// TestHelper carries a debug logger whose entries are captured instead of printed.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Logs   *test.Hook
}

func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(io.Discard)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Logs:   test.NewLocal(logger),
	}
}

// Logged reports whether an entry at level with msg was captured.
func (h *TestHelper) Logged(level logrus.Level, msg string) bool {
	for _, e := range h.Logs.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}
