package common

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests. Lines written after the test
// has finished are dropped, since background goroutines may
// still be winding down.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string

	mu   sync.Mutex
	done bool
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		return len(d), nil
	}

	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

func (a *testLoggerAdapter) finish() {
	a.mu.Lock()
	a.done = true
	a.mu.Unlock()
}

// NewTestLogger returns a logger that writes through t.Log at the given level.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(adapter.finish)

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = level
	return logger
}

// NewTestEntry returns a debug-level entry tagged with the test name, for
// components that take a *logrus.Entry.
func NewTestEntry(t testing.TB) *logrus.Entry {
	return NewTestLogger(t, logrus.DebugLevel).WithField("test", t.Name())
}
