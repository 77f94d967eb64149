package warnlog_test

import (
	"testing"

	"github.com/accented-ai/semq/internal/warnlog"
)

func TestDebugfSilentByDefault(t *testing.T) {
	l := warnlog.New()
	// EnableDebug not called; Debugf must be a no-op. We can't easily
	// swap the writer (unexported), so this only exercises that calling
	// it does not panic.
	l.Debugf("should not appear: %d", 1)
}

func TestWarnfDoesNotPanicWithArgs(t *testing.T) {
	l := warnlog.New()
	l.UnsupportedFeature("buildPercentile", "mysql")
	l.InvalidInputValue("Orders.status", "ab\x00c")
}
