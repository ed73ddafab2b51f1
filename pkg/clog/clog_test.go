package clog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	bytes.Buffer
	closed bool
}

func (b *nopCloser) Close() error {
	b.closed = true
	return nil
}

func TestContextRouting(t *testing.T) {
	global := &nopCloser{}
	sweep := &nopCloser{}
	l := NewContextLogger(global)

	l.AddLoggingContext(SweepCtx, sweep)
	l.UsingCtx(SweepCtx).Infof("evicted %s", "a/b")
	l.UsingCtx(ScanCtx).Info("scanned")
	l.Global().Info("started")

	require.Contains(t, sweep.String(), "evicted a/b")
	require.NotContains(t, global.String(), "evicted")
	require.Contains(t, global.String(), "scanned")
	require.Contains(t, global.String(), "ctx=scan")

	started := ""
	for _, line := range strings.Split(global.String(), "\n") {
		if strings.Contains(line, "started") {
			started = line
		}
	}
	require.NotEmpty(t, started)
	require.NotContains(t, started, "ctx=")

	l.RemoveLoggingContext(SweepCtx)
	require.True(t, sweep.closed)

	l.UsingCtx(SweepCtx).Info("after removal")
	require.Contains(t, global.String(), "after removal")
}

func TestSetLevel(t *testing.T) {
	global := &nopCloser{}
	l := NewContextLogger(global)

	l.Global().Debug("hidden")
	require.Empty(t, global.String())

	require.NoError(t, l.SetLevelFromString(GlobalLoggerCtx, "debug"))
	l.Global().Debug("shown")
	require.Contains(t, global.String(), "shown")

	require.Error(t, l.SetLevelFromString(GlobalLoggerCtx, "chatty"))

	main := &nopCloser{}
	l.AddLoggingContext(MainCtx, main)
	l.SetLevel(MainCtx, log.ErrorLevel)
	l.UsingCtx(MainCtx).Info("quiet")
	require.Empty(t, main.String())
}

func TestFileLoggingContext(t *testing.T) {
	l := NewContextLogger(&nopCloser{})
	path, err := l.AddFileLoggingContext("run-1", t.TempDir())
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "run-1.log"))

	l.UsingCtx("run-1").Info("hello")
	l.RemoveLoggingContext("run-1")
}
