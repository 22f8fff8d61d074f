package simpletq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFmtLogger_LevelsAndStreams(t *testing.T) {
	var out, errw bytes.Buffer
	l := &FmtLogger{Out: &out, Err: &errw, Min: LevelInfo}

	l.Debugf("hidden %d", 1)
	l.Infof("hello %s", "there")
	l.Warnf("careful")
	l.Errorf("broken: %v", "disk")

	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, out.String(), "[INFO]")
	require.Contains(t, out.String(), "hello there\n")
	require.Contains(t, errw.String(), "[WARN]")
	require.Contains(t, errw.String(), "careful\n")
	require.Contains(t, errw.String(), "broken: disk\n")

	out.Reset()
	l.Min = LevelDebug
	l.Debugf("shown")
	require.Contains(t, out.String(), "[DEBUG]")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "INFO": LevelInfo, "warning": LevelWarn, "error": LevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}
