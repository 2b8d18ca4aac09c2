package control_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/control"
)

func TestMetricsRegistry(t *testing.T) {
	mr := control.NewMetricsRegistry()
	mr.Set("loop.x.iterations", int64(3))
	mr.Add("loop.x.timers", 2)
	mr.Add("loop.x.timers", 3)

	v, ok := mr.Get("loop.x.timers")
	require.True(t, ok)
	require.EqualValues(t, 5, v)

	snap := mr.GetSnapshot()
	require.EqualValues(t, int64(3), snap["loop.x.iterations"])
	require.False(t, mr.Updated().IsZero())

	_, ok = mr.Get("missing")
	require.False(t, ok)
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("a", func() any { return 1 })
	dp.RegisterProbe("b", func() any { return "two" })
	state := dp.DumpState()
	require.Equal(t, 1, state["a"])
	require.Equal(t, "two", state["b"])

	dp.UnregisterProbe("a")
	require.NotContains(t, dp.DumpState(), "a")
}

func TestLoggerDefaultAndReplace(t *testing.T) {
	require.NotNil(t, control.Logger())

	custom := logrus.New()
	control.SetLogger(custom)
	require.Same(t, custom, control.Logger())

	control.SetLogger(nil)
	require.NotNil(t, control.Logger())
	require.NotSame(t, custom, control.Logger())
}
