package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", c.ListenAddr)
	require.Equal(t, 10, c.JSCallTimeoutSeconds)
	require.False(t, c.DebugEnabled)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	c, err := Load([]string{"-listen", ":9090", "-js-workers", "4", "-debug"})
	require.NoError(t, err)
	require.Equal(t, ":9090", c.ListenAddr)
	require.Equal(t, 4, c.JSWorkers)
	require.True(t, c.DebugEnabled)
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("SCRIPTRT_LISTEN", ":7777")
	t.Setenv("SCRIPTRT_JS_CALL_TIMEOUT", "25")
	t.Setenv("SCRIPTRT_DEBUG", "true")

	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":7777", c.ListenAddr)
	require.Equal(t, 25, c.JSCallTimeoutSeconds)
	require.True(t, c.DebugEnabled)
}

func TestLoadFlagsTakePriorityOverEnv(t *testing.T) {
	t.Setenv("SCRIPTRT_LISTEN", ":7777")

	c, err := Load([]string{"-listen", ":6000"})
	require.NoError(t, err)
	require.Equal(t, ":6000", c.ListenAddr)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"-not-a-real-flag"})
	require.Error(t, err)
}
