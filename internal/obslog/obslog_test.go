package obslog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRetainsEntries(t *testing.T) {
	var buf bytes.Buffer
	logger, ring := New(&buf, slog.LevelInfo, 10)

	logger.Info("hello", "key", "value")

	recent := ring.Recent(0)
	require.Len(t, recent, 1)
	require.Equal(t, "hello", recent[0].Message)
	require.Equal(t, "value", recent[0].Attrs["key"])
	require.NotEmpty(t, buf.String())
}

func TestRingCapacityEvicts(t *testing.T) {
	var buf bytes.Buffer
	logger, ring := New(&buf, slog.LevelInfo, 3)

	for i := 0; i < 5; i++ {
		logger.Info("entry")
	}

	require.Len(t, ring.Recent(0), 3)
}

func TestRecentNCapsAtAvailable(t *testing.T) {
	var buf bytes.Buffer
	logger, ring := New(&buf, slog.LevelInfo, 10)
	logger.Info("one")
	logger.Info("two")

	require.Len(t, ring.Recent(100), 2)
	require.Len(t, ring.Recent(1), 1)
}

func TestWithAttrsChildSharesParentRing(t *testing.T) {
	var buf bytes.Buffer
	logger, ring := New(&buf, slog.LevelInfo, 10)

	child := logger.With("gamespace_id", "gs1")
	child.Info("scoped entry")

	recent := ring.Recent(0)
	require.Len(t, recent, 1)
	require.Equal(t, "gs1", recent[0].Attrs["gamespace_id"])
}

func TestWithGroupChildSharesParentRing(t *testing.T) {
	var buf bytes.Buffer
	logger, ring := New(&buf, slog.LevelInfo, 10)

	child := logger.WithGroup("request")
	child.Info("grouped entry")

	require.Len(t, ring.Recent(0), 1)
}
