package projectsettings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)

	rec := Settings{
		GamespaceID:    "gs1",
		ApplicationKey: "myapp",
		RepoURL:        "git@example.com:org/myapp.git",
		Branch:         "main",
		CurrentCommit:  "abc123",
	}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "gs1", "myapp")
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestGetServerUsesServerKey(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, Settings{
		GamespaceID:    "gs1",
		ApplicationKey: ServerKey,
		RepoURL:        "git@example.com:org/server.git",
		Branch:         "main",
	}))

	got, err := s.GetServer(ctx, "gs1")
	require.NoError(t, err)
	require.Equal(t, "git@example.com:org/server.git", got.RepoURL)
}

func TestGetMissingReturnsError(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)

	_, err = s.Get(ctx, "gs1", "nope")
	require.Error(t, err)
}
