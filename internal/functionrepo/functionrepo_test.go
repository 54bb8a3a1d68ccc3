package functionrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateImports(t *testing.T) {
	require.True(t, ValidateImports(nil))
	require.True(t, ValidateImports([]string{"helper", "util_2"}))
	require.False(t, ValidateImports([]string{"bad-name"}))
	require.False(t, ValidateImports([]string{"has space"}))
}

func TestParseImports(t *testing.T) {
	require.Nil(t, ParseImports(""))
	require.Equal(t, []string{"a", "b"}, ParseImports("a,b"))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func TestPutBindListAndGetWithDeps(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, "gs1", "helper", "function helper(){return 1}", nil))
	require.NoError(t, s.Put(ctx, "gs1", "main", "function main(){return helper()}", []string{"helper"}))
	require.NoError(t, s.Bind(ctx, "gs1", "myapp", "main"))

	fns, err := s.List(ctx, "gs1")
	require.NoError(t, err)
	require.Len(t, fns, 2)

	deps, err := s.GetWithDeps(ctx, "gs1", "main", "myapp")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	require.Equal(t, "helper", deps[0].Name)
	require.Equal(t, "main", deps[1].Name)
}

func TestGetWithDepsRequiresBindingWhenAppGiven(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, "gs1", "main", "function main(){}", nil))

	_, err := s.GetWithDeps(ctx, "gs1", "main", "unbound-app")
	require.Error(t, err)
}

func TestGetWithDepsServerPathSkipsBinding(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, "gs1", "main", "function main(){}", nil))

	deps, err := s.GetWithDeps(ctx, "gs1", "main", "")
	require.NoError(t, err)
	require.Len(t, deps, 1)
}

func TestPutRejectsInvalidImports(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Put(ctx, "gs1", "main", "code", []string{"bad name"})
	require.Error(t, err)
}
