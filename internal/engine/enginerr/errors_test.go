package enginerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsCallMethodAllowed(t *testing.T) {
	require.True(t, IsCallMethodAllowed("doThing"))
	require.False(t, IsCallMethodAllowed(""))
	require.False(t, IsCallMethodAllowed("_private"))
	require.False(t, IsCallMethodAllowed("release"))
	require.False(t, IsCallMethodAllowed("released"))
	require.False(t, IsCallMethodAllowed("init"))
}

func TestIsSessionMethodAllowed(t *testing.T) {
	require.True(t, IsSessionMethodAllowed("doThing"))
	require.True(t, IsSessionMethodAllowed("released"))
	require.False(t, IsSessionMethodAllowed(""))
	require.False(t, IsSessionMethodAllowed("_private"))
	require.False(t, IsSessionMethodAllowed("release"))
}

func TestToEnvelopeUsesCodedCode(t *testing.T) {
	err := NewAPIError(418, "teapot")
	env := ToEnvelope(err, false)
	require.Equal(t, 418, env.Code)
	require.Equal(t, "teapot", env.Message)
	require.Empty(t, env.Stack)
}

func TestToEnvelopeDefaultsTo500(t *testing.T) {
	env := ToEnvelope(&NoSuchMethod{Name: "foo"}, false)
	require.Equal(t, 404, env.Code)

	plain := ToEnvelope(errPlain{}, false)
	require.Equal(t, 500, plain.Code)
}

func TestToEnvelopeIncludesStackOnlyWhenDebugEnabled(t *testing.T) {
	err := NewExecutionError(500, "boom", "stacktrace-here")

	withoutDebug := ToEnvelope(err, false)
	require.Empty(t, withoutDebug.Stack)

	withDebug := ToEnvelope(err, true)
	require.Equal(t, "stacktrace-here", withDebug.Stack)
}

func TestToEnvelopeNilError(t *testing.T) {
	env := ToEnvelope(nil, true)
	require.Equal(t, 200, env.Code)
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, 404, HTTPStatus(404))
	require.Equal(t, 500, HTTPStatus(200))
	require.Equal(t, 500, HTTPStatus(600))
	require.Equal(t, 400, HTTPStatus(400))
}

type errPlain struct{}

func (errPlain) Error() string { return "plain" }
