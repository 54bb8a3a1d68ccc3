package httpclient

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPrivateHostname(t *testing.T) {
	require.True(t, isPrivateHostname(""))
	require.True(t, isPrivateHostname("localhost"))
	require.True(t, isPrivateHostname("127.0.0.1"))
	require.True(t, isPrivateHostname("10.1.2.3"))
	require.True(t, isPrivateHostname("192.168.1.1"))
	require.False(t, isPrivateHostname("8.8.8.8"))
	require.False(t, isPrivateHostname("example.com"))
}

func TestIsPrivateIP(t *testing.T) {
	cases := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"fc00::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"93.184.216.34", false},
	}
	for _, c := range cases {
		require.Equal(t, c.private, isPrivateIP(net.ParseIP(c.ip)), c.ip)
	}
}

func TestNewDefaultsRefuseCrossing(t *testing.T) {
	client := New(Config{})
	require.NotNil(t, client.Transport)
	require.NotNil(t, client.CheckRedirect)
}
