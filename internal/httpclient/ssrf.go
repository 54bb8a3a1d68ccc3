// Package httpclient builds the SSRF-safe *http.Client used by the web.get
// host API method (spec §4.4): DNS resolution and the private-range check
// happen at actual connect time, not just on the pre-parsed hostname, to
// close the DNS-rebinding TOCTOU window. Lifted from the retrieval pack's
// fetch() implementation and adapted from a v8-bound single global client to
// a per-config constructor used once per Build.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config controls request limits enforced across every web.get call issued
// by a Build (spec §6 knobs).
type Config struct {
	Timeout time.Duration
	// MaxResponseBytes is not read by New; web.get caps response bodies at
	// its own fixed 4 MiB.
	MaxResponseBytes int64
	AllowPrivate     bool // tests only; production always false
}

// New returns an *http.Client dialing through the SSRF-safe DialContext and
// refusing redirects into private ranges.
func New(cfg Config) *http.Client {
	dial := safeDialContext
	if cfg.AllowPrivate {
		dial = (&net.Dialer{}).DialContext
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &http.Transport{DialContext: dial},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("web.get: too many redirects")
			}
			if !cfg.AllowPrivate && isPrivateHostname(req.URL.Hostname()) {
				return fmt.Errorf("web.get: redirect to private address is not allowed")
			}
			return nil
		},
	}
}

func isPrivateHostname(hostname string) bool {
	if hostname == "" {
		return true
	}
	if hostname == "localhost" {
		return true
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return isPrivateIP(ip)
	}
	return false
}

// safeDialContext resolves DNS and validates the resolved IP against private
// ranges at connect time, so a DNS answer that changes between the URL
// pre-check and the actual TCP dial cannot smuggle a request to an internal
// address.
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed for %s: %w", host, err)
	}

	var safe net.IPAddr
	found := false
	for _, ip := range ips {
		if !isPrivateIP(ip.IP) {
			safe = ip
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("web.get: target resolves only to private addresses")
	}

	return (&net.Dialer{}).DialContext(ctx, network, net.JoinHostPort(safe.IP.String(), port))
}

var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8", "10.0.0.0/8", "100.64.0.0/10", "127.0.0.0/8",
		"169.254.0.0/16", "172.16.0.0/12", "192.0.0.0/24", "192.0.2.0/24",
		"192.168.0.0/16", "198.18.0.0/15", "198.51.100.0/24", "203.0.113.0/24",
		"240.0.0.0/4", "::1/128", "fc00::/7", "fe80::/10",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("httpclient: invalid CIDR: " + cidr)
		}
		privateRanges = append(privateRanges, n)
	}
}

func isPrivateIP(ip net.IP) bool {
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
