// Package downstream implements the two external collaborators spec §6
// calls Downstream and MessagePublisher: a generic internal JSON RPC client
// used by every delegating host API method (store.*, profile.*, social.*,
// message.*, promo.*, event.*), and a topic publisher used by
// admin.delete_accounts.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
)

// Client is the default Downstream implementation: one JSON-over-HTTP POST
// per request to <base URL>/<service>/<method>, where the base URL is looked
// up per logical service name.
type Client struct {
	// ServiceURLs maps a logical service name ("store", "profile", "social",
	// "message", "promo", "event", "admin") to its base URL.
	ServiceURLs map[string]string
	HTTP        *http.Client
}

// New returns a Client with a sane default *http.Client if hc is nil.
func New(serviceURLs map[string]string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{ServiceURLs: serviceURLs, HTTP: hc}
}

// Request implements Downstream.request(service, method, args, timeout):
// generic internal RPC, json in, json out. Any non-2xx response is
// translated to *enginerr.InternalError carrying the response body, which
// bridge.RejectionValue (spec §7) turns into a script-visible rejection with
// message "Internal error: "+body, surfacing as an APIError if uncaught.
func (c *Client) Request(ctx context.Context, service, method string, args map[string]any, timeout time.Duration) (any, error) {
	base, ok := c.ServiceURLs[service]
	if !ok {
		return nil, enginerr.NewInternalError(500, fmt.Sprintf("downstream: unknown service %q", service))
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u, err := url.JoinPath(base, service, method)
	if err != nil {
		return nil, enginerr.NewInternalError(500, fmt.Sprintf("downstream: building url: %s", err))
	}

	body, err := json.Marshal(args)
	if err != nil {
		return nil, enginerr.NewInternalError(500, fmt.Sprintf("downstream: marshalling args: %s", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, enginerr.NewInternalError(500, fmt.Sprintf("downstream: building request: %s", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, enginerr.NewInternalError(500, fmt.Sprintf("%s.%s: %s", service, method, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, enginerr.NewInternalError(500, fmt.Sprintf("downstream: reading response: %s", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, enginerr.NewInternalError(resp.StatusCode, string(respBody))
	}

	if len(respBody) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, enginerr.NewInternalError(500, fmt.Sprintf("downstream: decoding response: %s", err))
	}
	return result, nil
}

// Publisher is the default MessagePublisher implementation: publishes by
// POSTing {topic, payload} to a configured broker ingress URL. A real
// deployment would instead hand this off to a message broker client; the
// pack's retrieved repos carry no broker SDK usage to ground one on (see
// DESIGN.md), so this stays an HTTP sink consistent with Client above.
type Publisher struct {
	URL  string
	HTTP *http.Client
}

func NewPublisher(url string, hc *http.Client) *Publisher {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &Publisher{URL: url, HTTP: hc}
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	if p.URL == "" {
		return nil
	}
	body, err := json.Marshal(map[string]any{"topic": topic, "payload": payload})
	if err != nil {
		return enginerr.NewInternalError(500, fmt.Sprintf("publisher: marshalling: %s", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return enginerr.NewInternalError(500, fmt.Sprintf("publisher: building request: %s", err))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return enginerr.NewInternalError(500, fmt.Sprintf("publisher: %s", err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return enginerr.NewInternalError(resp.StatusCode, string(body))
	}
	return nil
}

// ConfigSource implements hostapi.ConfigSource against the "config"
// downstream service, treating config.get the same as every other
// store.*/profile.*/social.* delegate: one Client.Request call per lookup,
// addressed by (app_name, app_version).
type ConfigSource struct {
	Client *Client
}

func (c *ConfigSource) GetConfig(ctx context.Context, appName, appVersion string) (any, error) {
	return c.Client.Request(ctx, "config", "get", map[string]any{
		"app_name":    appName,
		"app_version": appVersion,
	}, 10*time.Second)
}
