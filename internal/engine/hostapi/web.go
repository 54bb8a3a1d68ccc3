package hostapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
)

// webGetResult is the shape of web.get's resolved value: status plus body.
// Built as a map rather than a tagged struct because goja's default
// reflection export uses the literal Go field name, not the json tag, so a
// struct would surface as {Status, Body} in script instead of {status, body}.
func webGetResult(status int, body string) map[string]any {
	return map[string]any{"status": status, "body": body}
}

// jsWeb implements the web namespace: web.get(url, headers?). Concurrent
// calls for the identical URL share one underlying HTTP request
// (singleflight, spec §4.4 "deduplicates concurrent identical URLs").
func (s *Surface) jsWeb(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		url := call.Argument(0).String()
		headers := map[string]string{}
		if hv := call.Argument(1); hv != nil && !goja.IsUndefined(hv) {
			if m, ok := hv.Export().(map[string]any); ok {
				for k, v := range m {
					headers[k] = fmt.Sprint(v)
				}
			}
		}

		return bridge.Async(s.Worker, vm, func() (any, error) {
			v, err, _ := s.inFlightGet.Do(singleflightKey(url, headers), func() (any, error) {
				return s.doGet(url, headers)
			})
			if err != nil {
				return nil, err
			}
			return v, nil
		})
	})
	return obj
}

func singleflightKey(url string, headers map[string]string) string {
	var b strings.Builder
	b.WriteString(url)
	for k, v := range headers {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String()
}

func (s *Surface) doGet(url string, headers map[string]string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, enginerr.NewAPIError(400, err.Error())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, enginerr.NewAPIError(502, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, enginerr.NewAPIError(502, err.Error())
	}

	if resp.StatusCode >= 400 {
		return nil, enginerr.NewAPIError(resp.StatusCode, string(body))
	}
	return webGetResult(resp.StatusCode, string(body)), nil
}
