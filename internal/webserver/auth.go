package webserver

import (
	"net/http"

	"github.com/kestrel-labs/scriptrt/internal/engine/env"
)

// Authenticator resolves the calling Environment (spec §3's immutable
// `E`) from an inbound request. The core engine is gamespace-agnostic about
// *how* a caller is authenticated; the integrator supplies this.
type Authenticator interface {
	Authenticate(r *http.Request) (env.Environment, error)
}

// HeaderAuthenticator is the default Authenticator: reads gamespace/account/
// scopes from fixed request headers, suitable for a deployment that
// terminates real authentication at a reverse proxy and forwards the
// resolved identity downstream — a common split in the retrieval pack's own
// edge-worker examples (request already pre-authenticated by the time it
// reaches the script runtime).
type HeaderAuthenticator struct{}

const (
	headerGamespace = "X-Gamespace-Id"
	headerAccount   = "X-Account-Id"
	headerScopes    = "X-Access-Scopes" // comma-separated
)

func (HeaderAuthenticator) Authenticate(r *http.Request) (env.Environment, error) {
	gamespace := r.Header.Get(headerGamespace)
	if gamespace == "" {
		return env.Environment{}, errMissingGamespace
	}
	return env.Environment{
		GamespaceID:  gamespace,
		AccountID:    r.Header.Get(headerAccount),
		AccessScopes: splitScopes(r.Header.Get(headerScopes)),
	}, nil
}

func splitScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
