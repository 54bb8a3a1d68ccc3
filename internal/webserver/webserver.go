// Package webserver wires the request router (internal/engine/router) onto
// the four wire endpoints spec §6 describes: two plain HTTP POST endpoints
// for one-shot calls, and two WebSocket endpoints (session, debug session)
// handled in session_ws.go.
package webserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/router"
)

var errMissingGamespace = errors.New("webserver: missing gamespace identity")

// Server wires a Router onto net/http, implementing spec §6's four logical
// endpoints.
type Server struct {
	Router       *router.Router
	Auth         Authenticator
	Log          *slog.Logger
	DebugEnabled bool
}

// New builds a Server with the given Router; auth defaults to
// HeaderAuthenticator if nil.
func New(r *router.Router, auth Authenticator, log *slog.Logger, debugEnabled bool) *Server {
	if auth == nil {
		auth = HeaderAuthenticator{}
	}
	return &Server{Router: r, Auth: auth, Log: log, DebugEnabled: debugEnabled}
}

// Handler builds the http.Handler exposing every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call/{app}/{ver}/{method}", s.handleCall)
	mux.HandleFunc("POST /server/{gamespace}/{method}", s.handleServerCall)
	mux.HandleFunc("GET /session/{app}/{ver}/{class}", s.handleSession)
	mux.HandleFunc("GET /debug/{app}/{ver}/{class}", s.handleDebugSession)
	return mux
}

// decodeArgs reads the request body as the single JSON `args` value spec
// §6 describes ("body `args` is a JSON value"). An empty body decodes to
// nil, matching a call with no meaningful argument payload.
func decodeArgs(r *http.Request) (any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var args any
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// handleCall implements `POST /call/<app>/<ver>/<method>` (spec §6, §4.6.1).
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	e, err := s.Auth.Authenticate(r)
	if err != nil {
		writeError(w, enginerr.NewAPIError(401, err.Error()), s.DebugEnabled)
		return
	}
	e.ApplicationName = r.PathValue("app")
	e.ApplicationVersion = r.PathValue("ver")

	args, err := decodeArgs(r)
	if err != nil {
		writeError(w, enginerr.NewAPIError(400, "invalid JSON body: "+err.Error()), s.DebugEnabled)
		return
	}

	result, err := s.Router.Call(r.Context(), e.GamespaceID, e.ApplicationName, e.ApplicationVersion, r.PathValue("method"), args, e)
	if err != nil {
		s.logCallError(r, err)
		writeError(w, err, s.DebugEnabled)
		return
	}
	writeResult(w, result)
}

// handleServerCall implements `POST /server/<gamespace>/<method>` (spec §6,
// §4.8): privileged one-shot call against the Server Code build. The
// gamespace comes from the path, not from header identity, since this
// endpoint addresses a specific gamespace's server project directly;
// Authenticate is still required to establish the caller's access_scopes
// for required_scope checks.
func (s *Server) handleServerCall(w http.ResponseWriter, r *http.Request) {
	e, err := s.Auth.Authenticate(r)
	if err != nil {
		writeError(w, enginerr.NewAPIError(401, err.Error()), s.DebugEnabled)
		return
	}
	gamespace := r.PathValue("gamespace")
	e.GamespaceID = gamespace

	args, err := decodeArgs(r)
	if err != nil {
		writeError(w, enginerr.NewAPIError(400, "invalid JSON body: "+err.Error()), s.DebugEnabled)
		return
	}

	result, err := s.Router.CallServer(r.Context(), gamespace, r.PathValue("method"), args, e)
	if err != nil {
		s.logCallError(r, err)
		writeError(w, err, s.DebugEnabled)
		return
	}
	writeResult(w, result)
}

func (s *Server) logCallError(r *http.Request, err error) {
	if s.Log == nil {
		return
	}
	s.Log.Warn("call failed", "path", r.URL.Path, "error", err)
}
