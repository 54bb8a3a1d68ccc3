package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/session"
)

// wsMaxMessageBytes bounds a single inbound frame (spec §6 gives no explicit
// figure; this matches the teacher's worker.maxWSMessageBytes order of
// magnitude for a JSON control-channel message, not a bulk data transfer).
const wsMaxMessageBytes = 1 << 20

// wsRequest is one client->server frame on a session or debug-session
// WebSocket. op selects which field(s) are meaningful, mirroring the
// call/eval/upload/start verbs spec §4.6.2/§4.6.3 describe.
type wsRequest struct {
	ID       int64           `json:"id"`
	Op       string          `json:"op"` // "open" | "call" | "eval" | "upload" | "start" | "close"
	Method   string          `json:"method,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Text     string          `json:"text,omitempty"`
	Filename string          `json:"filename,omitempty"`
	Contents string          `json:"contents,omitempty"`
	Code     int             `json:"code,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// wsResponse is one server->client frame: either a reply to a request ID
// (result/error), or an unsolicited notification (log/debug).
type wsResponse struct {
	ID      int64              `json:"id,omitempty"`
	Op      string             `json:"op"` // "result" | "error" | "log" | "debug"
	Result  any                `json:"result,omitempty"`
	Error   *enginerr.Envelope `json:"error,omitempty"`
	Message string             `json:"message,omitempty"`
}

// wsWriter serializes concurrent writes onto one *websocket.Conn: Call/Eval
// responses happen on the reader goroutine, while log/debug notifications
// can be emitted by host API code running on the worker goroutine at any
// time, so every write goes through this mutex-guarded helper.
type wsWriter struct {
	conn *websocket.Conn
	mu   chan struct{} // 1-buffered, acts as a non-reentrant mutex usable with select
}

func newWSWriter(conn *websocket.Conn) *wsWriter {
	w := &wsWriter{conn: conn, mu: make(chan struct{}, 1)}
	w.mu <- struct{}{}
	return w
}

func (w *wsWriter) send(ctx context.Context, resp wsResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	select {
	case <-w.mu:
	case <-ctx.Done():
		return
	}
	defer func() { w.mu <- struct{}{} }()

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = w.conn.Write(writeCtx, websocket.MessageText, payload)
}

// readLoop reads frames off conn into a channel, the same reader-goroutine-
// into-channel shape the teacher's WebSocketHandler.Bridge uses to decouple
// blocking reads from the select loop driving the session.
func readLoop(ctx context.Context, conn *websocket.Conn) <-chan wsRequest {
	out := make(chan wsRequest, 16)
	go func() {
		defer close(out)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			select {
			case out <- req:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func decodeRawArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

// handleSession implements `WS /session/<app>/<ver>/<class>` (spec §6,
// §4.6.2): the first frame must be an "open" request whose args is the
// constructor argument; subsequent "call" frames are serviced one at a
// time for the session's whole lifetime, per §4.6.2's ordering rule.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.Auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	e.ApplicationName = r.PathValue("app")
	e.ApplicationVersion = r.PathValue("ver")
	className := r.PathValue("class")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session closed")
	conn.SetReadLimit(wsMaxMessageBytes)

	ctx := r.Context()
	out := newWSWriter(conn)

	logSink := func(message string) {
		out.send(ctx, wsResponse{Op: "log", Message: message})
	}

	var sess *session.Session
	requests := readLoop(ctx, conn)

	for req := range requests {
		switch req.Op {
		case "open":
			if sess != nil {
				out.send(ctx, wsResponse{ID: req.ID, Op: "error", Error: envelopeFor(enginerr.NewSessionError(409, "session already open"), s.DebugEnabled)})
				continue
			}
			opened, err := s.Router.OpenSession(ctx, e.GamespaceID, e.ApplicationName, e.ApplicationVersion, className, decodeRawArgs(req.Args), e, logSink, nil)
			if err != nil {
				out.send(ctx, wsResponse{ID: req.ID, Op: "error", Error: envelopeFor(err, s.DebugEnabled)})
				conn.Close(websocket.StatusNormalClosure, "open failed")
				return
			}
			sess = opened
			out.send(ctx, wsResponse{ID: req.ID, Op: "result", Result: true})

		case "call":
			if sess == nil {
				out.send(ctx, wsResponse{ID: req.ID, Op: "error", Error: envelopeFor(enginerr.NewSessionError(409, "session not open"), s.DebugEnabled)})
				continue
			}
			result, err := s.Router.SessionCall(ctx, sess, req.Method, decodeRawArgs(req.Args))
			respondCallResult(ctx, out, req.ID, result, err, s.DebugEnabled)

		case "close":
			if sess != nil {
				s.Router.CloseSession(ctx, sess, req.Code, req.Reason)
			}
			conn.Close(websocket.StatusNormalClosure, "closed")
			return

		default:
			out.send(ctx, wsResponse{ID: req.ID, Op: "error", Error: envelopeFor(enginerr.NewAPIError(400, "unknown op: "+req.Op), s.DebugEnabled)})
		}
	}

	if sess != nil {
		s.Router.CloseSession(context.Background(), sess, 1001, "connection lost")
	}
}

// handleDebugSession implements `WS /debug/<app>/<ver>/<class>` (spec §6,
// §4.6.3): "upload" frames stage source files before "start"; after start,
// "call" and "eval" behave like a normal session plus an expression
// evaluator, and debug-sink output is mirrored back as "debug" notifications.
func (s *Server) handleDebugSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.Auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	className := r.PathValue("class")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "debug session closed")
	conn.SetReadLimit(wsMaxMessageBytes)

	ctx := r.Context()
	out := newWSWriter(conn)

	logSink := func(message string) { out.send(ctx, wsResponse{Op: "log", Message: message}) }
	debugSink := func(message string) { out.send(ctx, wsResponse{Op: "debug", Message: message}) }

	debug := s.Router.NewDebugSession(e.GamespaceID, className)
	requests := readLoop(ctx, conn)

	for req := range requests {
		switch req.Op {
		case "upload":
			if err := debug.Upload(req.Filename, req.Contents); err != nil {
				out.send(ctx, wsResponse{ID: req.ID, Op: "error", Error: envelopeFor(err, s.DebugEnabled)})
				continue
			}
			out.send(ctx, wsResponse{ID: req.ID, Op: "result", Result: true})

		case "start":
			if err := debug.Start(ctx, decodeRawArgs(req.Args), e, logSink, debugSink); err != nil {
				out.send(ctx, wsResponse{ID: req.ID, Op: "error", Error: envelopeFor(err, s.DebugEnabled)})
				conn.Close(websocket.StatusNormalClosure, "start failed")
				return
			}
			out.send(ctx, wsResponse{ID: req.ID, Op: "result", Result: true})

		case "call":
			result, err := debug.Call(ctx, req.Method, decodeRawArgs(req.Args))
			respondCallResult(ctx, out, req.ID, result, err, s.DebugEnabled)

		case "eval":
			result, err := debug.Eval(ctx, req.Text)
			respondCallResult(ctx, out, req.ID, result, err, s.DebugEnabled)

		case "close":
			debug.Close(ctx, req.Code, req.Reason)
			conn.Close(websocket.StatusNormalClosure, "closed")
			return

		default:
			out.send(ctx, wsResponse{ID: req.ID, Op: "error", Error: envelopeFor(enginerr.NewAPIError(400, "unknown op: "+req.Op), s.DebugEnabled)})
		}
	}

	debug.Close(context.Background(), 1001, "connection lost")
}

func respondCallResult(ctx context.Context, out *wsWriter, id int64, result any, err error, debugEnabled bool) {
	if err != nil {
		out.send(ctx, wsResponse{ID: id, Op: "error", Error: envelopeFor(err, debugEnabled)})
		return
	}
	out.send(ctx, wsResponse{ID: id, Op: "result", Result: result})
}

func envelopeFor(err error, debugEnabled bool) *enginerr.Envelope {
	env := enginerr.ToEnvelope(err, debugEnabled)
	return &env
}
