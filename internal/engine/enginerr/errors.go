// Package enginerr defines the error taxonomy shared by the build, session,
// and router layers of the execution engine, and the rules for turning any
// of them into the wire error envelope described by the spec.
package enginerr

import (
	"fmt"
	"time"
)

// DefaultMicroTimeout bounds any single synchronous JS stretch — a one-shot
// call's initial apply, a session method call, an eval, or a host-posted
// resolve/reject continuation — independent of the caller's overall call
// timeout (spec §5). A script wedged in e.g. `while(true){}` is interrupted
// at this limit rather than tying up its worker for the full call timeout.
const DefaultMicroTimeout = 500 * time.Millisecond

// Coded is implemented by every error kind the engine produces so the router
// can convert any of them to an envelope without a type switch per caller.
type Coded interface {
	error
	Code() int
}

// Blacklist is the fixed set of method names that can never be dispatched as
// a one-shot call, regardless of allow_call. Fixed in one place per the
// spec's open question on blacklist variance between historical versions.
var Blacklist = map[string]bool{
	"released": true,
	"release":  true,
	"init":     true,
}

// SessionBlacklist is the fixed set of method names that can never be
// dispatched as a session call. "released" is not in it: the engine invokes
// released itself on release, and IsSessionMethodAllowed also lets a client
// call it; only names starting with "_" or equal to "release" are rejected.
var SessionBlacklist = map[string]bool{
	"release": true,
}

// IsCallMethodAllowed reports whether name may be dispatched as a one-shot
// call method name, before any allow_call check.
func IsCallMethodAllowed(name string) bool {
	if name == "" || name[0] == '_' {
		return false
	}
	return !Blacklist[name]
}

// IsSessionMethodAllowed reports whether name may be dispatched as a session
// method call, before checking the instance actually has the method.
func IsSessionMethodAllowed(name string) bool {
	if name == "" || name[0] == '_' {
		return false
	}
	return !SessionBlacklist[name]
}

// BuildError is a failure materializing or compiling a build.
type BuildError struct {
	code int
	msg  string
}

func NewBuildError(code int, msg string) *BuildError { return &BuildError{code, msg} }
func (e *BuildError) Error() string                  { return fmt.Sprintf("build error %d: %s", e.code, e.msg) }
func (e *BuildError) Code() int                      { return e.code }

// NoSuchMethod is a structural lookup failure for a one-shot call target.
type NoSuchMethod struct{ Name string }

func (e *NoSuchMethod) Error() string { return fmt.Sprintf("no such method: %s", e.Name) }
func (e *NoSuchMethod) Code() int     { return 404 }

// NoSuchClass is a structural lookup failure for a session class.
type NoSuchClass struct{ Name string }

func (e *NoSuchClass) Error() string { return fmt.Sprintf("no such class: %s", e.Name) }
func (e *NoSuchClass) Code() int     { return 404 }

// SessionError is a session lifecycle violation.
type SessionError struct {
	code int
	msg  string
}

func NewSessionError(code int, msg string) *SessionError { return &SessionError{code, msg} }
func (e *SessionError) Error() string                    { return e.msg }
func (e *SessionError) Code() int                        { return e.code }

// ExecutionError is any JS-side failure not carrying an explicit code.
type ExecutionError struct {
	code  int
	msg   string
	Stack string
}

func NewExecutionError(code int, msg, stack string) *ExecutionError {
	return &ExecutionError{code: code, msg: msg, Stack: stack}
}
func (e *ExecutionError) Error() string { return e.msg }
func (e *ExecutionError) Code() int     { return e.code }

// APIError is user-thrown via the in-JS Error(code, message) constructor, or
// a translated downstream failure. The code passes through unchanged.
type APIError struct {
	code int
	msg  string
}

func NewAPIError(code int, msg string) *APIError { return &APIError{code, msg} }
func (e *APIError) Error() string                { return e.msg }
func (e *APIError) Code() int                    { return e.code }

// TerminationError indicates the worker's isolate was interrupted (micro- or
// call-timeout). bridge.ClassifyException converts it to an APIError(408,
// ...) before it reaches a caller.
type TerminationError struct{ Reason string }

func (e *TerminationError) Error() string { return "script execution terminated: " + e.Reason }
func (e *TerminationError) Code() int     { return 408 }

// WorkerBusy indicates a worker's bounded job queue was full.
type WorkerBusy struct{ Worker string }

func (e *WorkerBusy) Error() string { return "worker busy: " + e.Worker }
func (e *WorkerBusy) Code() int     { return 500 }

// InternalError is a downstream microservice failure. bridge.RejectionValue
// rejects the script's promise with its code and the message
// "Internal error: "+body, which surfaces as an APIError if uncaught.
type InternalError struct {
	code int
	body string
}

func NewInternalError(code int, body string) *InternalError { return &InternalError{code, body} }
func (e *InternalError) Error() string                       { return e.body }
func (e *InternalError) Code() int                            { return e.code }

// Envelope is the wire representation of any engine error.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ToEnvelope converts any error into the wire envelope. Errors implementing
// Coded keep their code; anything else is classified 500. debugEnabled
// controls whether a stack trace (if the underlying error carries one) is
// included.
func ToEnvelope(err error, debugEnabled bool) Envelope {
	if err == nil {
		return Envelope{Code: 200, Message: ""}
	}
	env := Envelope{Code: 500, Message: err.Error()}
	if c, ok := err.(Coded); ok {
		env.Code = c.Code()
	}
	if debugEnabled {
		if ee, ok := err.(*ExecutionError); ok {
			env.Stack = ee.Stack
		}
	}
	return env
}

// HTTPStatus maps an envelope code to the HTTP status line that should carry
// it: the code itself when in [400,600), else 500.
func HTTPStatus(code int) int {
	if code >= 400 && code < 600 {
		return code
	}
	return 500
}
