package main

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kestrel-labs/scriptrt/internal/engine/env"
	"github.com/kestrel-labs/scriptrt/internal/engine/router"
)

// textResult and errResult mirror the pack's own MCP tool-result shape:
// plain text content, with IsError set on failure rather than a Go error
// (which the SDK would otherwise surface as a protocol-level failure).
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}}, IsError: true}
}

// addToolHelper registers a tool whose handler returns a JSON-marshalable
// result or an error, without each call site repeating the CallToolResult
// boilerplate.
func addToolHelper[In any](s *mcp.Server, tool *mcp.Tool, handler func(ctx context.Context, args In) (any, error)) {
	mcp.AddTool(s, tool, func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, any, error) {
		result, err := handler(ctx, args)
		if err != nil {
			return errResult(err), nil, nil
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(string(encoded)), nil, nil
	})
}

// CallArgs is the argument shape for scriptrt_call / scriptrt_call_server /
// scriptrt_call_function: the target plus the caller identity and raw JSON
// call arguments spec §3's Environment and call contract need.
type CallArgs struct {
	Gamespace string          `json:"gamespace" jsonschema:"Gamespace ID"`
	App       string          `json:"app,omitempty" jsonschema:"Application name (omit for scriptrt_call_server)"`
	Version   string          `json:"version,omitempty" jsonschema:"Application version"`
	Method    string          `json:"method" jsonschema:"Function name to call"`
	Account   string          `json:"account,omitempty" jsonschema:"Caller account ID"`
	Scopes    []string        `json:"scopes,omitempty" jsonschema:"Caller access scopes"`
	Args      json.RawMessage `json:"args,omitempty" jsonschema:"JSON value passed as the call's single argument"`
}

func decodeCallArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

func environmentFor(a CallArgs) env.Environment {
	return env.Environment{
		GamespaceID:        a.Gamespace,
		ApplicationName:    a.App,
		ApplicationVersion: a.Version,
		AccountID:          a.Account,
		AccessScopes:       a.Scopes,
	}
}

// RegisterCallTools registers the three one-shot call surfaces the router
// exposes, each as its own MCP tool.
func RegisterCallTools(s *mcp.Server, r *router.Router) {
	addToolHelper(s, &mcp.Tool{
		Name:        "scriptrt_call",
		Description: "Call an allow_call function in an application's build (spec §4.6.1)",
	}, func(ctx context.Context, a CallArgs) (any, error) {
		return r.Call(ctx, a.Gamespace, a.App, a.Version, a.Method, decodeCallArgs(a.Args), environmentFor(a))
	})

	addToolHelper(s, &mcp.Tool{
		Name:        "scriptrt_call_server",
		Description: "Call an allow_call function in a gamespace's privileged Server Code build (spec §4.8)",
	}, func(ctx context.Context, a CallArgs) (any, error) {
		return r.CallServer(ctx, a.Gamespace, a.Method, decodeCallArgs(a.Args), environmentFor(a))
	})

	addToolHelper(s, &mcp.Tool{
		Name:        "scriptrt_call_function",
		Description: "Call a standalone FunctionRepo function bound to an application (spec §4.7)",
	}, func(ctx context.Context, a CallArgs) (any, error) {
		return r.CallFunction(ctx, a.Gamespace, a.App, a.Method, decodeCallArgs(a.Args), environmentFor(a))
	})
}
