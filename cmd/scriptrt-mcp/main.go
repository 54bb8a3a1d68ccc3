// Command scriptrt-mcp exposes the one-shot call path (spec §4.6.1) as an
// MCP tool, for agent-driven invocation during development: point it at a
// running deployment's external collaborators and an LLM client can call
// any app's allow_call functions directly, without going through HTTP.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kestrel-labs/scriptrt/internal/config"
	"github.com/kestrel-labs/scriptrt/internal/downstream"
	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/router"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/functionrepo"
	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("scriptrt-mcp: loading config: %v", err)
	}

	r, err := buildRouter(cfg)
	if err != nil {
		log.Fatalf("scriptrt-mcp: %v", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "scriptrt",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		Instructions: "scriptrt-mcp exposes a scriptrt deployment's allow_call functions " +
			"and Server Code as MCP tools, for agent-driven invocation during development. " +
			"Tools are prefixed with scriptrt_ for clear namespacing.",
	})

	RegisterCallTools(server, r)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("scriptrt-mcp: server failed: %v", err)
	}
}

// buildRouter wires the same external collaborators cmd/scriptrtd does,
// since this tool talks to the engine in-process rather than over HTTP.
func buildRouter(cfg *config.Config) (*router.Router, error) {
	pool, err := worker.NewPool(cfg.JSWorkers, 64, nil)
	if err != nil {
		return nil, err
	}

	settings, err := projectsettings.Open(cfg.ProjectSettingsDSN)
	if err != nil {
		return nil, err
	}
	functions, err := functionrepo.Open(cfg.FunctionRepoDSN)
	if err != nil {
		return nil, err
	}
	source := sourcestore.NewGitStore(cfg.GitRootDir, func(gamespace, project string) string {
		s, err := settings.Get(context.Background(), gamespace, project)
		if err != nil {
			return ""
		}
		return s.RepoURL
	})

	downstreamClient := downstream.New(nil, nil)

	return router.New(router.Options{
		Pool:        pool,
		Settings:    settings,
		Source:      source,
		Functions:   functions,
		Downstream:  downstreamClient,
		Config:      &downstream.ConfigSource{Client: downstreamClient},
		Precompile:  build.NewPrecompileCache(),
		CallTimeout: time.Duration(cfg.JSCallTimeoutSeconds) * time.Second,
	}), nil
}
