// Package config holds the server's configuration knobs (spec §6), read
// from flags with environment-variable fallback. Following the teacher's
// own internal/config discipline of avoiding a heavyweight configuration
// framework, this stays a flat struct and a hand-rolled flag/env loader —
// adapted from a CLI tool's per-command config file to a daemon's
// flags-plus-env convention, since a headless server's knobs are
// operator-supplied at startup, not edited interactively.
package config

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// Config is every knob spec §6 names, plus the ambient wiring (listen
// address, external collaborator DSNs/URLs) a runnable daemon needs.
type Config struct {
	// JSWorkers is the worker pool size (spec §6 js_workers, default =
	// CPU count).
	JSWorkers int
	// JSCallTimeoutSeconds is the per-call host-side cap (spec §6
	// js_call_timeout, default 10).
	JSCallTimeoutSeconds int
	// JSCompileWorkers bounds pre-compile parallelism (spec §6
	// js_compile_workers, default CPU count).
	JSCompileWorkers int
	// BuildIdleReleaseSeconds is the idle window before build destruction
	// (spec §6 build_idle_release_seconds, default 30).
	BuildIdleReleaseSeconds int
	// HandlerCacheCapacity/TTLSeconds size the per-handler cache (spec §6,
	// default 10/60).
	HandlerCacheCapacity    int
	HandlerCacheTTLSeconds  int
	// FunctionCodeCacheCapacity/TTLSeconds size the saved_code precompile
	// cache (spec §6, default 64/60).
	FunctionCodeCacheCapacity   int
	FunctionCodeCacheTTLSeconds int

	// ListenAddr is the HTTP/WebSocket bind address.
	ListenAddr string
	// DebugEnabled controls whether error envelopes carry a stack trace
	// (spec §6 "stack present only when debug is enabled").
	DebugEnabled bool

	// GitRootDir is SourceStore's local clone root.
	GitRootDir string
	// ProjectSettingsDSN/FunctionRepoDSN are the SQLite paths backing
	// ProjectSettings and FunctionRepo.
	ProjectSettingsDSN string
	FunctionRepoDSN    string
	// MessagePublisherURL is the MessagePublisher sink (empty disables it).
	MessagePublisherURL string
}

// Default returns a Config with every spec §6 default applied.
func Default() *Config {
	n := runtime.NumCPU()
	return &Config{
		JSWorkers:                   n,
		JSCallTimeoutSeconds:        10,
		JSCompileWorkers:            n,
		BuildIdleReleaseSeconds:     30,
		HandlerCacheCapacity:        10,
		HandlerCacheTTLSeconds:      60,
		FunctionCodeCacheCapacity:   64,
		FunctionCodeCacheTTLSeconds: 60,
		ListenAddr:                  ":8080",
		GitRootDir:                  "./data/repos",
		ProjectSettingsDSN:          "./data/project_settings.db",
		FunctionRepoDSN:             "./data/functions.db",
	}
}

// Load parses flags (falling back to SCRIPTRT_* environment variables for
// any flag not explicitly passed) into a Config seeded with Default().
func Load(args []string) (*Config, error) {
	c := Default()
	fs := flag.NewFlagSet("scriptrtd", flag.ContinueOnError)

	fs.IntVar(&c.JSWorkers, "js-workers", envInt("SCRIPTRT_JS_WORKERS", c.JSWorkers), "worker pool size")
	fs.IntVar(&c.JSCallTimeoutSeconds, "js-call-timeout", envInt("SCRIPTRT_JS_CALL_TIMEOUT", c.JSCallTimeoutSeconds), "per-call timeout, seconds")
	fs.IntVar(&c.JSCompileWorkers, "js-compile-workers", envInt("SCRIPTRT_JS_COMPILE_WORKERS", c.JSCompileWorkers), "pre-compile parallelism")
	fs.IntVar(&c.BuildIdleReleaseSeconds, "build-idle-release-seconds", envInt("SCRIPTRT_BUILD_IDLE_RELEASE_SECONDS", c.BuildIdleReleaseSeconds), "idle window before build destruction")
	fs.IntVar(&c.HandlerCacheCapacity, "handler-cache-capacity", envInt("SCRIPTRT_HANDLER_CACHE_CAPACITY", c.HandlerCacheCapacity), "per-handler cache capacity")
	fs.IntVar(&c.HandlerCacheTTLSeconds, "handler-cache-ttl-seconds", envInt("SCRIPTRT_HANDLER_CACHE_TTL_SECONDS", c.HandlerCacheTTLSeconds), "per-handler cache TTL, seconds")
	fs.IntVar(&c.FunctionCodeCacheCapacity, "function-code-cache-capacity", envInt("SCRIPTRT_FUNCTION_CODE_CACHE_CAPACITY", c.FunctionCodeCacheCapacity), "saved_code cache capacity")
	fs.IntVar(&c.FunctionCodeCacheTTLSeconds, "function-code-cache-ttl-seconds", envInt("SCRIPTRT_FUNCTION_CODE_CACHE_TTL_SECONDS", c.FunctionCodeCacheTTLSeconds), "saved_code cache TTL, seconds")
	fs.StringVar(&c.ListenAddr, "listen", envString("SCRIPTRT_LISTEN", c.ListenAddr), "HTTP/WebSocket bind address")
	fs.BoolVar(&c.DebugEnabled, "debug", envBool("SCRIPTRT_DEBUG", c.DebugEnabled), "include stack traces in error envelopes")
	fs.StringVar(&c.GitRootDir, "git-root", envString("SCRIPTRT_GIT_ROOT", c.GitRootDir), "local clone root for SourceStore")
	fs.StringVar(&c.ProjectSettingsDSN, "project-settings-db", envString("SCRIPTRT_PROJECT_SETTINGS_DB", c.ProjectSettingsDSN), "ProjectSettings SQLite path")
	fs.StringVar(&c.FunctionRepoDSN, "function-repo-db", envString("SCRIPTRT_FUNCTION_REPO_DB", c.FunctionRepoDSN), "FunctionRepo SQLite path")
	fs.StringVar(&c.MessagePublisherURL, "message-publisher-url", envString("SCRIPTRT_MESSAGE_PUBLISHER_URL", c.MessagePublisherURL), "MessagePublisher sink URL, empty disables publishing")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}
	return c, nil
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
