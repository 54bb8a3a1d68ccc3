// Command scriptrtd runs the script execution server: the HTTP/WebSocket
// front door (internal/webserver) wired to the engine's request router
// (internal/engine/router) and its external collaborators.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrel-labs/scriptrt/internal/config"
	"github.com/kestrel-labs/scriptrt/internal/downstream"
	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/router"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/functionrepo"
	"github.com/kestrel-labs/scriptrt/internal/obslog"
	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
	"github.com/kestrel-labs/scriptrt/internal/webserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "scriptrtd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, _ := obslog.New(os.Stderr, slog.LevelInfo, 1000)
	slog.SetDefault(logger)

	pool, err := worker.NewPool(cfg.JSWorkers, 64, nil)
	if err != nil {
		return fmt.Errorf("starting worker pool: %w", err)
	}
	defer pool.Shutdown(true)

	settings, err := projectsettings.Open(cfg.ProjectSettingsDSN)
	if err != nil {
		return fmt.Errorf("opening project settings store: %w", err)
	}
	functions, err := functionrepo.Open(cfg.FunctionRepoDSN)
	if err != nil {
		return fmt.Errorf("opening function repo: %w", err)
	}

	source := sourcestore.NewGitStore(cfg.GitRootDir, func(gamespace, project string) string {
		return settingsRepoURL(context.Background(), settings, gamespace, project)
	})

	downstreamClient := downstream.New(nil, nil)
	var publisher *downstream.Publisher
	if cfg.MessagePublisherURL != "" {
		publisher = downstream.NewPublisher(cfg.MessagePublisherURL, nil)
	}
	configSource := &downstream.ConfigSource{Client: downstreamClient}
	precompile := build.NewPrecompileCache()
	defer precompile.Stop()

	r := router.New(router.Options{
		Pool:        pool,
		Settings:    settings,
		Source:      source,
		Functions:   functions,
		Downstream:  downstreamClient,
		Publisher:   publisher,
		Config:      configSource,
		Precompile:  precompile,
		CallTimeout: time.Duration(cfg.JSCallTimeoutSeconds) * time.Second,
	})

	srv := webserver.New(r, nil, logger, cfg.DebugEnabled)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
	}
	return nil
}

// settingsRepoURL resolves a (gamespace, project) pair's repo_url via the
// ProjectSettings store, used as GitStore's RepoURL callback. A lookup
// failure yields an empty URL, which GitStore.GetSnapshot surfaces as a
// build error rather than panicking.
func settingsRepoURL(ctx context.Context, settings projectsettings.ProjectSettings, gamespace, project string) string {
	s, err := settings.Get(ctx, gamespace, project)
	if err != nil {
		return ""
	}
	return s.RepoURL
}
