package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrel-labs/scriptrt/internal/downstream"
	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/hostapi"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/functionrepo"
	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

// fnProjectPrefix marks a buildcache project identifier as a standalone
// functions-path build (spec §4.7), as opposed to a repo-commit build: the
// string after the prefix is "<app>/<fnName>" (app may be empty for a
// gamespace-scoped lookup with no binding check).
const fnProjectPrefix = "fn:"

// loader implements buildcache.Loader, dispatching LoadFiles to either the
// repo-backed SourceStore (app and Server Code builds) or the FunctionRepo
// (standalone functions builds), keyed by whether project carries the
// fnProjectPrefix. One loader is shared by every Router method.
type loader struct {
	pool       *worker.Pool
	settings   projectsettings.ProjectSettings
	source     sourcestore.SourceStore
	functions  functionrepo.FunctionRepo
	precompile *build.PrecompileCache
	downstream *downstream.Client
	publisher  *downstream.Publisher
	config     hostapi.ConfigSource
}

func (l *loader) NextWorker(ctx context.Context) (*worker.Worker, error) { return l.pool.Acquire(ctx) }

func (l *loader) ReleaseWorker(w *worker.Worker) { l.pool.Release(w) }

// Surface installs the admin API only for the Server Code build (spec §4.8:
// "the admin API object is injected here and nowhere else"), recognized by
// its reserved project identifier.
func (l *loader) Surface(w *worker.Worker, project string) *hostapi.Surface {
	isServer := project == projectsettings.ServerKey
	return hostapi.NewSurface(w, l.downstream, l.publisher, l.config, isServer)
}

func (l *loader) settingsFor(ctx context.Context, gamespace, app string) (projectsettings.Settings, error) {
	return l.settings.Get(ctx, gamespace, app)
}

func (l *loader) serverSettings(ctx context.Context, gamespace string) (projectsettings.Settings, error) {
	return l.settings.GetServer(ctx, gamespace)
}

func (l *loader) LoadFiles(ctx context.Context, gamespace, project, commit string) ([]sourcestore.File, error) {
	if rest, ok := strings.CutPrefix(project, fnProjectPrefix); ok {
		app, fnName, _ := strings.Cut(rest, "/")
		return l.loadFunctionFiles(ctx, gamespace, app, fnName)
	}
	return l.source.GetSnapshot(ctx, gamespace, project, commit)
}

// loadFunctionFiles resolves a standalone function and its imports,
// consulting the saved_code precompile cache first (spec §4.7: "the same
// pre-compile-and-cache machinery (saved_code keyed by gamespace:name)") so
// repeated builds within the TTL window never re-hit FunctionRepo. The cache
// value is the JSON-encoded resolved file set (entry + imports), so a hit is
// self-sufficient and never needs a follow-up FunctionRepo call to fill in
// imports.
func (l *loader) loadFunctionFiles(ctx context.Context, gamespace, app, fnName string) ([]sourcestore.File, error) {
	if cached, ok := l.precompile.Get(gamespace, fnName); ok {
		var files []sourcestore.File
		if err := json.Unmarshal([]byte(cached), &files); err == nil {
			return files, nil
		}
		// Corrupt cache entry: fall through and refetch.
	}

	deps, err := l.functions.GetWithDeps(ctx, gamespace, fnName, app)
	if err != nil {
		return nil, fmt.Errorf("router: resolving function %s/%s: %w", gamespace, fnName, err)
	}

	files := make([]sourcestore.File, 0, len(deps))
	for _, d := range deps {
		files = append(files, sourcestore.File{Name: d.Name + ".js", Text: d.Source})
	}

	if encoded, err := json.Marshal(files); err == nil {
		l.precompile.Set(gamespace, fnName, string(encoded))
	}

	return files, nil
}

// functionBuildProject builds the buildcache project identifier for a
// standalone function build.
func functionBuildProject(app, fnName string) string {
	return fnProjectPrefix + app + "/" + fnName
}

// functionBuildCommit content-addresses a standalone function build: with no
// git commit to pin a snapshot, the sha256 of every resolved source
// (entry + imports, in resolution order) stands in for one, so an edited
// function or import produces a fresh Build instead of silently reusing a
// stale cached one, while unchanged code keeps reusing it.
func functionBuildCommit(deps []functionrepo.NameSource) string {
	h := sha256.New()
	for _, d := range deps {
		h.Write([]byte(d.Name))
		h.Write([]byte{0})
		h.Write([]byte(d.Source))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
