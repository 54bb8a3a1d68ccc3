// Command scriptrt-console is a terminal dashboard built on the same
// external collaborators cmd/scriptrtd wires together, not on an HTTP admin
// API. It shows the size of a worker pool it creates itself from the config,
// the FunctionRepo function count for one gamespace, and the entries of its
// own in-process log ring; it does not attach to a running scriptrtd process.
package main

import (
	"fmt"
	"log/slog"
	"os"

	tea "charm.land/bubbletea/v2"

	"github.com/kestrel-labs/scriptrt/internal/config"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/functionrepo"
	"github.com/kestrel-labs/scriptrt/internal/obslog"
	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
)

// dashboardGamespace is the gamespace scriptrt-console reports function
// counts for. A future revision could prompt for it; fixed here keeps the
// dashboard usable with a single flag-free invocation against one gamespace
// at a time, matching how an operator typically scopes a debugging session.
const dashboardGamespace = "default"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "scriptrt-console:", err)
		os.Exit(1)
	}

	pool, err := worker.NewPool(cfg.JSWorkers, 64, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scriptrt-console:", err)
		os.Exit(1)
	}
	defer pool.Shutdown(true)

	settings, err := projectsettings.Open(cfg.ProjectSettingsDSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scriptrt-console:", err)
		os.Exit(1)
	}
	functions, err := functionrepo.Open(cfg.FunctionRepoDSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scriptrt-console:", err)
		os.Exit(1)
	}

	_, ring := obslog.New(os.Stderr, slog.LevelInfo, 200)

	m := newModel(pool, ring, settings, functions)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "scriptrt-console:", err)
		os.Exit(1)
	}
}
