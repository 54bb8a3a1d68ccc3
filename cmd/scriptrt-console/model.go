package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/functionrepo"
	"github.com/kestrel-labs/scriptrt/internal/obslog"
	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type tickMsg time.Time

type statsMsg struct {
	functionCount int
	err           error
}

// model is the dashboard's bubbletea Model: a snapshot of pool size,
// function count, and the most recent log entries, refreshed on a tick.
type model struct {
	pool      *worker.Pool
	ring      *obslog.RingHandler
	settings  *projectsettings.Store
	functions *functionrepo.Store

	functionCount int
	lastErr       error
	width         int
	height        int
}

func newModel(pool *worker.Pool, ring *obslog.RingHandler, settings *projectsettings.Store, functions *functionrepo.Store) model {
	return model{pool: pool, ring: ring, settings: settings, functions: functions}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), m.refresh())
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) refresh() tea.Cmd {
	return func() tea.Msg {
		fns, err := m.functions.List(context.Background(), dashboardGamespace)
		if err != nil {
			return statsMsg{err: err}
		}
		return statsMsg{functionCount: len(fns)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(tick(), m.refresh())
	case statsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.functionCount = msg.functionCount
		}
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	fmt.Fprintln(&b, headerStyle.Render("scriptrt-console"))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "workers:    %d\n", m.pool.Size())
	fmt.Fprintf(&b, "functions:  %d  (gamespace=%s)\n", m.functionCount, dashboardGamespace)
	if m.lastErr != nil {
		fmt.Fprintln(&b, errorStyle.Render("last refresh error: "+m.lastErr.Error()))
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, headerStyle.Render("recent log entries"))

	for _, e := range m.ring.Recent(m.logLines()) {
		fmt.Fprintf(&b, "%s %-5s %s %s\n",
			dimStyle.Render(e.Time.Format("15:04:05")),
			e.Level.String(),
			e.Message,
			dimStyle.Render(formatAttrs(e.Attrs)),
		)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, dimStyle.Render("press q to quit"))
	return b.String()
}

func (m model) logLines() int {
	n := m.height - 8
	if n < 1 {
		n = 10
	}
	return n
}

func formatAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for k, v := range attrs {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}
