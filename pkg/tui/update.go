package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/mnemo/pkg/memory/consolidation"
	"github.com/entrhq/mnemo/pkg/memory/mirror"
)

type refreshMsg struct {
	snap    mirror.Snapshot
	running bool
}

type runDoneMsg struct {
	res *consolidation.Result
	err error
}

type tickMsg time.Time

// Init starts the refresh loop and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.spinner.Tick)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetch() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		return refreshMsg{snap: src.Snapshot(), running: src.Running()}
	}
}

func (m *Model) runNow() tea.Cmd {
	src, ctx := m.src, m.ctx
	return func() tea.Msg {
		res, err := src.RunNow(ctx)
		return runDoneMsg{res: res, err: err}
	}
}

// Update handles keys, window size, refresh ticks and run completion.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-12, 3)
		m.ready = true
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case refreshMsg:
		m.snap = msg.snap
		m.running = msg.running
		m.syncViewport()
		return m, nil

	case runDoneMsg:
		m.pending = false
		m.last, m.lastErr = msg.res, msg.err
		switch {
		case msg.res != nil && msg.res.Skipped:
			m.toast = "a run is already in progress"
		case msg.err != nil:
			m.toast = "run finished with errors"
		default:
			m.toast = "run complete"
		}
		return m, m.fetch()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "tab", "right", "l":
		m.tab = (m.tab + 1) % tab(len(tabNames))
		m.toast = ""
		m.syncViewport()
		m.viewport.GotoTop()
		return m, nil

	case "shift+tab", "left", "h":
		m.tab = (m.tab + tab(len(tabNames)) - 1) % tab(len(tabNames))
		m.toast = ""
		m.syncViewport()
		m.viewport.GotoTop()
		return m, nil

	case "r":
		if m.busy() {
			m.toast = "a run is already in progress"
			return m, nil
		}
		m.pending = true
		m.toast = ""
		return m, m.runNow()

	case "c":
		text := m.content()
		if text == "" {
			m.toast = "nothing to copy"
			return m, nil
		}
		if err := m.copyFn(text); err != nil {
			debugLog.Warnf("copy to clipboard failed: %v", err)
			m.toast = fmt.Sprintf("copy failed: %v", err)
			return m, nil
		}
		m.toast = fmt.Sprintf("copied %s (%d bytes)", tabNames[m.tab], len(text))
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}
