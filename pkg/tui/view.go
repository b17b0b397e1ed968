package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/mnemo/pkg/memory/store"
)

// View renders the panel.
func (m *Model) View() string {
	if !m.ready {
		return "Loading memory..."
	}

	var body string
	if m.tab == tabOverview {
		body = m.buildOverview()
	} else {
		body = m.viewport.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.buildHeader(),
		m.buildTabs(),
		panelStyle.Width(max(m.width-2, 20)).Render(body),
		m.buildFooter(),
	)
}

func (m *Model) buildHeader() string {
	status := okStyle.Render("idle")
	if m.busy() {
		status = m.spinner.View() + " " + okStyle.Render("consolidating")
	}
	return titleStyle.Render("mnemo") + "  " + helpStyle.Render(m.snap.Root) + "  " + status
}

func (m *Model) buildTabs() string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		if tab(i) == m.tab {
			parts[i] = activeTabStyle.Render(name)
		} else {
			parts[i] = tabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) buildOverview() string {
	s := m.snap
	rows := [][2]string{
		{"Working", fmt.Sprintf("%d files, %d lines, %s", s.Working.Files, s.Working.Lines, humanBytes(s.Working.Bytes))},
		{"Episodic", fmt.Sprintf("%s, ~%d tokens", humanBytes(int64(len(s.Episodic))), s.EpisodicTokens)},
		{"Semantic", fmt.Sprintf("%s, ~%d tokens", humanBytes(int64(len(s.Semantic))), s.SemanticTokens)},
		{"Last run", lastRun(s.State)},
		{"Outcome", outcome(s.State.LastRunResult)},
		{"Failures", fmt.Sprintf("episodic %d, semantic %d", s.State.EpisodicFailures, s.State.SemanticFailures)},
		{"Total runs", fmt.Sprintf("%d", s.State.TotalRuns)},
	}
	if !s.SemanticHasSentinel && s.Semantic != "" {
		rows = append(rows, [2]string{"Warning", failStyle.Render("semantic.md has no sentinel line")})
	}
	if m.last != nil {
		rows = append(rows, [2]string{"This session", m.last.String()})
	}
	if m.lastErr != nil {
		rows = append(rows, [2]string{"Errors", failStyle.Render(m.lastErr.Error())})
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r[0]))
		b.WriteString(valueStyle.Render(r[1]))
		b.WriteByte('\n')
	}
	b.WriteString(helpStyle.Render("refreshed " + s.RefreshedAt.Format(time.Kitchen)))
	return b.String()
}

func (m *Model) buildFooter() string {
	help := helpStyle.Render("tab switch • r run now • c copy • ↑/↓ scroll • q quit")
	if m.toast == "" {
		return help
	}
	return toastStyle.Render(m.toast) + "  " + help
}

func lastRun(st store.State) string {
	if st.LastRunAt.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s ago)", st.LastRunAt.Format(time.DateTime), time.Since(st.LastRunAt).Round(time.Minute))
}

func outcome(o store.RunOutcome) string {
	switch o {
	case store.OutcomeFull, store.OutcomeEmpty:
		return okStyle.Render(string(o))
	case store.OutcomePartial, store.OutcomeFailed:
		return failStyle.Render(string(o))
	case "":
		return string(store.OutcomeNone)
	default:
		return string(o)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}
