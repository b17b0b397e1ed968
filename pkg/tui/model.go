// Package tui is a read-only terminal panel over a memory Service: tier
// sizes, run state, and the episodic and semantic documents.
package tui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory/consolidation"
	"github.com/entrhq/mnemo/pkg/memory/mirror"
)

// DefaultRefreshInterval is how often the panel re-reads the snapshot.
const DefaultRefreshInterval = 2 * time.Second

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("tui")
	if err != nil {
		debugLog.Warnf("Failed to initialize tui logger, using stderr fallback: %v", err)
	}
}

// Source is what the panel reads from. *memory.Service satisfies it.
type Source interface {
	Snapshot() mirror.Snapshot
	Running() bool
	RunNow(ctx context.Context) (*consolidation.Result, error)
}

type tab int

const (
	tabOverview tab = iota
	tabEpisodic
	tabSemantic
)

var tabNames = []string{"Overview", "Episodic", "Semantic"}

// Model is the bubbletea model for the panel.
type Model struct {
	src     Source
	ctx     context.Context
	refresh time.Duration
	copyFn  func(string) error

	viewport viewport.Model
	spinner  spinner.Model

	snap    mirror.Snapshot
	tab     tab
	running bool
	pending bool
	last    *consolidation.Result
	lastErr error
	toast   string

	ready  bool
	width  int
	height int
}

// Option configures a Model.
type Option func(*Model)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.refresh = d
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(m *Model) { m.copyFn = fn }
}

// WithContext sets the context manual runs are started under.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// New builds the panel over src.
func New(src Source, opts ...Option) *Model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = okStyle

	m := &Model{
		src:      src,
		ctx:      context.Background(),
		refresh:  DefaultRefreshInterval,
		copyFn:   clipboard.WriteAll,
		viewport: viewport.New(80, 20),
		spinner:  s,
		snap:     src.Snapshot(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.syncViewport()
	return m
}

// Run starts the panel in the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, src Source, opts ...Option) error {
	m := New(src, append([]Option{WithContext(ctx)}, opts...)...)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// content returns the text shown for the active tab.
func (m *Model) content() string {
	switch m.tab {
	case tabEpisodic:
		return m.snap.Episodic
	case tabSemantic:
		return m.snap.Semantic
	default:
		return ""
	}
}

func (m *Model) syncViewport() {
	text := m.content()
	if text == "" && m.tab != tabOverview {
		text = helpStyle.Render("(empty)")
	}
	m.viewport.SetContent(text)
}

// busy reports whether a run is in progress, either one started from the
// panel or one the service reported on the last refresh.
func (m *Model) busy() bool {
	return m.pending || m.running
}
