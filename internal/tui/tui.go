// Package tui is the interactive terminal front end for a search session.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/joescharf/ka/internal/auth"
	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/session"
	"github.com/joescharf/ka/internal/view"
)

// Options configures the terminal UI.
type Options struct {
	// GlamourStyle is a glamour standard style name, or "auto".
	GlamourStyle string
	// SkipLogin starts past the sign-in screen.
	SkipLogin bool
}

type focus int

const (
	focusSearch focus = iota
	focusFollowUp
)

const (
	headerHeight = 2
	inputHeight  = 3
	footerHeight = 1
)

// searchDoneMsg carries a finished request back to Update.
type searchDoneMsg struct {
	comp session.Completion
}

// Model is the bubbletea model. The session and gate are shared, so copies
// of Model observe the same session.
type Model struct {
	ctx  context.Context
	ctl  *session.Controller
	gate *auth.Gate
	opts Options

	search   textinput.Model
	followUp textinput.Model
	focus    focus
	spinner  spinner.Model
	viewport viewport.Model
	filter   view.FilterSelector
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool
}

// New builds the UI for ctl. ctx bounds every request the UI starts.
func New(ctx context.Context, ctl *session.Controller, gate *auth.Gate, opts Options) Model {
	if gate == nil {
		gate = &auth.Gate{}
	}
	if opts.SkipLogin {
		gate.Login()
	}

	search := textinput.New()
	search.Placeholder = view.SearchPlaceholder
	search.Prompt = "? "
	search.CharLimit = 1000
	search.Focus()

	followUp := textinput.New()
	followUp.Placeholder = view.FollowUpPlaceholder
	followUp.Prompt = "> "
	followUp.CharLimit = 1000

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle))

	return Model{
		ctx:      ctx,
		ctl:      ctl,
		gate:     gate,
		opts:     opts,
		search:   search,
		followUp: followUp,
		spinner:  sp,
		viewport: viewport.New(80, 20),
	}
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(ctx context.Context, ctl *session.Controller, gate *auth.Gate, opts Options) error {
	p := tea.NewProgram(New(ctx, ctl, gate, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case searchDoneMsg:
		m.ctl.Complete(msg.comp)
		st := m.ctl.Snapshot()
		if st.Mode == models.SearchModeExternal && st.HasResults() && m.focus == focusSearch {
			m.setFocus(focusFollowUp)
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if !m.ctl.Snapshot().Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		if !m.gate.LoggedIn() {
			return m.updateLogin(msg)
		}
		return m.updateKeys(msg)
	}

	return m.updateInputs(msg)
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "q":
		return m, tea.Quit
	case "enter", " ":
		m.gate.Login()
		m.refresh()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.ctl.Snapshot()

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "tab", "ctrl+t":
		next := models.SearchModeExternal
		if st.Mode == models.SearchModeExternal {
			next = models.SearchModeInternal
		}
		m.ctl.SwitchMode(next)
		m.search.Reset()
		m.followUp.Reset()
		m.setFocus(focusSearch)
		m.refresh()
		return m, nil

	case "shift+tab":
		if m.followUpVisible(st) {
			if m.focus == focusSearch {
				m.setFocus(focusFollowUp)
			} else {
				m.setFocus(focusSearch)
			}
		}
		return m, nil

	case "alt+1":
		return m.selectFilter(view.FilterAll), nil
	case "alt+2":
		return m.selectFilter(view.FilterJira), nil
	case "alt+3":
		return m.selectFilter(view.FilterConfluence), nil
	case "ctrl+f":
		return m.selectFilter(nextFilter(m.filter.Filter())), nil

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		if st.Loading {
			return m, nil
		}
		return m.submit()
	}

	if st.Loading {
		return m, nil
	}
	return m.updateInputs(msg)
}

// submit begins a request from the focused input and returns the command
// that performs it.
func (m Model) submit() (tea.Model, tea.Cmd) {
	var (
		req *session.Request
		ok  bool
	)
	if m.focus == focusFollowUp {
		req, ok = m.ctl.BeginFollowUp(m.followUp.Value())
		if ok {
			m.followUp.Reset()
		}
	} else {
		req, ok = m.ctl.BeginQuery(m.search.Value())
		if ok {
			m.search.Reset()
		}
	}
	if !ok {
		return m, nil
	}
	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(m.spinner.Tick, runSearch(m.ctx, m.ctl, req))
}

func runSearch(ctx context.Context, ctl *session.Controller, req *session.Request) tea.Cmd {
	return func() tea.Msg {
		return searchDoneMsg{comp: ctl.Run(ctx, req)}
	}
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == focusFollowUp {
		m.followUp, cmd = m.followUp.Update(msg)
	} else {
		m.search, cmd = m.search.Update(msg)
	}
	return m, cmd
}

func (m Model) selectFilter(f view.Filter) Model {
	st := m.ctl.Snapshot()
	if st.Mode != models.SearchModeInternal {
		return m
	}
	m.filter.Sync(st)
	m.filter.Set(f)
	m.refresh()
	return m
}

func nextFilter(f view.Filter) view.Filter {
	for i, cur := range view.Filters {
		if cur == f {
			return view.Filters[(i+1)%len(view.Filters)]
		}
	}
	return view.FilterAll
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusFollowUp {
		m.search.Blur()
		m.followUp.Focus()
	} else {
		m.followUp.Blur()
		m.search.Focus()
	}
}

func (m Model) followUpVisible(st session.State) bool {
	return st.Mode == models.SearchModeExternal && st.HasResults()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.ready = true

	m.search.Width = max(width-8, 10)
	m.followUp.Width = max(width-8, 10)

	m.viewport.Width = max(width-2, 10)
	m.viewport.Height = max(height-headerHeight-2*inputHeight-footerHeight-1, 3)

	m.renderer = newRenderer(m.opts.GlamourStyle, m.viewport.Width-2)
}

func newRenderer(style string, wrap int) *glamour.TermRenderer {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(wrap, 20))}
	switch style {
	case "auto":
		opts = append(opts, glamour.WithAutoStyle())
	case "":
		opts = append(opts, glamour.WithStandardStyle("dark"))
	default:
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil
	}
	return r
}

// refresh re-renders the scrollable body from the current snapshot.
func (m *Model) refresh() {
	st := m.ctl.Snapshot()
	f := m.filter.Sync(st)
	m.viewport.SetContent(m.renderBody(st, f))
}
