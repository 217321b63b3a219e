package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/session"
	"github.com/joescharf/ka/internal/view"
)

const appTitle = "Knowledge Assistant"

func (m Model) View() string {
	if !m.gate.LoggedIn() {
		return m.loginView()
	}

	st := m.ctl.Snapshot()
	var b strings.Builder

	b.WriteString(m.header(st))
	b.WriteString("\n\n")
	b.WriteString(m.inputBox(m.search, m.focus == focusSearch))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.followUpVisible(st) {
		b.WriteString(m.inputBox(m.followUp, m.focus == focusFollowUp))
		b.WriteString("\n")
	}
	b.WriteString(m.footer(st))
	return b.String()
}

func (m Model) loginView() string {
	box := loginStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render(appTitle),
		"",
		"Search Jira, Confluence and the web.",
		"",
		activeTabStyle.Render("Sign in"),
		"",
		mutedStyle.Render("enter sign in • q quit"),
	))
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) header(st session.State) string {
	internal, external := tabStyle, tabStyle
	if st.Mode == models.SearchModeExternal {
		external = activeTabStyle
	} else {
		internal = activeTabStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(appTitle),
		"  ",
		internal.Render("Internal"),
		external.Render("External"),
	)
}

func (m Model) inputBox(in interface{ View() string }, focused bool) string {
	style := inputStyle
	if focused {
		style = focusedInputStyle
	}
	if m.width > 0 {
		style = style.Width(max(m.width-4, 10))
	}
	return style.Render(in.View())
}

func (m Model) footer(st session.State) string {
	help := []string{"enter search", "tab mode"}
	if st.Mode == models.SearchModeInternal && st.CurrentResult() != nil {
		help = append(help, "alt+1/2/3 filter")
	}
	if m.followUpVisible(st) {
		help = append(help, "shift+tab switch input")
	}
	help = append(help, "↑/↓ scroll", "esc quit")
	return mutedStyle.Render(strings.Join(help, " • "))
}

// renderBody renders the scrollable area for st.
func (m Model) renderBody(st session.State, f view.Filter) string {
	d := view.DisplayState(st)

	switch d.Kind {
	case view.ShowLoadingOnly:
		return m.loadingLine()
	case view.ShowEmptyPrompt:
		return mutedStyle.Render(view.EmptyPromptText)
	case view.ShowError:
		return errorStyle.Render(d.Error)
	case view.ShowExternalConversation:
		return m.renderConversation(st, d)
	}
	return m.renderInternal(st, f, d)
}

func (m Model) loadingLine() string {
	return m.spinner.View() + " " + view.LoadingText
}

func (m Model) renderInternal(st session.State, f view.Filter, d view.Display) string {
	res := st.CurrentResult()
	var b strings.Builder

	b.WriteString(m.markdown(res.Summary))
	b.WriteString("\n")

	counts := view.SourceCounts(res)
	tabs := make([]string, 0, len(view.Filters))
	for i, flt := range view.Filters {
		label := fmt.Sprintf("%d %s (%d)", i+1, filterLabel(flt), counts[flt])
		if flt == f {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	sources := view.VisibleSources(st, f)
	if len(sources) == 0 {
		b.WriteString(mutedStyle.Render(view.EmptyFilterMessage(f)))
		b.WriteString("\n")
	}
	for _, src := range sources {
		b.WriteString(renderSource(src))
		b.WriteString("\n")
	}

	if d.Error != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(d.Error))
	}
	return b.String()
}

func (m Model) renderConversation(st session.State, d view.Display) string {
	history := st.History()
	var b strings.Builder

	for i, turn := range st.Conversation() {
		if q := 2 * i; q < len(history) {
			b.WriteString(queryStyle.Render("> " + history[q].Content))
			b.WriteString("\n")
		}
		b.WriteString(m.markdown(turn.Summary))
		for _, src := range turn.Sources {
			b.WriteString(renderSource(src))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if d.Spinner {
		b.WriteString(m.loadingLine())
		b.WriteString("\n")
	}
	if d.Error != "" {
		b.WriteString(errorStyle.Render(d.Error))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) markdown(s string) string {
	if s == "" {
		return ""
	}
	if m.renderer != nil {
		if out, err := m.renderer.Render(s); err == nil {
			return out
		}
	}
	return s + "\n"
}

func renderSource(src models.Source) string {
	style, ok := sourceTypeStyles[string(src.Type)]
	if !ok {
		style = mutedStyle
	}
	return fmt.Sprintf("  %s %s %s", style.Render("["+string(src.Type)+"]"), src.Title, mutedStyle.Render(src.URL))
}

func filterLabel(f view.Filter) string {
	switch f {
	case view.FilterJira:
		return "Jira"
	case view.FilterConfluence:
		return "Confluence"
	}
	return "All"
}
