package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Underline(true).Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	bannerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	selectedRowStyle = lipgloss.NewStyle().Bold(true)
	popupBorder      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
)

// View renders the model for the active tab; it never mutates (spec
// §4.8).
func (m Model) View() string {
	if m.width > 0 && m.height > 0 && (m.width < minWidth || m.height < minHeight) {
		return fmt.Sprintf("terminal too small (%dx%d, need at least %dx%d)\nresize to continue; no work is lost", m.width, m.height, minWidth, minHeight)
	}

	var b strings.Builder
	b.WriteString(m.renderTabBar())
	b.WriteString("\n\n")

	switch m.activeTab {
	case TabQuery:
		b.WriteString(m.renderQueryTab())
	case TabWorkspaces:
		b.WriteString(m.renderWorkspacesTab())
	case TabJobs:
		b.WriteString(m.renderJobsTab())
	case TabPacks:
		b.WriteString(m.renderPacksTab())
	case TabSessions:
		b.WriteString(m.renderSessionsTab())
	case TabSettings:
		b.WriteString(m.renderSettingsTab())
	}

	if m.lastError != "" {
		b.WriteString("\n\n")
		b.WriteString(bannerStyle.Render("! " + m.lastError))
	}

	if m.popup.Kind != PopupNone {
		b.WriteString("\n\n")
		b.WriteString(m.renderPopup())
	}

	return b.String()
}

func (m Model) renderTabBar() string {
	var parts []string
	for _, t := range tabOrder {
		if t == m.activeTab {
			parts = append(parts, activeTabStyle.Render(t.String()))
		} else {
			parts = append(parts, inactiveTabStyle.Render(t.String()))
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) renderQueryTab() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("mode: %s\n", m.editor.Mode()))
	for i, line := range m.editor.Lines() {
		cursor := m.editor.Cursor()
		if i == cursor.Row {
			b.WriteString(markCursor(line, cursor.Col))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nctrl+j: dispatch  i/a/A/o/O: insert  v: visual  c: clear  ctrl+u/ctrl+r: undo/redo")
	return b.String()
}

func markCursor(line string, col int) string {
	r := []rune(line)
	if col < 0 || col > len(r) {
		return line
	}
	if col == len(r) {
		return string(r) + "_"
	}
	return string(r[:col]) + "[" + string(r[col]) + "]" + string(r[col+1:])
}

func (m Model) renderWorkspacesTab() string {
	if len(m.workspaces) == 0 {
		return "no workspaces discovered"
	}
	var b strings.Builder
	for i, ws := range m.workspaces {
		mark := " "
		if m.selected[ws.GUID] {
			mark = "x"
		}
		row := fmt.Sprintf("[%s] %s / %s", mark, ws.SubscriptionName, ws.Name)
		if i == m.workspaceCursor {
			row = selectedRowStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("\nspace: toggle  (empty selection = all workspaces)")
	return b.String()
}

func (m Model) renderJobsTab() string {
	if len(m.jobs) == 0 {
		return "no jobs dispatched yet"
	}
	var b strings.Builder
	for i, j := range m.jobs {
		row := fmt.Sprintf("%-9s %-20s rows=%-6d %s", j.Status, j.Workspace.Name, j.RowCount, j.Error)
		if i == m.jobCursor {
			row = selectedRowStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("\nr: retry selected Failed job")
	return b.String()
}

func (m Model) renderPacksTab() string {
	if len(m.packsList) == 0 {
		return "no query packs found"
	}
	var b strings.Builder
	for i, p := range m.packsList {
		row := fmt.Sprintf("%s  (%d %s)", p.Name, len(p.Queryset()), plural(len(p.Queryset()), "query", "queries"))
		if i == m.packCursor {
			row = selectedRowStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("\nr/enter: run selected pack")
	return b.String()
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func (m Model) renderSessionsTab() string {
	var b strings.Builder
	if m.dirty {
		b.WriteString("(unsaved changes)\n")
	}
	if len(m.sessionNames) == 0 {
		b.WriteString("no saved sessions\n")
	}
	for i, name := range m.sessionNames {
		mark := "  "
		if name == m.currentSession {
			mark = "* "
		}
		row := mark + name
		if i == m.sessionCursor {
			row = selectedRowStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("\ns: save  S: save as  l/enter: load selected  d: delete selected")
	return b.String()
}

func (m Model) renderSettingsTab() string {
	var b strings.Builder
	for i, f := range settingsFields() {
		row := fmt.Sprintf("%-25s %s", f.label+":", f.get(m.settings))
		if i == m.settingsCursor {
			row = selectedRowStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("\nspace/enter: toggle or edit selected field")
	return b.String()
}

func (m Model) renderPopup() string {
	switch m.popup.Kind {
	case PopupPrompt:
		return popupBorder.Render(m.popup.Title + "\n" + m.popup.Input.View())
	case PopupConfirm, PopupDetails:
		return popupBorder.Render(m.popup.Title + "\n" + m.popup.Message)
	}
	return ""
}
