package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dolly-parseton/kql-panopticon/pkg/editor"
	"github.com/dolly-parseton/kql-panopticon/pkg/executor"
	"github.com/dolly-parseton/kql-panopticon/pkg/model"
)

// Update is the one place side effects are requested, never performed
// (spec §4.8: "pure; produces (new_model, commands)").
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case workspacesLoadedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.workspaces = msg.result.Workspaces
		for _, w := range msg.result.Warnings {
			m.lastError = w
		}
		return m, tea.Batch(loadPacksCmd(m.packs), loadSessionsCmd(m.sessions))

	case jobEventMsg:
		m.applyJob(msg.event.Job)
		return m, listenJobEvents(msg.ch)

	case authEventMsg:
		if !msg.event.OK && msg.event.Err != nil {
			m.lastError = fmt.Sprintf("auth revalidation failed: %v", msg.event.Err)
		}
		return m, listenAuthEvents(msg.ch)

	case packsLoadedMsg:
		m.packsList = msg.packs
		for _, e := range msg.errs {
			m.lastError = e.Error()
		}
		return m, nil

	case sessionsLoadedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.sessionNames = msg.names
		return m, nil

	case sessionSavedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.currentSession = msg.name
		m.dirty = false
		return m, loadSessionsCmd(m.sessions)

	case sessionLoadedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.settings = msg.sess.Settings
		m.sourcePack = msg.sess.SourcePack
		m.editor = editor.New(msg.sess.EditorBuffer)
		m.jobs = append([]model.Job{}, msg.sess.Jobs...)
		m.jobByID = map[string]int{}
		for i, j := range m.jobs {
			m.jobByID[j.ID] = i
		}
		m.currentSession = msg.sess.Name
		m.dirty = false
		return m, nil

	case sessionDeletedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		if m.currentSession == msg.name {
			m.currentSession = ""
		}
		return m, loadSessionsCmd(m.sessions)
	}
	return m, nil
}

// applyJob mutates the TUI's own job vector, which is a copy kept in
// sync with the executor only through this one path; the only other
// write is a session load, which replaces the vector wholesale.
func (m *Model) applyJob(j model.Job) {
	if idx, ok := m.jobByID[j.ID]; ok {
		m.jobs[idx] = j
	} else {
		m.jobByID[j.ID] = len(m.jobs)
		m.jobs = append(m.jobs, j)
	}
	m.dirty = true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Popup focus intercepts all key input first (spec §4.8).
	if m.popup.Kind != PopupNone {
		return m.handlePopupKey(msg)
	}

	// Query-tab Insert/Visual mode gets full passthrough to the editor,
	// except Esc and the documented editor control keys.
	if m.activeTab == TabQuery && m.editor.Mode() != editor.Normal {
		return m.handleEditorKey(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.activeTab = nextTab(m.activeTab)
		return m, nil
	case "shift+tab":
		m.activeTab = prevTab(m.activeTab)
		return m, nil
	case "1", "2", "3", "4", "5", "6":
		if t, ok := tabFromDigit(msg.String()[0]); ok {
			m.activeTab = t
		}
		return m, nil
	}

	switch m.activeTab {
	case TabQuery:
		return m.handleQueryTabNormalKey(msg)
	case TabWorkspaces:
		return m.handleWorkspacesTabKey(msg)
	case TabJobs:
		return m.handleJobsTabKey(msg)
	case TabPacks:
		return m.handlePacksTabKey(msg)
	case TabSessions:
		return m.handleSessionsTabKey(msg)
	case TabSettings:
		return m.handleSettingsTabKey(msg)
	}
	return m, nil
}

// handleWorkspacesTabKey lets the operator move a cursor and toggle
// workspace selection with space; an empty selection set means "all"
// (model.go's selectedOrAllWorkspaces).
func (m Model) handleWorkspacesTabKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.workspaceCursor < len(m.workspaces)-1 {
			m.workspaceCursor++
		}
	case "k", "up":
		if m.workspaceCursor > 0 {
			m.workspaceCursor--
		}
	case " ":
		if m.workspaceCursor < len(m.workspaces) {
			guid := m.workspaces[m.workspaceCursor].GUID
			sel := map[string]bool{}
			for k, v := range m.selected {
				sel[k] = v
			}
			if sel[guid] {
				delete(sel, guid)
			} else {
				sel[guid] = true
			}
			m.selected = sel
		}
	}
	return m, nil
}

// handleJobsTabKey lets the operator move a cursor and retry the
// selected job if it is Failed (spec §4.3's explicit retry action).
func (m Model) handleJobsTabKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.jobCursor < len(m.jobs)-1 {
			m.jobCursor++
		}
	case "k", "up":
		if m.jobCursor > 0 {
			m.jobCursor--
		}
	case "r":
		if m.jobCursor < len(m.jobs) && m.jobs[m.jobCursor].Status == model.JobFailed {
			return m, retryJobCmd(m, m.jobs[m.jobCursor].ID)
		}
	}
	return m, nil
}

// handlePacksTabKey lets the operator move a cursor over the discovered
// pack library and execute one against the resolved workspace scope
// (spec §4.5: "Execution of a pack (triggered by C8 or C9)").
func (m Model) handlePacksTabKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.packCursor < len(m.packsList)-1 {
			m.packCursor++
		}
	case "k", "up":
		if m.packCursor > 0 {
			m.packCursor--
		}
	case "r", "enter":
		if m.packCursor < len(m.packsList) {
			pack := m.packsList[m.packCursor]
			if err := pack.Validate(); err != nil {
				m.lastError = err.Error()
				return m, nil
			}
			m.sourcePack = pack.Name
			return m, runPackCmd(m, pack)
		}
	}
	return m, nil
}

// handleSessionsTabKey lets the operator move a cursor over saved
// sessions and save/load/delete the current state (spec §4.6).
func (m Model) handleSessionsTabKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.sessionCursor < len(m.sessionNames)-1 {
			m.sessionCursor++
		}
	case "k", "up":
		if m.sessionCursor > 0 {
			m.sessionCursor--
		}
	case "s":
		if m.currentSession != "" {
			return m, saveSessionCmd(m, m.currentSession, false)
		}
		m.popup = newPrompt("Save session as", confirmSaveSession(false))
		return m, nil
	case "S":
		m.popup = newPrompt("Save session as", confirmSaveSession(true))
		return m, nil
	case "l", "enter":
		if m.sessionCursor < len(m.sessionNames) {
			return m, loadSessionCmd(m.sessions, m.sessionNames[m.sessionCursor])
		}
	case "d":
		if m.sessionCursor < len(m.sessionNames) {
			return m, deleteSessionCmd(m.sessions, m.sessionNames[m.sessionCursor])
		}
	}
	return m, nil
}

// confirmSaveSession builds the Sessions tab's "save as" popup callback,
// closing over whether an existing session of that name must be refused
// (spec §4.6: "save as refuses to overwrite without confirmation").
func confirmSaveSession(asNew bool) func(Model, string) (Model, tea.Cmd) {
	return func(m Model, name string) (Model, tea.Cmd) {
		if name == "" {
			m.lastError = "session name must not be empty"
			return m, nil
		}
		return m, saveSessionCmd(m, name, asNew)
	}
}

// handleSettingsTabKey lets the operator move a cursor over the
// recognized settings fields and edit them (spec §3: "Process-wide,
// mutable from Settings tab").
func (m Model) handleSettingsTabKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	fields := settingsFields()
	switch msg.String() {
	case "j", "down":
		if m.settingsCursor < len(fields)-1 {
			m.settingsCursor++
		}
	case "k", "up":
		if m.settingsCursor > 0 {
			m.settingsCursor--
		}
	case " ", "enter":
		if m.settingsCursor >= len(fields) {
			return m, nil
		}
		f := fields[m.settingsCursor]
		if f.isBool {
			cur := f.get(m.settings) == "true"
			if err := f.set(&m.settings, strconvBool(!cur)); err != nil {
				m.lastError = err.Error()
				return m, nil
			}
			m.dirty = true
			return m, nil
		}
		idx := m.settingsCursor
		popup := newPrompt(f.label, confirmEditSetting(idx))
		popup.Input.SetValue(f.get(m.settings))
		popup.Input.CursorEnd()
		m.popup = popup
	}
	return m, nil
}

func strconvBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// confirmEditSetting builds the Settings tab's prompt-popup callback for
// the field at idx, validating and applying the typed value.
func confirmEditSetting(idx int) func(Model, string) (Model, tea.Cmd) {
	return func(m Model, value string) (Model, tea.Cmd) {
		fields := settingsFields()
		if idx < 0 || idx >= len(fields) {
			return m, nil
		}
		if err := fields[idx].set(&m.settings, value); err != nil {
			m.lastError = err.Error()
			return m, nil
		}
		m.dirty = true
		return m, nil
	}
}

func (m Model) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.popup = Popup{}
		return m, nil
	case "enter":
		onConfirm := m.popup.OnConfirm
		text := m.popup.Input.Value()
		m.popup = Popup{}
		if onConfirm != nil {
			return onConfirm(m, text)
		}
		return m, nil
	}
	if m.popup.Kind == PopupPrompt {
		var cmd tea.Cmd
		m.popup.Input, cmd = m.popup.Input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleEditorKey drives C7 while in Insert/Visual mode. Esc always
// returns to Normal; everything else passes through to the editor
// verbatim (spec §4.7/§4.8).
func (m Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.editor.Mode() == editor.Insert {
			m.editor.ExitInsert()
		} else if m.editor.Mode() == editor.Visual {
			m.editor.ExitVisual()
		}
		return m, nil
	case "backspace":
		if m.editor.Mode() == editor.Insert {
			m.editor.Backspace()
			m.dirty = true
		}
		return m, nil
	case "enter":
		if m.editor.Mode() == editor.Insert {
			m.editor.Insert('\n')
			m.dirty = true
		}
		return m, nil
	}
	if m.editor.Mode() == editor.Visual {
		switch msg.String() {
		case "h", "j", "k", "l", "0", "$", "g", "G":
			m.editor.Move(msg.String())
		case "y":
			m.editor.Yank()
		case "d", "x":
			m.editor.DeleteSelection()
			m.dirty = true
		}
		return m, nil
	}
	if len(msg.Runes) == 1 {
		m.editor.Insert(msg.Runes[0])
		m.dirty = true
	}
	return m, nil
}

// handleQueryTabNormalKey implements C7's Normal-mode key bindings plus
// the Ctrl+j dispatch flow (spec §4.7, §4.8).
func (m Model) handleQueryTabNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "h", "j", "k", "l", "0", "$", "g", "G":
		m.editor.Move(msg.String())
	case "x":
		m.editor.DeleteChar()
		m.dirty = true
	case "i":
		m.editor.InsertAtCursor()
	case "a":
		m.editor.AppendAtCursor()
	case "A":
		m.editor.AppendEndOfLine()
	case "o":
		m.editor.OpenLineBelow()
		m.dirty = true
	case "O":
		m.editor.OpenLineAbove()
		m.dirty = true
	case "v":
		m.editor.EnterVisual()
	case "c":
		m.editor.ClearAll()
		m.dirty = true
	case "ctrl+d":
		m.editor.DeleteLine()
		m.dirty = true
	case "ctrl+u":
		m.editor.Undo()
		m.dirty = true
	case "ctrl+r":
		m.editor.Redo()
		m.dirty = true
	case "ctrl+j":
		m.popup = newPrompt("Job name", confirmDispatch)
		return m, nil
	}
	return m, nil
}

// confirmDispatch is the Ctrl+j popup's OnConfirm: read {selected
// workspaces, editor buffer, settings}, construct N jobs with a shared
// dispatch timestamp, hand to C3 (spec §4.8).
func confirmDispatch(m Model, jobName string) (Model, tea.Cmd) {
	if jobName == "" {
		jobName = "query"
	}
	return m, dispatchJobsCmd(m, jobName)
}

// retryJobCmd re-dispatches a terminal Failed job through C3's Retry
// path (spec §4.3's explicit operator-triggered retry).
func retryJobCmd(m Model, jobID string) tea.Cmd {
	if m.executor == nil {
		return nil
	}
	exec := m.executor
	var exporter executor.Exporter
	if m.exporter != nil {
		exporter = m.exporter
	}
	return func() tea.Msg {
		_, _ = exec.Retry(context.Background(), jobID, exporter)
		return nil
	}
}
