// Package tui implements the TUI Controller (C8): an explicit
// Model/Message/Update/View loop over six tabs, with the modal editor
// (C7) embedded in the Query tab (spec §4.8).
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/dolly-parseton/kql-panopticon/pkg/auth"
	"github.com/dolly-parseton/kql-panopticon/pkg/catalog"
	"github.com/dolly-parseton/kql-panopticon/pkg/editor"
	"github.com/dolly-parseton/kql-panopticon/pkg/executor"
	"github.com/dolly-parseton/kql-panopticon/pkg/export"
	"github.com/dolly-parseton/kql-panopticon/pkg/logging"
	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/packs"
	"github.com/dolly-parseton/kql-panopticon/pkg/session"
)

// minWidth/minHeight gate the "terminal too small" fallback view (spec
// §7: "detected each frame; replaces the view with a plain-text
// message until resized; no work is lost").
const (
	minWidth  = 60
	minHeight = 15
)

// Model is C8's full application state (spec §4.8).
type Model struct {
	settings   model.Settings
	workspaces []model.Workspace
	selected   map[string]bool // keyed by Workspace.GUID

	editor *editor.Editor

	jobs    []model.Job // local view, updated by JobEvent; replaced when a session loads
	jobByID map[string]int

	packsList      []*packs.Pack
	sessionNames   []string
	currentSession string
	sourcePack     string // pack name that produced the current in-memory session, if any
	dirty          bool

	activeTab Tab
	popup     Popup

	workspaceCursor int
	jobCursor       int
	packCursor      int
	sessionCursor   int
	settingsCursor  int

	width, height int

	// collaborators — side effects are always requested via Cmd, never
	// performed inline in Update (spec §4.8: "Update: pure").
	executor *executor.Executor
	catalog  *catalog.Catalog
	gate     *auth.Gate
	packs    *packs.Store
	sessions *session.Store
	exporter *export.Writer
	log      *logging.Logger

	lastError string
}

// New constructs the initial model. Collaborators are injected as
// concrete values rather than package-level singletons; any of them may
// be nil, in which case the commands that need it are not issued, so
// tests can drive Update with no collaborators at all.
func New(
	settings model.Settings,
	exec *executor.Executor,
	cat *catalog.Catalog,
	gate *auth.Gate,
	packStore *packs.Store,
	sessionStore *session.Store,
	exporter *export.Writer,
	log *logging.Logger,
) Model {
	return Model{
		settings:  settings,
		selected:  map[string]bool{},
		editor:    editor.New([]string{""}),
		jobByID:   map[string]int{},
		activeTab: TabQuery,
		executor:  exec,
		catalog:   cat,
		gate:      gate,
		packs:     packStore,
		sessions:  sessionStore,
		exporter:  exporter,
		log:       log,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{loadWorkspacesCmd(m.catalog)}
	if m.executor != nil {
		cmds = append(cmds, listenJobEvents(m.executor.Events()))
	}
	if m.gate != nil {
		cmds = append(cmds, listenAuthEvents(m.gate.Events()))
	}
	return tea.Batch(cmds...)
}

// --- messages -------------------------------------------------------

type tickMsg time.Time

type workspacesLoadedMsg struct {
	result catalog.Result
	err    error
}

type jobEventMsg struct {
	event executor.Event
	ch    <-chan executor.Event
}

type authEventMsg struct {
	event auth.Event
	ch    <-chan auth.Event
}

type packsLoadedMsg struct {
	packs []*packs.Pack
	errs  []error
}

type sessionsLoadedMsg struct {
	names []string
	err   error
}

type sessionSavedMsg struct {
	name string
	err  error
}

type sessionLoadedMsg struct {
	sess *session.Session
	err  error
}

type sessionDeletedMsg struct {
	name string
	err  error
}

// --- commands --------------------------------------------------------

func loadWorkspacesCmd(cat *catalog.Catalog) tea.Cmd {
	if cat == nil {
		return nil
	}
	return func() tea.Msg {
		res, err := cat.Discover(context.Background())
		return workspacesLoadedMsg{result: res, err: err}
	}
}

func listenJobEvents(ch <-chan executor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return jobEventMsg{event: ev, ch: ch}
	}
}

func listenAuthEvents(ch <-chan auth.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return authEventMsg{event: ev, ch: ch}
	}
}

func loadPacksCmd(store *packs.Store) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		found, errs := store.Discover()
		return packsLoadedMsg{packs: found, errs: errs}
	}
}

func loadSessionsCmd(store *session.Store) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		names, err := store.List()
		return sessionsLoadedMsg{names: names, err: err}
	}
}

// runPackCmd materializes one job per (query-in-pack, workspace-in-scope)
// and hands them to C3 (spec §4.5: "Execution of a pack (triggered by C8
// or C9)"). Workspace scope is resolved with Pack.ResolveWorkspaces
// against the catalog and the current UI selection; unlike C9's run-pack,
// a "selected" scope uses that selection rather than every workspace.
func runPackCmd(m Model, pack *packs.Pack) tea.Cmd {
	if m.executor == nil {
		return nil
	}
	wss, err := pack.ResolveWorkspaces(m.workspaces, m.selected)
	if err != nil || len(wss) == 0 {
		return nil
	}
	dispatchedAt := time.Now().UTC()
	batch := fmt.Sprintf("%d", dispatchedAt.UnixNano())
	jobs := pack.MaterializeJobs(wss, m.settings, batch, dispatchedAt, uuid.NewString)

	exec := m.executor
	var exporter executor.Exporter
	if m.exporter != nil {
		exporter = m.exporter
	}
	return func() tea.Msg {
		exec.Dispatch(context.Background(), jobs, exporter)
		return nil
	}
}

// buildSessionSnapshot captures the full in-memory operator state as a
// persistable Session (spec §3/§4.6).
func buildSessionSnapshot(m Model, name string) *session.Session {
	return &session.Session{
		Name:         name,
		Settings:     m.settings,
		SourcePack:   m.sourcePack,
		EditorBuffer: m.editor.Lines(),
		Jobs:         m.jobs,
	}
}

// saveSessionCmd persists the current in-memory state under name. When
// asNew is true it refuses to overwrite an existing session of that name
// (spec §4.6: "'save as' refuses to overwrite without confirmation").
func saveSessionCmd(m Model, name string, asNew bool) tea.Cmd {
	if m.sessions == nil {
		return nil
	}
	sess := buildSessionSnapshot(m, name)
	store := m.sessions
	return func() tea.Msg {
		var err error
		if asNew {
			err = store.SaveAs(sess)
		} else {
			err = store.Save(sess)
		}
		return sessionSavedMsg{name: name, err: err}
	}
}

// loadSessionCmd reads a saved session by name (spec §4.6).
func loadSessionCmd(store *session.Store, name string) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		sess, err := store.Load(name)
		return sessionLoadedMsg{sess: sess, err: err}
	}
}

// deleteSessionCmd removes a saved session by name (spec §4.6).
func deleteSessionCmd(store *session.Store, name string) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		err := store.Delete(name)
		return sessionDeletedMsg{name: name, err: err}
	}
}

// dispatchJobsCmd materializes N jobs for the selected workspaces (every
// workspace when none is selected) and hands them to C3 (spec §4.8's
// Ctrl+j flow).
func dispatchJobsCmd(m Model, jobName string) tea.Cmd {
	if m.executor == nil {
		return nil
	}
	wss := m.selectedOrAllWorkspaces()
	query := joinLines(m.editor.Lines())
	dispatchBatch := fmt.Sprintf("%d", time.Now().UnixNano())
	now := time.Now().UTC()

	jobs := make([]model.Job, 0, len(wss))
	for _, ws := range wss {
		jobs = append(jobs, model.Job{
			ID:               uuid.NewString(),
			Name:             jobName,
			Workspace:        ws,
			Query:            model.QueryContext{Text: query},
			SettingsSnapshot: m.settings,
			DispatchBatch:    dispatchBatch,
			DispatchedAt:     now,
			Status:           model.JobQueued,
		})
	}
	exec := m.executor
	var exporter executor.Exporter
	if m.exporter != nil {
		exporter = m.exporter
	}
	return func() tea.Msg {
		exec.Dispatch(context.Background(), jobs, exporter)
		return nil
	}
}

func (m Model) selectedOrAllWorkspaces() []model.Workspace {
	if len(m.selected) == 0 {
		return m.workspaces
	}
	var out []model.Workspace
	for _, ws := range m.workspaces {
		if m.selected[ws.GUID] {
			out = append(out, ws)
		}
	}
	if len(out) == 0 {
		return m.workspaces
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
