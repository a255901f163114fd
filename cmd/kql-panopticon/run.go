package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aquasecurity/table"
	"github.com/spf13/cobra"

	"github.com/dolly-parseton/kql-panopticon/pkg/executor"
	"github.com/dolly-parseton/kql-panopticon/pkg/export"
	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/packs"
)

var (
	runWorkspacesFlag string
	runFormatFlag     string
	runJSONFlag       bool
	runValidateOnly   bool
)

var runPackCmd = &cobra.Command{
	Use:   "run-pack <pack>",
	Short: "Load and execute a query pack without the TUI (spec §4.9)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunPack,
}

func init() {
	runPackCmd.Flags().StringVar(&runWorkspacesFlag, "workspaces", "all", "workspace list (comma-separated names) or \"all\"")
	runPackCmd.Flags().StringVar(&runFormatFlag, "format", "files", "output format: files|stdout")
	runPackCmd.Flags().BoolVar(&runJSONFlag, "json", false, "emit a single JSON document to stdout")
	runPackCmd.Flags().BoolVar(&runValidateOnly, "validate-only", false, "validate the pack and exit without executing")
}

// findPack resolves the <pack> argument against the library, accepting
// either a bare pack name or a path to a pack file directly.
func findPack(packStore *packs.Store, arg string) (*packs.Pack, error) {
	if _, err := os.Stat(arg); err == nil {
		return packs.Load(arg)
	}
	discovered, errs := packStore.Discover()
	for _, p := range discovered {
		if p.Name == arg || strings.TrimSuffix(filepath.Base(p.SourcePath), filepath.Ext(p.SourcePath)) == arg {
			return p, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pack %q not found (library also had %d unparseable file(s): %v)", arg, len(errs), errs[0])
	}
	return nil, fmt.Errorf("pack %q not found in library", arg)
}

func runRunPack(cmd *cobra.Command, args []string) error {
	log, closeLog, err := openLog(logPath)
	if err != nil {
		return failWith(2, err)
	}
	defer closeLog()

	settings := loadSettings()

	home, err := panopticonHome()
	if err != nil {
		return failWith(2, err)
	}
	packStore := packs.NewStore(filepath.Join(home, "packs"))

	pack, err := findPack(packStore, args[0])
	if err != nil {
		return failWith(2, err)
	}

	if err := pack.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "validation error:", err)
		return failWith(1, err)
	}
	if runValidateOnly {
		fmt.Println("pack is valid")
		return nil
	}

	d, err := buildDeps(settings, log)
	if err != nil {
		return failWith(1, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.gate.Run(ctx)

	discovery, err := d.catalog.Discover(ctx)
	if err != nil {
		return failWith(1, fmt.Errorf("workspace discovery: %w", err))
	}
	for _, w := range discovery.Warnings {
		log.Warn("catalog warning", "warning", w)
	}

	workspaces, err := resolveCLIWorkspaces(pack, discovery.Workspaces, runWorkspacesFlag)
	if err != nil {
		return failWith(2, err)
	}
	if len(workspaces) == 0 {
		return failWith(2, fmt.Errorf("no workspaces matched %q", runWorkspacesFlag))
	}

	dispatchedAt := time.Now().UTC()
	batch := dispatchedAt.Format("2006-01-02_15-04-05")
	jobs := pack.MaterializeJobs(workspaces, settings, batch, dispatchedAt, newJobID)

	// exporter stays a nil executor.Exporter (not a typed nil *export.Writer)
	// when format is "stdout", so the executor's "exporter != nil" check
	// actually skips the write instead of calling Write on a nil receiver.
	var exporter executor.Exporter
	if runFormatFlag != "stdout" {
		exporter = export.New()
	}

	results := collectJobs(ctx, d, jobs, exporter)

	switch {
	case runJSONFlag:
		if err := json.NewEncoder(os.Stdout).Encode(results); err != nil {
			return failWith(1, err)
		}
	case runFormatFlag == "stdout":
		renderResultsTable(results)
	}

	for _, r := range results {
		if r.Status != model.JobCompleted.String() {
			return failWith(1, fmt.Errorf("one or more jobs did not complete"))
		}
	}
	return nil
}

// jobResult is the per-job summary the CLI emits to stdout (spec §4.9:
// "a single JSON document to stdout listing per-job {workspace, status,
// rows?, error?}").
type jobResult struct {
	Workspace string `json:"workspace"`
	Status    string `json:"status"`
	Rows      int    `json:"rows,omitempty"`
	Error     string `json:"error,omitempty"`
}

// collectJobs dispatches jobs through the executor and blocks until every
// one reaches a terminal status, per spec §4.9 ("block until all
// terminal").
func collectJobs(ctx context.Context, d *deps, jobs []model.Job, exporter executor.Exporter) []jobResult {
	pending := map[string]bool{}
	for _, j := range jobs {
		pending[j.ID] = true
	}

	done := make(chan struct{})
	results := make([]jobResult, 0, len(jobs))
	byID := map[string]*jobResult{}

	go func() {
		for ev := range d.executor.Events() {
			if !ev.Job.Status.Terminal() {
				continue
			}
			if !pending[ev.Job.ID] {
				continue
			}
			delete(pending, ev.Job.ID)
			r := jobResult{
				Workspace: ev.Job.Workspace.Name,
				Status:    ev.Job.Status.String(),
				Rows:      ev.Job.RowCount,
				Error:     ev.Job.Error,
			}
			byID[ev.Job.ID] = &r
			if len(pending) == 0 {
				close(done)
				return
			}
		}
	}()

	d.executor.Dispatch(ctx, jobs, exporter)
	<-done

	for _, j := range jobs {
		if r, ok := byID[j.ID]; ok {
			results = append(results, *r)
		}
	}
	return results
}

// renderResultsTable prints a human-readable table for `--format stdout`
// (SPEC_FULL.md supplemented feature: the same aquasecurity/table
// renderer the pack's katomik CLI depends on for status output).
func renderResultsTable(results []jobResult) {
	t := table.New(os.Stdout)
	t.SetHeaders("Workspace", "Status", "Rows", "Error")
	for _, r := range results {
		rows := ""
		if r.Status == model.JobCompleted.String() {
			rows = fmt.Sprintf("%d", r.Rows)
		}
		t.AddRow(r.Workspace, r.Status, rows, r.Error)
	}
	t.Render()
}

func resolveCLIWorkspaces(pack *packs.Pack, all []model.Workspace, flag string) ([]model.Workspace, error) {
	if flag == "" || flag == "all" {
		// The CLI has no UI selection to consult, so a "selected"-scope
		// pack falls back to every discovered workspace unless the
		// operator explicitly narrows it with --workspaces.
		if pack.Workspaces.Scope == "selected" {
			return all, nil
		}
		return pack.ResolveWorkspaces(all, nil)
	}
	names := map[string]bool{}
	for _, n := range strings.Split(flag, ",") {
		names[strings.TrimSpace(n)] = true
	}
	var out []model.Workspace
	for _, w := range all {
		if names[w.Name] {
			out = append(out, w)
		}
	}
	return out, nil
}
