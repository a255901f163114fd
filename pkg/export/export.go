// Package export implements the Export Writer (C4): the deterministic
// filesystem layout and CSV/JSON serialization for completed jobs (spec
// §4.4). C4 is the only component that touches the filesystem for
// results; C3 only calls Writer.Write at a job's Completed transition.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/queryclient"
	"github.com/dolly-parseton/kql-panopticon/pkg/utils"
)

// identity is the pre-normalization (subscription, workspace) pair a
// normalized path segment was first observed for.
type identity struct {
	subscription string
	workspace    string
}

// Writer serializes a completed job's result to {output_folder}/... per
// spec §4.4. It satisfies executor.Exporter without importing the
// executor package, keeping C3 the only caller of C4.
//
// Writer tracks which distinct (subscription, workspace) pair first
// claimed a given normalized path prefix, so a later job whose names
// collide on *both* segments after normalization is rejected rather than
// silently overwriting a different workspace's results (spec §8).
type Writer struct {
	mu    sync.Mutex
	claim map[string]identity
}

func New() *Writer { return &Writer{claim: map[string]identity{}} }

// Write lays out and serializes result for job, returning the paths
// written. Both CSV and JSON may be written if the job's settings
// snapshot requests both (spec §4.4: "Both formats may be emitted"). ctx
// is accepted to satisfy executor.Exporter; writes are local filesystem
// operations and are not cancelled mid-flight.
func (w *Writer) Write(ctx context.Context, job model.Job, result queryclient.Result) ([]string, error) {
	if err := w.checkCollision(job.Workspace.SubscriptionName, job.Workspace.Name); err != nil {
		return nil, err
	}

	dir := w.jobDir(job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create directory %s: %w", dir, err)
	}

	base := utils.Normalize(job.Name)
	if job.Query.MultiQuery {
		base = base + "_" + utils.Normalize(job.Query.Name)
	}

	metaDir := filepath.Join(dir, "metadata")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create directory %s: %w", metaDir, err)
	}
	metaPath := filepath.Join(metaDir, base+".json")
	if err := writeAtomic(metaPath, func(f *os.File) error { return writeMetadata(f, job, result) }); err != nil {
		return nil, fmt.Errorf("export: write metadata: %w", err)
	}

	var paths []string
	if job.SettingsSnapshot.ExportCSV {
		p := filepath.Join(dir, base+".csv")
		if err := writeAtomic(p, func(f *os.File) error { return writeCSV(f, result) }); err != nil {
			return nil, fmt.Errorf("export: write csv: %w", err)
		}
		paths = append(paths, p)
	}
	if job.SettingsSnapshot.ExportJSON {
		p := filepath.Join(dir, base+".json")
		if err := writeAtomic(p, func(f *os.File) error { return writeJSON(f, result) }); err != nil {
			return nil, fmt.Errorf("export: write json: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// checkCollision enforces spec §8: "if both subscription and workspace
// collide on normalization, the second write is rejected with a clear
// error." A workspace-only collision is fine because the (distinct)
// subscription segment still disambiguates the path.
func (w *Writer) checkCollision(subName, wsName string) error {
	key := utils.Normalize(subName) + "/" + utils.Normalize(wsName)
	id := identity{subscription: subName, workspace: wsName}

	w.mu.Lock()
	defer w.mu.Unlock()
	existing, ok := w.claim[key]
	if !ok {
		w.claim[key] = id
		return nil
	}
	if existing != id {
		return fmt.Errorf("export: normalization collision: %q and %q both normalize to %q", existing.workspace, wsName, key)
	}
	return nil
}

// jobDir computes the hierarchy described in spec §4.4, keyed on the
// dispatch timestamp shared by every sibling job of one dispatch so they
// co-locate regardless of individual completion order.
func (w *Writer) jobDir(job model.Job) string {
	ts := job.DispatchedAt
	if ts.IsZero() {
		ts = job.Queued
	}
	stamp := ts.UTC().Format("2006-01-02_15-04-05")
	return filepath.Join(
		job.SettingsSnapshot.OutputFolder,
		utils.Normalize(job.Workspace.SubscriptionName),
		utils.Normalize(job.Workspace.Name),
		stamp,
	)
}

// writeAtomic writes via a sibling *.tmp file and renames into place so a
// reader never observes a partial file (spec §4.4).
func writeAtomic(path string, body func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := body(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeCSV(f *os.File, result queryclient.Result) error {
	cw := csv.NewWriter(f)
	header := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range result.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = formatCSVValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatCSVValue implements the fixed formatting rule of spec §4.4:
// booleans as true/false, nulls as empty, timestamps ISO-8601 UTC,
// dynamics (already decoded or left as string by C2) as compact JSON.
func formatCSVValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// writeMetadata records per-job provenance alongside the result files,
// modeled on the teacher's metadata/workspace.json + metadata/azure.json
// convention in gatherer.go (applied here per job rather than once per
// must-gather bundle).
func writeMetadata(f *os.File, job model.Job, result queryclient.Result) error {
	meta := map[string]any{
		"generatedAt":      time.Now().UTC().Format(time.RFC3339Nano),
		"jobID":            job.ID,
		"jobName":          job.Name,
		"subscriptionID":   job.Workspace.SubscriptionID,
		"subscriptionName": job.Workspace.SubscriptionName,
		"workspaceGUID":    job.Workspace.GUID,
		"workspaceName":    job.Workspace.Name,
		"resourceGroup":    job.Workspace.ResourceGroup,
		"sourcePack":       job.Query.SourcePack,
		"rowCount":         result.RowCount,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func writeJSON(f *os.File, result queryclient.Result) error {
	rows := make([]map[string]any, len(result.Rows))
	for i, row := range result.Rows {
		obj := make(map[string]any, len(result.Columns))
		for c, col := range result.Columns {
			if c < len(row) {
				obj[col.Name] = row[c]
			}
		}
		rows[i] = obj
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

