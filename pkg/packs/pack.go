// Package packs implements the Pack Store (C5): load, validate and
// materialize reusable query definitions from the pack library (spec
// §4.5, §6).
package packs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dolly-parseton/kql-panopticon/pkg/model"
)

// WorkspaceScope selects which catalog workspaces a pack runs against.
type WorkspaceScope struct {
	Scope    string   `yaml:"scope" json:"scope"` // "all" | "selected" | "pattern"
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// Query is one named query entry in a multi-query pack.
type Query struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Query       string `yaml:"query" json:"query"`
}

// Pack is a reusable query definition, the structured form of spec §6's
// schema. Exactly one of Query/Queries is ever populated after Validate.
type Pack struct {
	Name        string                  `yaml:"name" json:"name"`
	Description string                  `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string                  `yaml:"author,omitempty" json:"author,omitempty"`
	Version     string                  `yaml:"version,omitempty" json:"version,omitempty"`
	Query       string                  `yaml:"query,omitempty" json:"query,omitempty"`
	Queries     []Query                 `yaml:"queries,omitempty" json:"queries,omitempty"`
	Settings    model.SettingsOverride  `yaml:"settings,omitempty" json:"settings,omitempty"`
	Workspaces  WorkspaceScope          `yaml:"workspaces,omitempty" json:"workspaces,omitempty"`

	// SourcePack records the provenance pack name when this Pack was
	// produced by a session's export-as-pack operation (spec §4.6).
	SourcePack string `yaml:"source_pack,omitempty" json:"source_pack,omitempty"`

	// SourcePath is attached on load, not part of the schema (spec §4.5
	// "attach source path").
	SourcePath string `yaml:"-" json:"-"`
}

// ValidationError names the offending field, per spec §4.5/§7: "schema
// violations ... reported with field path and reason; never fatal."
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks the schema invariants from spec §3/§6. It never
// panics on malformed input; every failure is a *ValidationError.
func (p *Pack) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	hasSingle := p.Query != ""
	hasMulti := len(p.Queries) > 0
	if hasSingle == hasMulti {
		return &ValidationError{Field: "query/queries", Reason: "exactly one of query or queries is required"}
	}
	if hasMulti {
		for i, q := range p.Queries {
			if strings.TrimSpace(q.Name) == "" {
				return &ValidationError{Field: fmt.Sprintf("queries[%d].name", i), Reason: "required"}
			}
			if strings.TrimSpace(q.Query) == "" {
				return &ValidationError{Field: fmt.Sprintf("queries[%d].query", i), Reason: "required"}
			}
		}
	}
	switch p.Workspaces.Scope {
	case "", "all", "selected":
	case "pattern":
		if len(p.Workspaces.Patterns) == 0 {
			return &ValidationError{Field: "workspaces.patterns", Reason: "required when scope is \"pattern\""}
		}
		for i, pat := range p.Workspaces.Patterns {
			if _, err := filepath.Match(pat, ""); err != nil {
				return &ValidationError{Field: fmt.Sprintf("workspaces.patterns[%d]", i), Reason: "invalid glob: " + err.Error()}
			}
		}
	default:
		return &ValidationError{Field: "workspaces.scope", Reason: fmt.Sprintf("unknown scope %q", p.Workspaces.Scope)}
	}
	return nil
}

// MultiQuery reports whether this pack's jobs need the §4.4
// `_{query_name_normalized}` output-file suffix.
func (p *Pack) MultiQuery() bool { return len(p.Queries) > 1 }

// Queryset returns every (name, text) pair in declaration order,
// regardless of which schema form the pack used.
func (p *Pack) Queryset() []Query {
	if len(p.Queries) > 0 {
		return p.Queries
	}
	return []Query{{Query: p.Query}}
}

// Store discovers and loads packs from the library root.
type Store struct {
	root string
}

func NewStore(root string) *Store { return &Store{root: root} }

// Discover recursively scans root for .yaml/.yml/.json pack files,
// returning every file that at least parses (validation failures are
// returned alongside the parsed pack, not dropped, so callers like
// `validate_only` can report them).
func (s *Store) Discover() ([]*Pack, []error) {
	var packs []*Pack
	var errs []error

	_ = filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			errs = append(errs, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
		default:
			return nil
		}
		p, err := Load(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		packs = append(packs, p)
		return nil
	})
	return packs, errs
}

// Load parses one pack file. It does not validate; callers decide when
// to call Validate (e.g. Discover keeps invalid packs around so
// `validate_only` can report each invalid pack; Validate itself stops at
// the first failing field).
func Load(path string) (*Pack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Pack
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	p.SourcePath = path
	return &p, nil
}

// ResolveWorkspaces applies the pack's workspace scope against the
// catalog and (for "selected") the UI's current selection, per spec
// §4.5.
func (p *Pack) ResolveWorkspaces(all []model.Workspace, selected map[string]bool) ([]model.Workspace, error) {
	switch p.Workspaces.Scope {
	case "", "all":
		return all, nil
	case "selected":
		var out []model.Workspace
		for _, w := range all {
			if selected[w.GUID] {
				out = append(out, w)
			}
		}
		return out, nil
	case "pattern":
		var out []model.Workspace
		for _, w := range all {
			for _, pat := range p.Workspaces.Patterns {
				matched, err := filepath.Match(pat, w.Name)
				if err != nil {
					return nil, fmt.Errorf("workspaces.patterns: %w", err)
				}
				if matched {
					out = append(out, w)
					break
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown workspace scope %q", p.Workspaces.Scope)
	}
}

// MaterializeJobs builds one model.Job per (query-in-pack,
// workspace-in-scope), per spec §4.5. newID is called once per job.
// dispatchBatch and dispatchedAt are shared across every job of this
// call so sibling outputs co-locate (spec §4.4).
func (p *Pack) MaterializeJobs(workspaces []model.Workspace, settings model.Settings, dispatchBatch string, dispatchedAt time.Time, newID func() string) []model.Job {
	queries := p.Queryset()
	multi := p.MultiQuery()
	snapshot := settings.Merge(p.Settings)

	jobs := make([]model.Job, 0, len(queries)*len(workspaces))
	for _, ws := range workspaces {
		for _, q := range queries {
			jobs = append(jobs, model.Job{
				ID:        newID(),
				Name:      p.Name,
				Workspace: ws,
				Query: model.QueryContext{
					Text:       q.Query,
					Name:       q.Name,
					SourcePack: p.Name,
					MultiQuery: multi,
				},
				SettingsSnapshot: snapshot,
				DispatchBatch:    dispatchBatch,
				DispatchedAt:     dispatchedAt,
				Status:           model.JobQueued,
			})
		}
	}
	return jobs
}
