// Package session implements the Session Store (C6): saved execution
// records, their save/load/delete lifecycle, dirty tracking, and
// export-as-pack (spec §4.6).
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/packs"
)

// ErrExists is returned by SaveAs when a session of that name already
// exists (spec §4.6: "save as refuses to overwrite without confirmation").
var ErrExists = errors.New("session: a session with that name already exists")

// ErrNoQueries is returned by ExportAsPack when no job in the session
// carries enough context to export (spec §4.6).
var ErrNoQueries = errors.New("session: no queries to export")

// Session is the full execution-record snapshot persisted to disk.
type Session struct {
	Name         string         `json:"name"`
	SavedAt      time.Time      `json:"saved_at"`
	Settings     model.Settings `json:"settings"`
	SourcePack   string         `json:"source_pack,omitempty"`
	EditorBuffer []string       `json:"editor_buffer"`
	Jobs         []model.Job    `json:"jobs"`
}

// Store manages the on-disk session library.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Exists reports whether a session of the given name is already saved.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Save writes sess atomically, overwriting any existing file of the same
// name (spec §4.6: plain "Save" overwrites).
func (s *Store) Save(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("session: create directory: %w", err)
	}
	sess.SavedAt = sess.SavedAt.UTC()
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	path := s.path(sess.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}

// SaveAs is Save but refuses to overwrite an existing session of the
// same name (spec §4.6).
func (s *Store) SaveAs(sess *Session) error {
	if s.Exists(sess.Name) {
		return ErrExists
	}
	return s.Save(sess)
}

// Load reads and parses a saved session by name.
func (s *Store) Load(name string) (*Session, error) {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", name, err)
	}
	return &sess, nil
}

// Delete removes the session file by name. It is not an error to delete
// a session that does not exist on disk (idempotent).
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the names of every saved session.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".json")])
	}
	return names, nil
}

// ExportAsPack deduplicates queries across sibling jobs (same query text
// run on N workspaces collapses to one entry), preserving SourcePack as
// the exported pack's provenance (spec §4.6).
func (sess *Session) ExportAsPack(name string) (*packs.Pack, error) {
	order := []string{}
	byText := map[string]packs.Query{}

	for _, j := range sess.Jobs {
		if !j.HasContext() {
			continue
		}
		text := j.Query.Text
		if _, ok := byText[text]; ok {
			continue
		}
		qname := j.Query.Name
		if qname == "" {
			qname = fmt.Sprintf("query_%d", len(order)+1)
		}
		byText[text] = packs.Query{Name: qname, Query: text}
		order = append(order, text)
	}

	if len(order) == 0 {
		return nil, ErrNoQueries
	}

	p := &packs.Pack{
		Name:       name,
		SourcePack: firstNonEmptySourcePack(sess.Jobs),
	}
	if len(order) == 1 {
		p.Query = order[0]
	} else {
		for _, text := range order {
			p.Queries = append(p.Queries, byText[text])
		}
	}
	return p, nil
}

func firstNonEmptySourcePack(jobs []model.Job) string {
	for _, j := range jobs {
		if j.Query.SourcePack != "" {
			return j.Query.SourcePack
		}
	}
	return ""
}
