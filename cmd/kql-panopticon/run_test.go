package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/packs"
)

func TestResolveCLIWorkspacesAll(t *testing.T) {
	all := []model.Workspace{{Name: "Prod"}, {Name: "Staging"}}
	pack := &packs.Pack{Name: "p", Query: "T | count"}

	got, err := resolveCLIWorkspaces(pack, all, "all")
	require.NoError(t, err)
	assert.Equal(t, all, got)

	got, err = resolveCLIWorkspaces(pack, all, "")
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestResolveCLIWorkspacesExplicitList(t *testing.T) {
	all := []model.Workspace{{Name: "Prod"}, {Name: "Staging"}, {Name: "Dev"}}
	pack := &packs.Pack{Name: "p", Query: "T | count"}

	got, err := resolveCLIWorkspaces(pack, all, "Prod, Dev")
	require.NoError(t, err)
	require.Len(t, got, 2)
	names := []string{got[0].Name, got[1].Name}
	assert.ElementsMatch(t, []string{"Prod", "Dev"}, names)
}

func TestResolveCLIWorkspacesSelectedScopeDefaultsToAll(t *testing.T) {
	all := []model.Workspace{{Name: "Prod", GUID: "g1"}, {Name: "Staging", GUID: "g2"}}
	pack := &packs.Pack{Name: "p", Query: "T | count", Workspaces: packs.WorkspaceScope{Scope: "selected"}}

	got, err := resolveCLIWorkspaces(pack, all, "all")
	require.NoError(t, err)
	assert.Equal(t, all, got, "CLI default for a selected-scope pack is every discovered workspace")

	got, err = resolveCLIWorkspaces(pack, all, "")
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestResolveCLIWorkspacesSelectedScopeHonorsExplicitFlag(t *testing.T) {
	all := []model.Workspace{{Name: "Prod", GUID: "g1"}, {Name: "Staging", GUID: "g2"}}
	pack := &packs.Pack{Name: "p", Query: "T | count", Workspaces: packs.WorkspaceScope{Scope: "selected"}}

	got, err := resolveCLIWorkspaces(pack, all, "Prod")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Prod", got[0].Name)
}

func TestResolveCLIWorkspacesNoMatch(t *testing.T) {
	all := []model.Workspace{{Name: "Prod"}}
	pack := &packs.Pack{Name: "p", Query: "T | count"}

	got, err := resolveCLIWorkspaces(pack, all, "Nonexistent")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, 1, exitCodeFor(failWith(1, errors.New("job failed"))))
	assert.Equal(t, 2, exitCodeFor(failWith(2, errors.New("bad invocation"))))
	assert.Equal(t, 2, exitCodeFor(errors.New("unwrapped error")))
}

func TestFindPackByDirectPath(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/p.yaml"
	require.NoError(t, os.WriteFile(path, []byte("name: p\nquery: T | count\n"), 0o644))

	store := packs.NewStore(dir)
	p, err := findPack(store, path)
	require.NoError(t, err)
	assert.Equal(t, "p", p.Name)
}

func TestFindPackByNameInLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/mypack.yaml", []byte("name: MyPack\nquery: T | count\n"), 0o644))

	store := packs.NewStore(dir)
	p, err := findPack(store, "MyPack")
	require.NoError(t, err)
	assert.Equal(t, "MyPack", p.Name)
}
