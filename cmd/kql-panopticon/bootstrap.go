package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/google/uuid"

	"github.com/dolly-parseton/kql-panopticon/pkg/auth"
	"github.com/dolly-parseton/kql-panopticon/pkg/catalog"
	"github.com/dolly-parseton/kql-panopticon/pkg/executor"
	"github.com/dolly-parseton/kql-panopticon/pkg/logging"
	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/packs"
	"github.com/dolly-parseton/kql-panopticon/pkg/queryclient"
	"github.com/dolly-parseton/kql-panopticon/pkg/session"
)

// panopticonHome resolves ~/.kql-panopticon (spec §6: "honors HOME ... to
// locate ~/.kql-panopticon/").
func panopticonHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".kql-panopticon"), nil
}

// deps bundles every collaborator C8/C9 drive directly, grounded on the
// teacher's azidentity.NewDefaultAzureCredential construction in
// cmd/aks-must-gather/main.go, generalized with the revalidating Auth
// Gate (C10) the teacher never needed.
type deps struct {
	gate     *auth.Gate
	catalog  *catalog.Catalog
	client   *queryclient.Client
	executor *executor.Executor
	packs    *packs.Store
	sessions *session.Store
	log      *logging.Logger
}

func buildDeps(settings model.Settings, log *logging.Logger) (*deps, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	home, err := panopticonHome()
	if err != nil {
		return nil, err
	}

	interval := time.Duration(settings.ValidationIntervalSecs) * time.Second
	gate := auth.New(cred, interval, log)
	cat := catalog.New(cred, log)
	client, err := queryclient.New(cred, gate, log)
	if err != nil {
		return nil, fmt.Errorf("query client: %w", err)
	}
	exec := executor.New(client, log)

	return &deps{
		gate:     gate,
		catalog:  cat,
		client:   client,
		executor: exec,
		packs:    packs.NewStore(filepath.Join(home, "packs")),
		sessions: session.NewStore(filepath.Join(home, "sessions")),
		log:      log,
	}, nil
}

// newJobID mints job identifiers for CLI-dispatched jobs, the same
// generator (uuid.NewString) the TUI uses for its dispatches and the
// executor uses for retry clones.
func newJobID() string { return uuid.NewString() }

func openLog(path string) (*logging.Logger, func(), error) {
	if path == "" {
		return logging.NewNop(), func() {}, nil
	}
	l, closer, err := logging.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return l, func() { _ = closer.Close() }, nil
}
