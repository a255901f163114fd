// Package auth implements the Auth Gate (C10): a process-wide singleton
// holding the Azure credential and a cached access token, with a
// background ticker that periodically revalidates it (spec §4.10).
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/dolly-parseton/kql-panopticon/pkg/logging"
)

// scope is the Log Analytics / ARM resource scope used for token
// acquisition, matching the default scope azidentity's chained
// credential resolves against for Azure Monitor data-plane calls.
const scope = "https://api.loganalytics.io/.default"

// Event is posted on the Gate's channel whenever a background
// revalidation completes; C8 turns a failed one into an AuthExpired
// banner message.
type Event struct {
	OK  bool
	Err error
	At  time.Time
}

// Gate wraps a TokenCredential with a mutex-guarded cache (spec §5:
// "shared read, guarded by a mutex; refresh is serialized") and a
// ticker-driven revalidation loop.
type Gate struct {
	cred               azcore.TokenCredential
	validationInterval time.Duration
	log                *logging.Logger

	mu     sync.Mutex
	cached azcore.AccessToken

	events chan Event
}

// New constructs a Gate around an already-resolved credential (the
// credential-discovery collaborator itself is out of scope per spec §1).
func New(cred azcore.TokenCredential, validationInterval time.Duration, log *logging.Logger) *Gate {
	if validationInterval <= 0 {
		validationInterval = 300 * time.Second
	}
	return &Gate{
		cred:               cred,
		validationInterval: validationInterval,
		log:                log,
		events:             make(chan Event, 1),
	}
}

// Credential exposes the underlying TokenCredential for constructing
// Azure SDK clients (azquery.NewLogsClient, armoperationalinsights...).
func (g *Gate) Credential() azcore.TokenCredential { return g.cred }

// Events returns the channel C8 listens on for AuthRevalidated messages.
func (g *Gate) Events() <-chan Event { return g.events }

// Token returns a cached token if still valid, otherwise refreshes it.
// Refresh is serialized by mu, matching the "refresh is serialized"
// resource-model guarantee in spec §5.
func (g *Gate) Token(ctx context.Context) (azcore.AccessToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached.Token != "" && time.Now().Before(g.cached.ExpiresOn.Add(-time.Minute)) {
		return g.cached, nil
	}
	tok, err := g.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return azcore.AccessToken{}, err
	}
	g.cached = tok
	return tok, nil
}

// ForceRefresh discards any cached token and fetches a fresh one. Used by
// the Query Client (C2) on a 401/403 response; this refresh is orthogonal
// to and does not interact with the background ticker (spec §4.10).
func (g *Gate) ForceRefresh(ctx context.Context) (azcore.AccessToken, error) {
	g.mu.Lock()
	g.cached = azcore.AccessToken{}
	g.mu.Unlock()
	return g.Token(ctx)
}

// Run starts the background revalidation ticker and blocks until ctx is
// canceled. Call it in its own goroutine from the TUI's command runtime.
func (g *Gate) Run(ctx context.Context) {
	t := time.NewTicker(g.validationInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, err := g.ForceRefresh(ctx)
			ev := Event{OK: err == nil, Err: err, At: time.Now()}
			if err != nil && g.log != nil {
				g.log.Warn("auth revalidation failed", "error", err)
			}
			select {
			case g.events <- ev:
			default:
				// events channel is unbounded in spirit but buffered by 1
				// in practice; drop a stale tick rather than block the
				// ticker loop if C8 hasn't drained yet.
			}
		}
	}
}
