// Package catalog implements the Workspace Catalog (C1): one-shot
// discovery of every Log Analytics workspace the current credential can
// read, across all visible subscriptions (spec §4.1).
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	armoperationalinsights "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/operationalinsights/armoperationalinsights"
	armsubscriptions "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/subscriptions/armsubscriptions"

	"github.com/dolly-parseton/kql-panopticon/pkg/logging"
	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/utils"
)

// Catalog discovers workspaces. Constructed once at startup and refreshed
// on explicit operator action; its results are immutable values handed to
// the TUI model (spec §4.1, §9 "process-wide singletons").
type Catalog struct {
	cred azcore.TokenCredential
	log  *logging.Logger
}

func New(cred azcore.TokenCredential, log *logging.Logger) *Catalog {
	return &Catalog{cred: cred, log: log}
}

// Result is the outcome of Discover: the workspace list plus any
// non-fatal per-subscription failures (spec §4.1: "partial subscription
// errors are logged and skipped").
type Result struct {
	Workspaces []model.Workspace
	Warnings   []string
}

// Discover lists every workspace across every subscription the credential
// can enumerate. A credential error here is fatal to startup (returned as
// err); partial subscription failures are collected into Warnings and do
// not fail the call.
func (c *Catalog) Discover(ctx context.Context) (Result, error) {
	subClient, err := armsubscriptions.NewClient(c.cred, nil)
	if err != nil {
		return Result{}, fmt.Errorf("auth failure: init subscriptions client: %w", err)
	}

	var subs []armsubscriptions.Subscription
	pager := subClient.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("auth failure: list subscriptions: %w", err)
		}
		for _, s := range page.Value {
			if s != nil {
				subs = append(subs, *s)
			}
		}
	}

	var res Result
	for _, sub := range subs {
		if sub.SubscriptionID == nil {
			continue
		}
		wss, err := c.workspacesForSubscription(ctx, *sub.SubscriptionID, displayName(sub))
		if err != nil {
			msg := fmt.Sprintf("subscription %s: %v", displayName(sub), err)
			res.Warnings = append(res.Warnings, msg)
			if c.log != nil {
				c.log.Warn("workspace discovery partial failure", "subscription", displayName(sub), "error", err)
			}
			continue
		}
		res.Workspaces = append(res.Workspaces, wss...)
	}

	sort.Slice(res.Workspaces, func(i, j int) bool { return res.Workspaces[i].Less(res.Workspaces[j]) })
	return res, nil
}

func displayName(s armsubscriptions.Subscription) string {
	if s.DisplayName != nil {
		return *s.DisplayName
	}
	if s.SubscriptionID != nil {
		return *s.SubscriptionID
	}
	return "unknown"
}

func (c *Catalog) workspacesForSubscription(ctx context.Context, subID, subName string) ([]model.Workspace, error) {
	wcli, err := armoperationalinsights.NewWorkspacesClient(subID, c.cred, nil)
	if err != nil {
		return nil, err
	}

	var out []model.Workspace
	pager := wcli.NewListBySubscriptionPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, w := range page.Value {
			if w == nil || w.ID == nil || w.Name == nil {
				continue
			}
			_, rg, _, err := utils.ParseResourceID(*w.ID)
			if err != nil {
				continue
			}
			ws := model.Workspace{
				ID:               *w.ID,
				Name:             *w.Name,
				SubscriptionID:   subID,
				SubscriptionName: subName,
				ResourceGroup:    rg,
			}
			if w.Location != nil {
				ws.Region = *w.Location
			}
			if w.Properties != nil && w.Properties.CustomerID != nil {
				ws.GUID = *w.Properties.CustomerID
			}
			out = append(out, ws)
		}
	}
	return out, nil
}
