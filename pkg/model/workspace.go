// Package model holds the data types shared across the job executor, the
// TUI, and the persistence layers: workspaces, settings and jobs. None of
// these types own a network or filesystem dependency; they are plain
// values passed between components, the way the teacher's Config struct
// is passed into Gatherer without either owning the other.
package model

// Workspace identifies one queryable Log Analytics endpoint, as discovered
// by the catalog (C1). It is immutable once populated and is never
// persisted across runs (spec §3).
type Workspace struct {
	// ID is the ARM resource ID, e.g.
	// /subscriptions/<sub>/resourceGroups/<rg>/providers/Microsoft.OperationalInsights/workspaces/<name>
	ID string
	// GUID is the workspace's customerId, the identifier azquery expects.
	GUID string
	Name string

	SubscriptionID   string
	SubscriptionName string
	ResourceGroup    string
	Region           string
}

// Less implements the stable ordering required by §4.1: by (subscription
// name, workspace name).
func (w Workspace) Less(o Workspace) bool {
	if w.SubscriptionName != o.SubscriptionName {
		return w.SubscriptionName < o.SubscriptionName
	}
	return w.Name < o.Name
}
