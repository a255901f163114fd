package tui

// Tab is the closed set of top-level views (spec §4.8: "active tab (one
// of 6)").
type Tab struct{ v int }

var (
	TabQuery      = Tab{0}
	TabWorkspaces = Tab{1}
	TabJobs       = Tab{2}
	TabPacks      = Tab{3}
	TabSessions   = Tab{4}
	TabSettings   = Tab{5}
)

var tabOrder = []Tab{TabQuery, TabWorkspaces, TabJobs, TabPacks, TabSessions, TabSettings}

func (t Tab) String() string {
	switch t {
	case TabQuery:
		return "Query"
	case TabWorkspaces:
		return "Workspaces"
	case TabJobs:
		return "Jobs"
	case TabPacks:
		return "Packs"
	case TabSessions:
		return "Sessions"
	case TabSettings:
		return "Settings"
	default:
		return "Unknown"
	}
}

func (t Tab) index() int {
	for i, o := range tabOrder {
		if o == t {
			return i
		}
	}
	return 0
}

func tabFromDigit(d byte) (Tab, bool) {
	if d < '1' || d > '6' {
		return Tab{}, false
	}
	return tabOrder[d-'1'], true
}

func nextTab(t Tab) Tab {
	return tabOrder[(t.index()+1)%len(tabOrder)]
}

func prevTab(t Tab) Tab {
	return tabOrder[(t.index()-1+len(tabOrder))%len(tabOrder)]
}
