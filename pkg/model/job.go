package model

import "time"

// JobStatus is the job lifecycle as a closed tagged variant (spec §9:
// "represent status as a tagged variant, not a string or int"). The
// underlying representation is an unexported int so a caller cannot
// construct an invalid status by converting an arbitrary string.
type JobStatus struct{ v int }

var (
	JobQueued    = JobStatus{0}
	JobRunning   = JobStatus{1}
	JobCompleted = JobStatus{2}
	JobFailed    = JobStatus{3}
)

func (s JobStatus) String() string {
	switch s {
	case JobQueued:
		return "Queued"
	case JobRunning:
		return "Running"
	case JobCompleted:
		return "Completed"
	case JobFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MarshalText writes the status name, so saved sessions keep it.
func (s JobStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText reads a name written by MarshalText; an unrecognized name
// decodes as Queued.
func (s *JobStatus) UnmarshalText(b []byte) error {
	for _, c := range []JobStatus{JobRunning, JobCompleted, JobFailed} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	*s = JobQueued
	return nil
}

// Terminal reports whether the status ends a job's life (no further
// transitions possible). The Job Executor's in-place retries re-enter
// Running before Failed is ever set, and an operator retry creates a new
// job, so a terminal job never changes status again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one execution of one query against one workspace (spec §3).
type Job struct {
	ID       string
	Name     string // operator-supplied, shared across sibling jobs of one dispatch
	Workspace Workspace
	Query    QueryContext

	SettingsSnapshot Settings
	DispatchBatch    string // shared dispatch-timestamp id across sibling jobs
	DispatchedAt     time.Time

	Status JobStatus

	Queued    time.Time
	Started   time.Time
	Completed time.Time

	RowCount int
	Error    string

	OutputPaths []string

	// Attempt counts retries; 1 on first run, incremented on each retry.
	Attempt int
}

// QueryContext is the frozen identity of what a job runs: the query text
// plus, for pack-sourced jobs, the name that disambiguates sibling
// outputs (spec §4.4 "_{query_name_normalized} suffix").
type QueryContext struct {
	Text        string
	Name        string // empty for single-query packs / ad hoc queries
	SourcePack  string // pack name that produced this job, if any
	MultiQuery  bool   // true iff the source pack had >1 query (§4.4 suffix rule)
}

// HasContext reports whether enough information survives to retry this
// job (spec §4.3: "Jobs that lack saved context ... cannot be retried").
func (j Job) HasContext() bool {
	return j.Query.Text != "" && j.Workspace.GUID != ""
}

// Clone creates a new Job sharing {workspace, query, settings snapshot}
// for the explicit "retry" operator action (spec §4.3), with a fresh ID
// and Queued status, incrementing Attempt.
func (j Job) Clone(newID string) Job {
	n := j
	n.ID = newID
	n.Status = JobQueued
	n.Started = time.Time{}
	n.Completed = time.Time{}
	n.RowCount = 0
	n.Error = ""
	n.OutputPaths = nil
	n.Attempt = j.Attempt + 1
	return n
}
