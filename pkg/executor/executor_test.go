package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/queryclient"
	"github.com/dolly-parseton/kql-panopticon/pkg/queryerr"
)

// fakeRaw scripts a sequence of per-call outcomes for queryclient.Client,
// mirroring pkg/queryclient's own fakeRaw but living here so executor-level
// tests can drive queryclient.Client end to end without the real SDK.
type fakeRaw struct {
	mu    sync.Mutex
	errs  []error
	page  queryclient.Page
	calls int
}

func (f *fakeRaw) QueryPage(ctx context.Context, workspaceGUID, query string, start, end time.Time, continuation string, timeout time.Duration) (queryclient.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return queryclient.Page{}, f.errs[i]
	}
	return f.page, nil
}

func testCols() []queryclient.Column {
	return []queryclient.Column{{Name: "TimeGenerated", Type: "datetime"}}
}

func jobFor(raw *fakeRaw, retryCount int) model.Job {
	return model.Job{
		ID:   "job-1",
		Name: "test job",
		Workspace: model.Workspace{
			GUID: "ws-guid",
			Name: "ws",
		},
		Query: model.QueryContext{Text: "T | take 1"},
		SettingsSnapshot: model.Settings{
			QueryTimeoutSecs: 5,
			RetryCount:       retryCount,
			ParseDynamics:    false,
		},
	}
}

// collectEvents drains Events() for every job ID seen until each has
// reached a terminal status, returning the ordered status sequence.
func collectEvents(t *testing.T, e *Executor, want int) []model.JobStatus {
	t.Helper()
	var seq []model.JobStatus
	timeout := time.After(5 * time.Second)
	for len(seq) < want {
		select {
		case ev := <-e.Events():
			seq = append(seq, ev.Job.Status)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d: %v", len(seq), want, seq)
		}
	}
	return seq
}

func TestDispatchSingleJobCompletes(t *testing.T) {
	raw := &fakeRaw{page: queryclient.Page{Columns: testCols(), Rows: [][]any{{"t1"}}}}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()

	job := jobFor(raw, 0)
	e.Dispatch(context.Background(), []model.Job{job}, nil)

	seq := collectEvents(t, e, 3)
	assert.Equal(t, []model.JobStatus{model.JobQueued, model.JobRunning, model.JobCompleted}, seq)

	got, ok := e.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 1, got.RowCount)
}

func TestDispatchTransientFailureRetriesThenCompletes(t *testing.T) {
	raw := &fakeRaw{
		errs: []error{
			queryerr.New(queryerr.Transient, "T", errors.New("boom")),
			queryerr.New(queryerr.Transient, "T", errors.New("boom again")),
		},
		page: queryclient.Page{Columns: testCols(), Rows: [][]any{{"t1"}}},
	}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()

	var delays []time.Duration
	e.sleep = func(d time.Duration) { delays = append(delays, d) }

	job := jobFor(raw, 2)
	e.Dispatch(context.Background(), []model.Job{job}, nil)

	seq := collectEvents(t, e, 5)
	assert.Equal(t, []model.JobStatus{
		model.JobQueued,
		model.JobRunning,
		model.JobRunning,
		model.JobRunning,
		model.JobCompleted,
	}, seq)

	require.Len(t, delays, 2)
	assert.Equal(t, time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
}

func TestDispatchTransientFailureExhaustsRetryCountZero(t *testing.T) {
	raw := &fakeRaw{
		errs: []error{queryerr.New(queryerr.Transient, "T", errors.New("boom"))},
	}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()
	e.sleep = func(time.Duration) {}

	job := jobFor(raw, 0)
	e.Dispatch(context.Background(), []model.Job{job}, nil)

	seq := collectEvents(t, e, 3)
	assert.Equal(t, []model.JobStatus{model.JobQueued, model.JobRunning, model.JobFailed}, seq)

	got, ok := e.Job(job.ID)
	require.True(t, ok)
	assert.Contains(t, got.Error, "boom")
}

func TestDispatchPermanentFailureNeverRetried(t *testing.T) {
	raw := &fakeRaw{
		errs: []error{queryerr.New(queryerr.Permanent, "T", errors.New("bad query"))},
	}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()
	var sleptCount int32
	e.sleep = func(time.Duration) { atomic.AddInt32(&sleptCount, 1) }

	job := jobFor(raw, 5)
	e.Dispatch(context.Background(), []model.Job{job}, nil)

	seq := collectEvents(t, e, 3)
	assert.Equal(t, []model.JobStatus{model.JobQueued, model.JobRunning, model.JobFailed}, seq)
	assert.Zero(t, atomic.LoadInt32(&sleptCount), "sleep should not be called for a permanent failure")
}

func TestDispatchSchemaDriftNeverRetried(t *testing.T) {
	raw := &fakeRaw{
		errs: []error{queryerr.New(queryerr.SchemaDrift, "T", errors.New("drift"))},
	}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()
	var sleptCount int32
	e.sleep = func(time.Duration) { atomic.AddInt32(&sleptCount, 1) }

	job := jobFor(raw, 5)
	e.Dispatch(context.Background(), []model.Job{job}, nil)

	seq := collectEvents(t, e, 3)
	assert.Equal(t, []model.JobStatus{model.JobQueued, model.JobRunning, model.JobFailed}, seq)
	assert.Zero(t, atomic.LoadInt32(&sleptCount), "sleep should not be called for schema drift")
}

// fakeExporter records what it was asked to write and lets tests force a
// write failure.
type fakeExporter struct {
	paths []string
	err   error
}

func (f *fakeExporter) Write(ctx context.Context, job model.Job, result queryclient.Result) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.paths, nil
}

func TestDispatchExportFailureFailsJob(t *testing.T) {
	raw := &fakeRaw{page: queryclient.Page{Columns: testCols(), Rows: [][]any{{"t1"}}}}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()

	exp := &fakeExporter{err: errors.New("disk full")}
	job := jobFor(raw, 0)
	e.Dispatch(context.Background(), []model.Job{job}, exp)

	seq := collectEvents(t, e, 3)
	assert.Equal(t, []model.JobStatus{model.JobQueued, model.JobRunning, model.JobFailed}, seq)

	got, ok := e.Job(job.ID)
	require.True(t, ok)
	assert.Contains(t, got.Error, "export failed")
}

func TestDispatchExportSuccessRecordsOutputPaths(t *testing.T) {
	raw := &fakeRaw{page: queryclient.Page{Columns: testCols(), Rows: [][]any{{"t1"}}}}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()

	exp := &fakeExporter{paths: []string{"out/a.csv"}}
	job := jobFor(raw, 0)
	e.Dispatch(context.Background(), []model.Job{job}, exp)

	collectEvents(t, e, 3)

	got, ok := e.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"out/a.csv"}, got.OutputPaths)
}

func TestRetryWithoutContextReturnsErrNoContext(t *testing.T) {
	raw := &fakeRaw{page: queryclient.Page{Columns: testCols(), Rows: [][]any{{"t1"}}}}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()

	job := jobFor(raw, 0)
	job.Workspace.GUID = "" // no context: cannot be retried
	e.Dispatch(context.Background(), []model.Job{job}, nil)
	collectEvents(t, e, 3)

	_, err := e.Retry(context.Background(), job.ID, nil)
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestRetryDispatchesNewJobWithNewID(t *testing.T) {
	raw := &fakeRaw{page: queryclient.Page{Columns: testCols(), Rows: [][]any{{"t1"}}}}
	client := queryclient.NewWithRaw(raw, nil, nil)
	e := New(client, nil)
	defer e.Close()

	job := jobFor(raw, 0)
	e.Dispatch(context.Background(), []model.Job{job}, nil)
	collectEvents(t, e, 3)

	clone, err := e.Retry(context.Background(), job.ID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, clone.ID)
	assert.Equal(t, job.Workspace, clone.Workspace)
	assert.Equal(t, job.Query, clone.Query)
	assert.Equal(t, 2, clone.Attempt)

	collectEvents(t, e, 3) // clone's Queued, Running, Completed
}

func TestRetryUnknownJobReturnsError(t *testing.T) {
	client := queryclient.NewWithRaw(&fakeRaw{}, nil, nil)
	e := New(client, nil)
	defer e.Close()

	_, err := e.Retry(context.Background(), "does-not-exist", nil)
	require.Error(t, err)
}
