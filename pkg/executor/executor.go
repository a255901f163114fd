// Package executor implements the Job Executor (C3): fully concurrent
// dispatch of (query, workspace) jobs, exponential-backoff retry of
// transient failures, and an ordered-per-job, unbounded event stream to
// a single consumer (spec §4.3, §5).
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dolly-parseton/kql-panopticon/pkg/logging"
	"github.com/dolly-parseton/kql-panopticon/pkg/model"
	"github.com/dolly-parseton/kql-panopticon/pkg/queryclient"
	"github.com/dolly-parseton/kql-panopticon/pkg/queryerr"
)

// ErrNoContext is returned by Retry when the job lacks enough saved
// context to replay (spec §4.3: jobs imported from old session formats).
var ErrNoContext = errors.New("job has no saved context; cannot retry")

// Exporter is C4's seam into C3: "C3 hands the job to C4 at Completed;
// C3 itself does not touch the filesystem" (spec §4.3).
type Exporter interface {
	Write(ctx context.Context, job model.Job, result queryclient.Result) ([]string, error)
}

// Event is one lifecycle notification. Per spec §4.3 these are ordered
// per-job but not globally ordered across jobs.
type Event struct {
	Job model.Job
}

// Executor owns the set of in-flight jobs and publishes their lifecycle
// transitions. The job vector the TUI renders (C8's Model) is a separate
// copy, updated from these events (spec §5).
type Executor struct {
	client   *queryclient.Client
	log      *logging.Logger
	sleep    func(time.Duration)
	now      func() time.Time
	newJobID func() string

	mu   sync.Mutex
	jobs map[string]*model.Job

	qmu    sync.Mutex
	qcond  *sync.Cond
	queue  []Event
	out    chan Event
	closed bool
}

// New constructs an Executor bound to a Query Client.
func New(client *queryclient.Client, log *logging.Logger) *Executor {
	e := &Executor{
		client:   client,
		log:      log,
		sleep:    time.Sleep,
		now:      time.Now,
		newJobID: uuid.NewString,
		jobs:     map[string]*model.Job{},
		out:      make(chan Event),
	}
	e.qcond = sync.NewCond(&e.qmu)
	go e.pump()
	return e
}

// Events returns the single consumer channel (owned by C8 in production;
// unbounded because the internal queue grows rather than drops, per spec
// §4.3/§5 "never dropped").
func (e *Executor) Events() <-chan Event { return e.out }

// Close stops the event pump once every event already queued has been
// delivered, then closes the Events channel. It does not wait for jobs
// still in flight; events they emit afterwards are not delivered. Safe to
// call once, typically on process shutdown.
func (e *Executor) Close() {
	e.qmu.Lock()
	e.closed = true
	e.qcond.Signal()
	e.qmu.Unlock()
}

func (e *Executor) pump() {
	for {
		e.qmu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.qcond.Wait()
		}
		if len(e.queue) == 0 && e.closed {
			e.qmu.Unlock()
			close(e.out)
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()
		e.out <- ev
	}
}

func (e *Executor) emit(ev Event) {
	e.qmu.Lock()
	e.queue = append(e.queue, ev)
	e.qmu.Unlock()
	e.qcond.Signal()
}

// Dispatch admits every job to Running as fast as goroutines schedule
// (spec §4.3: "no configured concurrency cap... downstream is the
// bottleneck"). It returns immediately; completion is observed via
// Events().
func (e *Executor) Dispatch(ctx context.Context, jobs []model.Job, exporter Exporter) {
	for i := range jobs {
		j := jobs[i]
		j.Status = model.JobQueued
		j.Queued = e.now()
		if j.Attempt == 0 {
			j.Attempt = 1
		}
		e.mu.Lock()
		jobCopy := j
		e.jobs[j.ID] = &jobCopy
		e.mu.Unlock()
		e.emit(Event{Job: jobCopy})
		go e.run(ctx, j.ID, exporter)
	}
}

// Retry creates a new Job from the original's {workspace, query, settings
// snapshot} and dispatches it, per spec §4.3. The original job record is
// untouched (jobs are not reused on retry).
func (e *Executor) Retry(ctx context.Context, jobID string, exporter Exporter) (model.Job, error) {
	e.mu.Lock()
	orig, ok := e.jobs[jobID]
	e.mu.Unlock()
	if !ok {
		return model.Job{}, fmt.Errorf("unknown job %q", jobID)
	}
	if !orig.HasContext() {
		return model.Job{}, ErrNoContext
	}
	clone := orig.Clone(e.newJobID())
	clone.Queued = e.now()
	e.mu.Lock()
	jc := clone
	e.jobs[clone.ID] = &jc
	e.mu.Unlock()
	e.emit(Event{Job: jc})
	go e.run(ctx, clone.ID, exporter)
	return jc, nil
}

func (e *Executor) setStatus(id string, mutate func(*model.Job)) model.Job {
	e.mu.Lock()
	j := e.jobs[id]
	mutate(j)
	snapshot := *j
	e.mu.Unlock()
	e.emit(Event{Job: snapshot})
	return snapshot
}

// run drives one job through Running, retrying in place on Transient
// failures per the spec §4.3 backoff schedule (2^(k-1) seconds between
// attempt k and k+1), and settles it Completed or Failed.
func (e *Executor) run(ctx context.Context, jobID string, exporter Exporter) {
	attempt := 0
	for {
		j := e.setStatus(jobID, func(j *model.Job) {
			if j.Started.IsZero() {
				j.Started = e.now()
			}
			j.Status = model.JobRunning
		})

		timeout := time.Duration(j.SettingsSnapshot.QueryTimeoutSecs) * time.Second
		res, err := e.client.Execute(ctx, j.Workspace.GUID, j.Query.Text, timeout, j.SettingsSnapshot.ParseDynamics)
		if err == nil {
			e.complete(jobID, res, exporter, ctx)
			return
		}

		var qe *queryerr.Error
		kind := queryerr.Permanent
		if errors.As(err, &qe) {
			kind = qe.Kind
		}

		if kind.Retryable() && attempt < j.SettingsSnapshot.RetryCount {
			attempt++
			if e.log != nil {
				e.log.Warn("job transient failure, retrying", "job", jobID, "attempt", attempt, "error", err)
			}
			delay := time.Duration(1<<(attempt-1)) * time.Second
			e.sleep(delay)
			continue
		}

		e.setStatus(jobID, func(j *model.Job) {
			j.Status = model.JobFailed
			j.Completed = e.now()
			j.Error = err.Error()
		})
		return
	}
}

func (e *Executor) complete(jobID string, res queryclient.Result, exporter Exporter, ctx context.Context) {
	var paths []string
	var writeErr error
	if exporter != nil {
		e.mu.Lock()
		snapshot := *e.jobs[jobID]
		e.mu.Unlock()
		paths, writeErr = exporter.Write(ctx, snapshot, res)
	}
	if writeErr != nil {
		e.setStatus(jobID, func(j *model.Job) {
			j.Status = model.JobFailed
			j.Completed = e.now()
			j.Error = fmt.Sprintf("export failed: %v", writeErr)
		})
		return
	}
	e.setStatus(jobID, func(j *model.Job) {
		j.Status = model.JobCompleted
		j.Completed = e.now()
		j.RowCount = res.RowCount
		j.OutputPaths = paths
	})
}

// Job returns the executor's current internal view of a job, for
// operations (like Retry) that need the frozen dispatch context. This is
// deliberately separate from the TUI's own job vector (spec §5).
func (e *Executor) Job(id string) (model.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}
