// Package queryclient implements the Query Client (C2): execute one KQL
// request against one workspace, with transparent pagination, timeout
// enforcement and a single forced-auth-refresh-and-retry (spec §4.2).
package queryclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	azquery "github.com/Azure/azure-sdk-for-go/sdk/monitor/azquery"

	"github.com/dolly-parseton/kql-panopticon/pkg/auth"
	"github.com/dolly-parseton/kql-panopticon/pkg/logging"
	"github.com/dolly-parseton/kql-panopticon/pkg/queryerr"
)

// Column describes one result column. Type follows the Kusto scalar type
// names ("string", "long", "datetime", "dynamic", ...).
type Column struct {
	Name string
	Type string
}

// Result is the flattened, single-table outcome of Execute (spec §4.2:
// "Only the first result table is retained").
type Result struct {
	Columns  []Column
	Rows     [][]any
	RowCount int
}

// Page is one round of a (possibly multi-round) query response.
type Page struct {
	Columns      []Column
	Rows         [][]any
	Continuation string
}

// RawLogsClient is the seam the teacher's LogsClientInterface pattern
// generalizes to support pagination: a real Azure client implementation
// wraps azquery.LogsClient; tests (here and in the executor package)
// supply a fake that can synthesize multiple pages and injected
// failures.
type RawLogsClient interface {
	QueryPage(ctx context.Context, workspaceGUID, query string, start, end time.Time, continuation string, timeout time.Duration) (Page, error)
}

// Client executes KQL queries against one or more workspaces.
type Client struct {
	raw  RawLogsClient
	gate *auth.Gate
	log  *logging.Logger
}

// New constructs a Client backed by the real azquery SDK.
func New(cred azcore.TokenCredential, gate *auth.Gate, log *logging.Logger) (*Client, error) {
	lcli, err := azquery.NewLogsClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("logs client: %w", err)
	}
	return &Client{raw: &azureLogsClient{lcli: lcli}, gate: gate, log: log}, nil
}

// NewWithRaw constructs a Client around a test double.
func NewWithRaw(raw RawLogsClient, gate *auth.Gate, log *logging.Logger) *Client {
	return &Client{raw: raw, gate: gate, log: log}
}

// Execute runs query against workspaceGUID, paginating transparently and
// enforcing timeout as a wall-clock budget over all pagination rounds
// (spec §4.2).
func (c *Client) Execute(ctx context.Context, workspaceGUID, query string, timeout time.Duration, parseDynamics bool) (Result, error) {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour) // window is advisory; most KQL queries scope their own range

	result, err := c.executeWithAuthRetry(deadline, workspaceGUID, query, start, end, timeout)
	if err != nil {
		return Result{}, err
	}
	if parseDynamics {
		decodeDynamics(&result)
	}
	return result, nil
}

// executeWithAuthRetry performs the paginated fetch, forcing exactly one
// credential refresh and retry if the first attempt fails with
// AuthExpired. This retry does not count against C3's retry budget
// (spec §4.2).
func (c *Client) executeWithAuthRetry(ctx context.Context, workspaceGUID, query string, start, end time.Time, timeout time.Duration) (Result, error) {
	result, err := c.paginate(ctx, workspaceGUID, query, start, end, timeout)
	if err == nil {
		return result, nil
	}
	var qe *queryerr.Error
	if errors.As(err, &qe) && qe.Kind == queryerr.AuthExpired && c.gate != nil {
		if _, refreshErr := c.gate.ForceRefresh(ctx); refreshErr == nil {
			return c.paginate(ctx, workspaceGUID, query, start, end, timeout)
		}
	}
	return Result{}, err
}

func (c *Client) paginate(ctx context.Context, workspaceGUID, query string, start, end time.Time, timeout time.Duration) (Result, error) {
	var (
		result       Result
		continuation string
		schema       []Column
	)
	for {
		if ctx.Err() != nil {
			return Result{}, queryerr.New(queryerr.Timeout, query, ctx.Err())
		}
		pg, err := c.raw.QueryPage(ctx, workspaceGUID, query, start, end, continuation, timeout)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, queryerr.New(queryerr.Timeout, query, err)
			}
			return Result{}, classify(query, err)
		}

		if schema == nil {
			schema = pg.Columns
			result.Columns = pg.Columns
		} else if !sameSchema(schema, pg.Columns) {
			return Result{}, queryerr.New(queryerr.SchemaDrift, query, fmt.Errorf("page schema mismatch"))
		}

		result.Rows = append(result.Rows, pg.Rows...)
		result.RowCount += len(pg.Rows)

		if pg.Continuation == "" {
			break
		}
		continuation = pg.Continuation
	}
	return result, nil
}

func sameSchema(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}

func decodeDynamics(r *Result) {
	dynIdx := map[int]bool{}
	for i, c := range r.Columns {
		if c.Type == "dynamic" {
			dynIdx[i] = true
		}
	}
	if len(dynIdx) == 0 {
		return
	}
	for _, row := range r.Rows {
		for i := range row {
			if !dynIdx[i] {
				continue
			}
			s, ok := row[i].(string)
			if !ok || s == "" {
				continue
			}
			var v any
			if err := json.Unmarshal([]byte(s), &v); err == nil {
				row[i] = v
			}
		}
	}
}

// azureLogsClient adapts azquery.LogsClient to RawLogsClient. The real
// Log Analytics query API returns a full single response rather than a
// continuation-token stream, so Continuation is always empty here; the
// pagination loop above still runs (once), keeping the same code path
// exercised by tests that do simulate multi-page responses.
type azureLogsClient struct {
	lcli *azquery.LogsClient
}

func (a *azureLogsClient) QueryPage(ctx context.Context, workspaceGUID, query string, start, end time.Time, _ string, timeout time.Duration) (Page, error) {
	waitSecs := int32(timeout.Seconds())
	if waitSecs <= 0 {
		waitSecs = 30
	}
	body := azquery.Body{
		Query:    &query,
		Timespan: to.Ptr(azquery.NewTimeInterval(start, end)),
	}
	opts := &azquery.LogsClientQueryWorkspaceOptions{
		Options: &azquery.LogsQueryOptions{Wait: to.Ptr(waitSecs)},
	}
	resp, err := a.lcli.QueryWorkspace(ctx, workspaceGUID, body, opts)
	if err != nil {
		return Page{}, err
	}
	if resp.Error != nil {
		return Page{}, resp.Error
	}
	if len(resp.Tables) == 0 {
		return Page{}, nil
	}
	tab := resp.Tables[0]
	cols := make([]Column, len(tab.Columns))
	for i, col := range tab.Columns {
		if col.Name != nil {
			cols[i].Name = *col.Name
		}
		if col.Type != nil {
			cols[i].Type = *col.Type
		}
	}
	rows := make([][]any, len(tab.Rows))
	for i, row := range tab.Rows {
		r := make([]any, len(row))
		copy(r, row)
		rows[i] = r
	}
	return Page{Columns: cols, Rows: rows}, nil
}

// classify maps an underlying SDK/network error to a queryerr.Kind per
// spec §4.2/§7.
func classify(query string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 401 || respErr.StatusCode == 403:
			return queryerr.New(queryerr.AuthExpired, query, err)
		case respErr.StatusCode >= 500:
			return queryerr.New(queryerr.Transient, query, err)
		case respErr.StatusCode >= 400:
			return queryerr.New(queryerr.Permanent, query, err)
		}
	}
	// Network-level errors without a structured status code are treated
	// as transient, matching the teacher's "warn and continue" handling
	// of chunk failures in gatherer.go.
	return queryerr.New(queryerr.Transient, query, err)
}
