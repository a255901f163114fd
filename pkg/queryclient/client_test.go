package queryclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolly-parseton/kql-panopticon/pkg/queryerr"
)

// fakeRaw lets tests script a sequence of pages or errors per call,
// mirroring the teacher's LogsClientInterface fakes in
// pkg/mustgather/ai_gatherer_test.go.
type fakeRaw struct {
	pages   []Page
	errs    []error
	calls   int
	lastCtx context.Context
}

func (f *fakeRaw) QueryPage(ctx context.Context, workspaceGUID, query string, start, end time.Time, continuation string, timeout time.Duration) (Page, error) {
	f.lastCtx = ctx
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return Page{}, f.errs[i]
	}
	if i < len(f.pages) {
		return f.pages[i], nil
	}
	return Page{}, nil
}

func cols() []Column {
	return []Column{{Name: "TimeGenerated", Type: "datetime"}, {Name: "Message", Type: "string"}}
}

func TestExecuteSinglePage(t *testing.T) {
	raw := &fakeRaw{pages: []Page{
		{Columns: cols(), Rows: [][]any{{"t1", "hello"}}},
	}}
	c := NewWithRaw(raw, nil, nil)
	res, err := c.Execute(context.Background(), "guid", "T | count", 5*time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, cols(), res.Columns)
}

func TestExecutePaginationConcatenatesRows(t *testing.T) {
	raw := &fakeRaw{pages: []Page{
		{Columns: cols(), Rows: [][]any{{"t1", "a"}}, Continuation: "tok1"},
		{Columns: cols(), Rows: [][]any{{"t2", "b"}}, Continuation: "tok2"},
		{Columns: cols(), Rows: [][]any{{"t3", "c"}}},
	}}
	c := NewWithRaw(raw, nil, nil)
	res, err := c.Execute(context.Background(), "guid", "T", 5*time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, "a", res.Rows[0][1])
	assert.Equal(t, "c", res.Rows[2][1])
}

func TestExecuteSchemaDrift(t *testing.T) {
	raw := &fakeRaw{pages: []Page{
		{Columns: cols(), Rows: [][]any{{"t1", "a"}}, Continuation: "tok1"},
		{Columns: []Column{{Name: "Other", Type: "string"}}, Rows: [][]any{{"x"}}},
	}}
	c := NewWithRaw(raw, nil, nil)
	_, err := c.Execute(context.Background(), "guid", "T", 5*time.Second, false)
	var qe *queryerr.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, queryerr.SchemaDrift, qe.Kind)
}

func TestExecuteParsesDynamicsColumn(t *testing.T) {
	raw := &fakeRaw{pages: []Page{
		{
			Columns: []Column{{Name: "Props", Type: "dynamic"}},
			Rows:    [][]any{{`{"a":1}`}},
		},
	}}
	c := NewWithRaw(raw, nil, nil)
	res, err := c.Execute(context.Background(), "guid", "T", time.Second, true)
	require.NoError(t, err)
	m, ok := res.Rows[0][0].(map[string]any)
	require.True(t, ok, "expected decoded map, got %T", res.Rows[0][0])
	assert.Equal(t, float64(1), m["a"])
}

func TestExecuteLeavesDynamicsAsStringWhenDisabled(t *testing.T) {
	raw := &fakeRaw{pages: []Page{
		{
			Columns: []Column{{Name: "Props", Type: "dynamic"}},
			Rows:    [][]any{{`{"a":1}`}},
		},
	}}
	c := NewWithRaw(raw, nil, nil)
	res, err := c.Execute(context.Background(), "guid", "T", time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, res.Rows[0][0])
}

func TestExecuteTimeoutDuringPagination(t *testing.T) {
	raw := &fakeRaw{pages: []Page{
		{Columns: cols(), Rows: [][]any{{"t1", "a"}}, Continuation: "tok1"},
	}}
	c := NewWithRaw(raw, nil, nil)
	_, err := c.Execute(context.Background(), "guid", "T", 1*time.Nanosecond, false)
	var qe *queryerr.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, queryerr.Timeout, qe.Kind)
}
