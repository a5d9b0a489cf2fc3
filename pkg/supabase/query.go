package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ErrUnfilteredUpdate guards against PATCHing a whole table by accident.
var ErrUnfilteredUpdate = errors.New("supabase: refusing to update without filters")

// QueryBuilder builds one PostgREST request. Builders are single use and not
// safe for concurrent use; the Client that produced them is.
type QueryBuilder struct {
	client  *Client
	table   string
	method  string
	columns string
	filters url.Values
	limit   int
	values  any
}

// From starts a query against table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client:  c,
		table:   table,
		method:  http.MethodGet,
		filters: url.Values{},
	}
}

// Select sets the returned columns. Embedded relations use PostgREST syntax,
// e.g. "site:sites(id,name,slug)".
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// Eq adds a column = value filter.
func (q *QueryBuilder) Eq(column, value string) *QueryBuilder {
	q.filters.Add(column, "eq."+value)
	return q
}

// Is adds a column IS value filter; value is "null", "true" or "false".
func (q *QueryBuilder) Is(column, value string) *QueryBuilder {
	q.filters.Add(column, "is."+value)
	return q
}

// Limit caps the number of rows returned by a read.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Update turns the query into a PATCH of the matching rows with values.
// The updated rows are returned, projected through Select when set.
func (q *QueryBuilder) Update(values any) *QueryBuilder {
	q.method = http.MethodPatch
	q.values = values
	return q
}

func (q *QueryBuilder) build() (request, error) {
	query := url.Values{}
	for k, vs := range q.filters {
		query[k] = append([]string(nil), vs...)
	}
	if q.columns != "" {
		query.Set("select", q.columns)
	}

	req := request{
		method: q.method,
		path:   "/rest/v1/" + url.PathEscape(q.table),
		query:  query,
	}

	switch q.method {
	case http.MethodPatch:
		if len(q.filters) == 0 {
			return request{}, ErrUnfilteredUpdate
		}
		req.body = q.values
		req.headers = map[string]string{"Prefer": "return=representation"}
	default:
		if q.limit > 0 {
			query.Set("limit", strconv.Itoa(q.limit))
		}
	}
	return req, nil
}

// Execute runs the query and decodes the JSON array reply into dst (a pointer to a slice).
func (q *QueryBuilder) Execute(ctx context.Context, dst any) error {
	req, err := q.build()
	if err != nil {
		return err
	}
	return q.client.do(ctx, req, dst)
}

// MaybeSingle runs the query expecting at most one row. It reports whether a
// row was found and decodes it into dst. Reads are limited to one row.
func (q *QueryBuilder) MaybeSingle(ctx context.Context, dst any) (bool, error) {
	if q.method == http.MethodGet {
		q.limit = 1
	}

	var rows []json.RawMessage
	if err := q.Execute(ctx, &rows); err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(rows[0], dst); err != nil {
		return false, fmt.Errorf("supabase: failed to decode %s row: %w", q.table, err)
	}
	return true, nil
}
