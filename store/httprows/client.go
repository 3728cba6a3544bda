/*
Package httprows implements rowstore.Adapter against a remote row service.

WIRE SURFACE:
  GET    {base}?sheet=S                      all rows
  GET    {base}/search?f=v[&f2=v2]&sheet=S   matching rows
  POST   {base}?sheet=S                      insert one row (JSON object)
  PATCH  {base}/match/{field}/{value}?sheet=S update matching rows -> {"updated": n}
  DELETE {base}/match/{field}/{value}?sheet=S delete matching rows -> {"deleted": n}

QUIRKS HANDLED HERE:
  - Search answers 404 when nothing matches. Translated to an empty slice.
  - Cells may come back as JSON numbers or booleans. Normalised to the
    store's string encoding ("500", "TRUE").
  - Update/Delete match on exactly one field. Use the derived-key identity
    scheme with this adapter.

SEE ALSO:
  - api/rows.go: The server side of the same surface
*/
package httprows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// Client is a rowstore.Adapter bound to one sheet of a remote row service.
type Client struct {
	BaseURL    string
	Sheet      string
	Token      string // sent as a Bearer token when set
	HTTPClient *http.Client
}

// New creates a client. base is the service root, e.g. "https://host/rows".
func New(base, sheet string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(base, "/"),
		Sheet:      sheet,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchAll returns every row of the sheet.
func (c *Client) FetchAll(ctx context.Context) ([]rowstore.Row, error) {
	rows, status, err := c.getRows(ctx, "fetch_all", c.BaseURL, url.Values{})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []rowstore.Row{}, nil
	}
	return rows, nil
}

// Search returns rows matching p. A 404 from the service means "no match".
func (c *Client) Search(ctx context.Context, p rowstore.Predicate) ([]rowstore.Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return c.FetchAll(ctx)
	}
	q := url.Values{}
	for _, k := range p.Fields() {
		q.Set(k, p[k])
	}
	rows, status, err := c.getRows(ctx, "search", c.BaseURL+"/search", q)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []rowstore.Row{}, nil
	}
	// Services that ignore unknown query fields may over-match; re-check.
	return rowstore.Filter(rows, p), nil
}

// Insert posts one row.
func (c *Client) Insert(ctx context.Context, row rowstore.Row) error {
	if err := rowstore.RequireIdentity("insert", row); err != nil {
		return err
	}
	if err := rowstore.CheckFields("insert", row); err != nil {
		return err
	}
	_, err := c.send(ctx, "insert", http.MethodPost, c.BaseURL, row.Normalized())
	return err
}

// Update patches every row matching the single-field predicate.
func (c *Client) Update(ctx context.Context, p rowstore.Predicate, fields rowstore.Row) (int, error) {
	field, value, err := single("update", p)
	if err != nil {
		return 0, err
	}
	if err := rowstore.CheckFields("update", fields); err != nil {
		return 0, err
	}
	body, err := c.send(ctx, "update", http.MethodPatch, c.matchURL(field, value), fields)
	if err != nil {
		return 0, err
	}
	return count(body, "updated"), nil
}

// Delete removes every row matching the single-field predicate.
func (c *Client) Delete(ctx context.Context, p rowstore.Predicate) (int, error) {
	field, value, err := single("delete", p)
	if err != nil {
		return 0, err
	}
	body, err := c.send(ctx, "delete", http.MethodDelete, c.matchURL(field, value), nil)
	if err != nil {
		return 0, err
	}
	return count(body, "deleted"), nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) matchURL(field, value string) string {
	return c.BaseURL + "/match/" + url.PathEscape(field) + "/" + url.PathEscape(value)
}

func (c *Client) withSheet(raw string, q url.Values) string {
	if c.Sheet != "" {
		q.Set("sheet", c.Sheet)
	}
	if len(q) == 0 {
		return raw
	}
	return raw + "?" + q.Encode()
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) getRows(ctx context.Context, op, raw string, q url.Values) ([]rowstore.Row, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.withSheet(raw, q), nil)
	if err != nil {
		return nil, 0, rowstore.Wrap(op, err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, rowstore.Wrap(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, statusError(op, resp)
	}

	var raws []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, resp.StatusCode, rowstore.Wrap(op, fmt.Errorf("failed to decode rows: %w", err))
	}
	rows := make([]rowstore.Row, 0, len(raws))
	for _, r := range raws {
		rows = append(rows, toRow(r))
	}
	return rows, resp.StatusCode, nil
}

func (c *Client) send(ctx context.Context, op, method, raw string, payload rowstore.Row) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, rowstore.Wrap(op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.withSheet(raw, url.Values{}), body)
	if err != nil {
		return nil, rowstore.Wrap(op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, rowstore.Wrap(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, statusError(op, resp)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rowstore.Wrap(op, err)
	}
	return out, nil
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &rowstore.StoreError{
		Op:     op,
		Err:    fmt.Errorf("row service returned %s", resp.Status),
		Detail: strings.TrimSpace(string(msg)),
	}
}

func single(op string, p rowstore.Predicate) (string, string, error) {
	if err := p.Validate(); err != nil {
		return "", "", err
	}
	if len(p) != 1 {
		return "", "", &rowstore.StoreError{
			Op:     op,
			Err:    rowstore.ErrUnsupportedMatch,
			Detail: fmt.Sprintf("need exactly one match field, got %d", len(p)),
		}
	}
	for k, v := range p {
		return k, v, nil
	}
	return "", "", errors.New("unreachable")
}

// count reads {"<key>": n}. Services that answer without a count report 0.
func count(body []byte, key string) int {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// toRow converts a decoded JSON object to the store's string encoding.
func toRow(m map[string]any) rowstore.Row {
	row := make(rowstore.Row, len(rowstore.Columns))
	for k, v := range m {
		if !rowstore.IsColumn(k) {
			continue
		}
		switch t := v.(type) {
		case nil:
			row[k] = ""
		case string:
			row[k] = t
		case bool:
			if t {
				row[k] = "TRUE"
			} else {
				row[k] = "FALSE"
			}
		case float64:
			row[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			row[k] = fmt.Sprint(t)
		}
	}
	return row.Normalized()
}
