package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/models"
)

// HTTPClient implements Store against a PostgREST endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a PostgREST client. The access token falls back to
// the api key when empty, which is how anonymous PostgREST access works.
func NewHTTPClient(baseURL, apiKey, token string, timeout time.Duration) *HTTPClient {
	if token == "" {
		token = apiKey
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ Store = (*HTTPClient)(nil)

func (c *HTTPClient) tableURL(table string, params url.Values) string {
	u := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, url.PathEscape(table))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// doJSON sends reqBody and decodes the representation PostgREST returns.
func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody any, prefer string) ([]models.Record, error) {
	var body io.Reader
	headers := map[string]string{"Content-Type": "application/json"}
	if prefer != "" {
		headers["Prefer"] = prefer
	}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	rows := []models.Record{}
	if resp.StatusCode == http.StatusNoContent {
		return rows, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rows == nil {
		rows = []models.Record{}
	}
	return rows, nil
}

// Select reads rows matching q.
func (c *HTTPClient) Select(ctx context.Context, table string, q models.Query) ([]models.Record, error) {
	rows, err := c.doJSON(ctx, http.MethodGet, c.tableURL(table, queryParams(q)), nil, "")
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

// Insert creates records and returns them as stored.
func (c *HTTPClient) Insert(ctx context.Context, table string, records []models.Record) ([]models.Record, error) {
	rows, err := c.doJSON(ctx, http.MethodPost, c.tableURL(table, nil), records, "return=representation")
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return rows, nil
}

// Update patches the row with id.
func (c *HTTPClient) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error) {
	rows, err := c.doJSON(ctx, http.MethodPatch, c.tableURL(table, idParams(id)), patch, "return=representation")
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return nil, noRows(table, id)
	}
	return rows[0], nil
}

// Delete removes the row with id.
func (c *HTTPClient) Delete(ctx context.Context, table, id string) error {
	rows, err := c.doJSON(ctx, http.MethodDelete, c.tableURL(table, idParams(id)), nil, "return=representation")
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return noRows(table, id)
	}
	return nil
}

// Upsert inserts record or merges it into the row sharing its primary key.
func (c *HTTPClient) Upsert(ctx context.Context, table string, record models.Record) (models.Record, error) {
	rows, err := c.doJSON(ctx, http.MethodPost, c.tableURL(table, nil), []models.Record{record},
		"resolution=merge-duplicates,return=representation")
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, noRows(table, record.ID())
	}
	return rows[0], nil
}

func queryParams(q models.Query) url.Values {
	params := url.Values{}
	params.Set("select", "*")
	for col, v := range q.Filters {
		if v == nil {
			params.Set(col, "is.null")
			continue
		}
		params.Set(col, "eq."+fmt.Sprint(v))
	}
	if q.Order != nil && q.Order.Column != "" {
		dir := "asc"
		if q.Order.Descending {
			dir = "desc"
		}
		params.Set("order", q.Order.Column+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
		if off := q.Offset(); off > 0 {
			params.Set("offset", fmt.Sprint(off))
		}
	}
	return params
}

func idParams(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

func noRows(table, id string) *RemoteError {
	return &RemoteError{
		Code:    dberr.CodeNoRows,
		Message: fmt.Sprintf("no rows returned for %s/%s", table, id),
		Status:  http.StatusNotFound,
	}
}

// RemoteError represents a structured error from PostgREST.
type RemoteError struct {
	Code    string
	Message string
	Details string
	Hint    string
	Status  int
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

// ErrorCode exposes the PostgREST or SQLSTATE code to the classifier.
func (e *RemoteError) ErrorCode() string { return e.Code }

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || (errResp.Code == "" && errResp.Message == "") {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			msg = fmt.Sprintf("permission denied (HTTP %d)", resp.StatusCode)
		}
		return &RemoteError{Message: msg, Status: resp.StatusCode}
	}

	return &RemoteError{
		Code:    errResp.Code,
		Message: errResp.Message,
		Details: errResp.Details,
		Hint:    errResp.Hint,
		Status:  resp.StatusCode,
	}
}
