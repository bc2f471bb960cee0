// Package meteorite is a Go client for the Meteorite Explorer REST API.
package meteorite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom
// http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Meteorite is one landing record. Mass is in grams; nil fields are unknown.
type Meteorite struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	RecClass string   `json:"recclass"`
	Fall     string   `json:"fall"`
	Mass     *float64 `json:"mass"`
	Year     *int     `json:"year"`
	RecLat   *float64 `json:"reclat"`
	RecLong  *float64 `json:"reclong"`
}

// Page is one page of results.
type Page struct {
	Content          []Meteorite `json:"content"`
	TotalPages       int         `json:"totalPages"`
	TotalElements    int64       `json:"totalElements"`
	Size             int         `json:"size"`
	Number           int         `json:"number"`
	NumberOfElements int         `json:"numberOfElements"`
	First            bool        `json:"first"`
	Last             bool        `json:"last"`
	Empty            bool        `json:"empty"`
}

// PageParams selects a zero-based page. Zero values take server defaults.
// Sort entries have the form "property" or "property,desc".
type PageParams struct {
	Page int
	Size int
	Sort []string
}

// SearchParams narrows a search. Empty strings and nil pointers are not
// sent.
type SearchParams struct {
	Name     string
	RecClass string
	Fall     string
	Year     *int
	MinMass  *float64
	MaxMass  *float64
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	// Retryable is set by the server for transient failures.
	Retryable bool `json:"retryable"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("meteorite api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("meteorite api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one explorer instance.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client for rawURL. A nil httpClient gets
// DefaultHTTPTimeout.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// List pages through all records, or those whose name contains name.
func (c *Client) List(ctx context.Context, name string, page PageParams) (Page, error) {
	q := url.Values{}
	setString(q, "name", name)
	page.encode(q)
	var out Page
	err := c.get(ctx, "/api/meteorites", q, &out)
	return out, err
}

// Search pages through the records matching params.
func (c *Client) Search(ctx context.Context, params SearchParams, page PageParams) (Page, error) {
	q := url.Values{}
	params.encode(q)
	page.encode(q)
	var out Page
	err := c.get(ctx, "/api/meteorites/search", q, &out)
	return out, err
}

// Get fetches one record.
func (c *Client) Get(ctx context.Context, id int64) (Meteorite, error) {
	var out Meteorite
	err := c.get(ctx, "/api/meteorites/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// Trends returns the number of landings per year.
func (c *Client) Trends(ctx context.Context) (map[int]int64, error) {
	var out map[int]int64
	err := c.get(ctx, "/api/meteorites/stats/trends", nil, &out)
	return out, err
}

// MassDistribution returns the number of records per mass category.
func (c *Client) MassDistribution(ctx context.Context) (map[string]int64, error) {
	var out map[string]int64
	err := c.get(ctx, "/api/meteorites/stats/mass-distribution", nil, &out)
	return out, err
}

// Classification returns the number of records per recclass.
func (c *Client) Classification(ctx context.Context) (map[string]int64, error) {
	var out map[string]int64
	err := c.get(ctx, "/api/meteorites/stats/classification", nil, &out)
	return out, err
}

func (p PageParams) encode(q url.Values) {
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Size > 0 {
		q.Set("size", strconv.Itoa(p.Size))
	}
	for _, s := range p.Sort {
		q.Add("sort", s)
	}
}

func (p SearchParams) encode(q url.Values) {
	setString(q, "name", p.Name)
	setString(q, "recclass", p.RecClass)
	setString(q, "fall", p.Fall)
	if p.Year != nil {
		q.Set("year", strconv.Itoa(*p.Year))
	}
	if p.MinMass != nil {
		q.Set("minMass", strconv.FormatFloat(*p.MinMass, 'f', -1, 64))
	}
	if p.MaxMass != nil {
		q.Set("maxMass", strconv.FormatFloat(*p.MaxMass, 'f', -1, 64))
	}
}

func setString(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
