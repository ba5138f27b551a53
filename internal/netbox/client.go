// Package netbox implements the minimal HTTP transport against the NetBox
// API: authenticated GETs and decoding of paginated list responses. No
// retry and no caching happens at this layer.
package netbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mhagberg/towerbox/internal/log"
)

const requestTimeout = 30 * time.Second

// ErrMalformedPage marks a list response missing the expected
// results/next fields. It aborts the pagination run; a truncated
// inventory must never be emitted silently.
var ErrMalformedPage = errors.New("malformed list response")

// Page is one page of a paginated NetBox listing
type Page struct {
	Count   int
	Next    *string // nil when this is the last page
	Results []json.RawMessage
}

// Client issues authenticated requests against one NetBox instance
type Client struct {
	baseURL    *url.URL
	token      string
	userAgent  string
	httpClient *http.Client
}

// NewClient builds a client for the given base URL. The token, when
// non-empty, is sent as "Authorization: Token <token>" on every request.
func NewClient(hostURL, token string) (*Client, error) {
	u, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("parsing host URL %q: %w", hostURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("host URL %q must use http or https", hostURL)
	}
	return &Client{
		baseURL:    u,
		token:      token,
		userAgent:  "towerbox/1.0",
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Get performs a GET for a path (or a full URL, as pagination cursors may
// be absolute) and returns the response body.
func (c *Client) Get(ctx context.Context, pathOrURL string, params map[string]string) ([]byte, error) {
	target := c.resolveURL(pathOrURL, params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	log.Debug("GET", "url", target)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed for %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned %s: %s", target, resp.Status, snippet(body))
	}
	return body, nil
}

// GetPage fetches and decodes one page of a listing endpoint
func (c *Client) GetPage(ctx context.Context, pathOrURL string, params map[string]string) (*Page, error) {
	body, err := c.Get(ctx, pathOrURL, params)
	if err != nil {
		return nil, err
	}
	return decodePage(body)
}

// decodePage validates the pagination contract: results and next must both
// be present, next may be null.
func decodePage(body []byte) (*Page, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	rawResults, ok := fields["results"]
	if !ok {
		return nil, fmt.Errorf("%w: missing results field", ErrMalformedPage)
	}
	rawNext, ok := fields["next"]
	if !ok {
		return nil, fmt.Errorf("%w: missing next field", ErrMalformedPage)
	}

	page := &Page{}
	if err := json.Unmarshal(rawResults, &page.Results); err != nil {
		return nil, fmt.Errorf("%w: results is not an array: %v", ErrMalformedPage, err)
	}
	if err := json.Unmarshal(rawNext, &page.Next); err != nil {
		return nil, fmt.Errorf("%w: next is not a string or null: %v", ErrMalformedPage, err)
	}
	if rawCount, ok := fields["count"]; ok {
		// count is informational only
		_ = json.Unmarshal(rawCount, &page.Count)
	}
	return page, nil
}

// resolveURL turns a relative path or an absolute pagination URL into the
// full request URL, appending any query parameters.
func (c *Client) resolveURL(pathOrURL string, params map[string]string) string {
	var target string
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		target = pathOrURL
	} else if ref, err := url.Parse(pathOrURL); err == nil {
		// Relative cursors keep their query string (e.g. ?offset=50)
		target = c.baseURL.ResolveReference(ref).String()
	} else {
		target = c.baseURL.String() + pathOrURL
	}
	if len(params) == 0 {
		return target
	}

	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// snippet trims a response body for error messages
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
