// Package itmedia provides a client for the ITMedia direct-post lead API.
package itmedia

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/lead-router/internal/resilience"
)

const (
	// DefaultBaseURL is the production direct-post endpoint.
	DefaultBaseURL = "https://api.itmedia.xyz/post/directpost"
	// DefaultTestURL accepts posts without selling them.
	DefaultTestURL = "https://api.itmedia.xyz/post/testpost"
)

// Result values returned in Response.Result.
const (
	ResultSold     = "sold"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Client posts a lead to ITMedia.
type Client interface {
	// Post submits form-encoded lead fields and returns the parsed response.
	Post(ctx context.Context, form url.Values) (*Response, error)
}

// Response is the ITMedia post response. Price fields accept either JSON
// numbers or numeric strings.
type Response struct {
	Result      string          `json:"result"`
	Price       decimal.Decimal `json:"price"`
	LeadID      string          `json:"lead_id"`
	RedirectURL string          `json:"redirect_url"`
	Message     string          `json:"message"`
	MinPrice    decimal.Decimal `json:"min_price"`

	// Raw is the undecoded response body.
	Raw []byte `json:"-"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the endpoint posts are sent to.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an ITMedia client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Post(ctx context.Context, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "itmedia: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "itmedia: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "itmedia: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Wrap(resilience.NewStatusError(resp.StatusCode, body), "itmedia: post")
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(&resilience.PayloadError{Err: err, Raw: body}, "itmedia: unmarshal response")
	}
	result.Result = strings.ToLower(strings.TrimSpace(result.Result))
	result.Raw = body

	return &result, nil
}
