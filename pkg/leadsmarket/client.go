// Package leadsmarket provides a client for the LeadsMarket ping-post API.
package leadsmarket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/lead-router/internal/resilience"
)

// DefaultBaseURL is the LeadsMarket post endpoint.
const DefaultBaseURL = "https://api.leadsmarket.com/post/data.aspx"

// Result codes returned in Response.Result.
const (
	ResultSold     = 1
	ResultRejected = 2
)

// Client posts a lead to LeadsMarket.
type Client interface {
	// Post sends lead fields as query parameters and returns the parsed response.
	Post(ctx context.Context, params url.Values) (*Response, error)
}

// Response is the LeadsMarket post response.
type Response struct {
	Result      int             `json:"Result"`
	LeadID      string          `json:"LeadID"`
	Price       decimal.Decimal `json:"Price"`
	RedirectURL string          `json:"RedirectURL"`
	Messages    []string        `json:"Messages"`

	// Raw is the undecoded response body.
	Raw []byte `json:"-"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
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

// NewClient creates a LeadsMarket client.
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

func (c *httpClient) Post(ctx context.Context, params url.Values) (*Response, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "leadsmarket: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "leadsmarket: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "leadsmarket: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrap(resilience.NewStatusError(resp.StatusCode, body), "leadsmarket: post")
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(&resilience.PayloadError{Err: err, Raw: body}, "leadsmarket: unmarshal response")
	}
	result.Raw = body

	return &result, nil
}
