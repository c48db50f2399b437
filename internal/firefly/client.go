// Package firefly is a client for the Firefly III REST API (/api/v1).
//
// Requests are authenticated with a personal access token sent as an OAuth2
// bearer token. Transient failures (transport errors, 429 and 5xx) are retried
// with capped exponential backoff; everything else is returned unchanged so
// callers can decide whether to fall back to cached data.
package firefly

import (
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

	"golang.org/x/oauth2"

	"budgetview/internal/log"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "budgetview/1.0"
	defaultMaxPages  = 50
	maxResponseBytes = 16 << 20
)

// ErrMissingToken is returned by New when no access token is supplied.
var ErrMissingToken = errors.New("firefly: access token is required")

// DecodeError reports a 2xx response whose body could not be decoded.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// userAgentRoundTripper adds a User-Agent header to every request.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// Client talks to one Firefly III instance.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	base      *http.Client
	timeout   time.Duration
	userAgent string
	retry     RetryPolicy
	maxPages  int
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func(int64) int64
	logger    *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient supplies the underlying client whose transport is wrapped.
func WithHTTPClient(base *http.Client) Option {
	return func(c *Client) { c.base = base }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxPages bounds how many pages a list call follows.
func WithMaxPages(n int) Option {
	return func(c *Client) { c.maxPages = n }
}

// WithLogger sets the logger used for retries and truncation warnings.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger.WithComponent(log.ComponentRemote) }
}

// New returns a client for the instance at baseURL authenticated with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: must be an absolute http(s) URL", baseURL)
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	c := &Client{
		baseURL:   u,
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		retry:     DefaultRetryPolicy(),
		maxPages:  defaultMaxPages,
		sleep:     sleepContext,
		jitter:    defaultJitter,
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentRemote),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := http.DefaultTransport
	if c.base != nil && c.base.Transport != nil {
		transport = c.base.Transport
	}

	c.http = &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: strings.TrimSpace(token),
				TokenType:   "Bearer",
			}),
			Base: &userAgentRoundTripper{Wrapped: transport, UserAgent: c.userAgent},
		},
	}
	return c, nil
}

// BaseURL returns the server root the client was created for.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// getJSON performs GET /api/v1/<endpoint> with retries and decodes into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	return c.withRetry(ctx, endpoint, func() error {
		return c.doGet(ctx, endpoint, query, out)
	})
}

func (c *Client) doGet(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL.JoinPath("api", "v1", endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			Path:       u.Path,
			Body:       body,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// listAll follows pagination until the last page or maxPages.
func listAll[T any](ctx context.Context, c *Client, endpoint string, query url.Values) (Page[T], error) {
	all := Page[T]{Data: []T{}}

	for page := 1; ; page++ {
		q := cloneValues(query)
		q.Set("page", strconv.Itoa(page))

		var p Page[T]
		if err := c.getJSON(ctx, endpoint, q, &p); err != nil {
			return Page[T]{}, err
		}
		all.Data = append(all.Data, p.Data...)
		all.Meta = p.Meta

		if p.Meta == nil || p.Meta.Pagination == nil || page >= p.Meta.Pagination.TotalPages {
			break
		}
		if page >= c.maxPages {
			c.logger.WarnContext(ctx, "Stopped following pagination",
				log.FieldEndpoint, endpoint,
				"max_pages", c.maxPages,
				"total_pages", p.Meta.Pagination.TotalPages)
			break
		}
	}
	return all, nil
}

// firstPage fetches a single page, used when the caller asked for a limit.
func firstPage[T any](ctx context.Context, c *Client, endpoint string, query url.Values) (Page[T], error) {
	var p Page[T]
	if err := c.getJSON(ctx, endpoint, query, &p); err != nil {
		return Page[T]{}, err
	}
	if p.Data == nil {
		p.Data = []T{}
	}
	return p, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
