// Package msgraph reads invoice emails and stores files through Microsoft
// Graph: Outlook messages for the mailbox, OneDrive for the blob store.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/resilience"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a Graph-backed mailbox and blob store.
type Client interface {
	collab.Mailbox
	collab.BlobStore
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUser targets another user's mailbox and drive instead of /me.
func WithUser(user string) Option {
	return func(c *httpClient) {
		if user != "" {
			c.owner = "users/" + user
		}
	}
}

// WithRoot sets the drive folder that blob paths are relative to.
func WithRoot(root string) Option {
	return func(c *httpClient) {
		c.root = strings.Trim(root, "/")
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker installs a circuit breaker around every call.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

// WithRateLimit overrides the default request rate (10 req/s). A
// non-positive rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	cred    collab.Credential
	baseURL string
	owner   string
	root    string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	limiter *rate.Limiter
}

// NewClient creates a Graph client authenticated by cred.
func NewClient(cred collab.Credential, opts ...Option) Client {
	c := &httpClient{
		cred:    cred,
		baseURL: defaultBaseURL,
		owner:   "me",
		root:    "Enel",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(10, 10),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// request describes one Graph call. body is replayed on retries.
type request struct {
	op          string
	method      string
	url         string
	body        []byte
	contentType string
	headers     map[string]string
	// raw skips authorization, for pre-authenticated upload URLs.
	raw bool
}

// do runs req with retries and returns the response body of a 2xx reply.
// 404 maps to collab.ErrNotFound.
func (c *httpClient) do(ctx context.Context, req request) ([]byte, error) {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("msgraph", req.op)
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if c.breaker == nil {
			return c.once(ctx, req)
		}
		var out []byte
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			out, err = c.once(ctx, req)
			return err
		})
		return out, err
	})
}

func (c *httpClient) once(ctx context.Context, r request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "msgraph: rate limit")
		}
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, eris.Wrapf(err, "msgraph: create %s request", r.op)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if !r.raw {
		token, err := c.cred.BearerToken(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "msgraph: credential")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "msgraph: %s", r.op)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "msgraph: read %s response", r.op)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, eris.Wrapf(collab.ErrNotFound, "msgraph: %s", r.op)
	default:
		return nil, resilience.ForStatus(
			eris.Errorf("msgraph: %s unexpected status %d: %s", r.op, resp.StatusCode, graphMessage(data)),
			resp.StatusCode,
		)
	}
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// graphMessage extracts the error message of a Graph error body.
func graphMessage(data []byte) string {
	var ge graphError
	if err := json.Unmarshal(data, &ge); err == nil && ge.Error.Code != "" {
		return ge.Error.Code + ": " + ge.Error.Message
	}
	return string(data)
}

func (c *httpClient) getJSON(ctx context.Context, op, url string, out any) error {
	data, err := c.do(ctx, request{op: op, method: http.MethodGet, url: url})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "msgraph: unmarshal %s response", op)
	}
	return nil
}
