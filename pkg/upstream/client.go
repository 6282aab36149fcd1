package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

const (
	// DefaultTimeout bounds a single upstream request
	DefaultTimeout = 30 * time.Second
	// DefaultRetryAttempts is the number of tries per request
	DefaultRetryAttempts = 3

	maxErrorText = 512
)

// Credentials identify and authenticate against one cluster
type Credentials struct {
	URL       string
	Username  string
	Password  string
	VerifySSL bool
}

// Config tunes every client of a pool
type Config struct {
	Timeout       time.Duration
	RetryAttempts int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	return c
}

// Request is one upstream call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil
	Body interface{}
}

// Response is the raw upstream reply
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client talks to one cluster
type Client struct {
	creds   Credentials
	base    *url.URL
	cfg     Config
	http    *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics

	login singleflight.Group

	mu            sync.RWMutex
	token         string
	authenticated bool
}

// NewClient creates a client for creds
func NewClient(creds Credentials, cfg Config, logger *observability.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(creds.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid cluster url %q", creds.URL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !creds.VerifySSL} //nolint:gosec // clusters commonly use self-signed certificates

	return &Client{
		creds: creds,
		base:  base,
		cfg:   cfg,
		http: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Jar:       jar,
			Timeout:   cfg.Timeout,
		},
		logger: logger.WithField("cluster_url", base.String()),
	}, nil
}

// SetMetrics attaches Prometheus metrics
func (c *Client) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Credentials returns the credentials the client was built with
func (c *Client) Credentials() Credentials {
	return c.creds
}

// Authenticated reports whether a session is established
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Login establishes a session. Concurrent callers share one login request.
func (c *Client) Login(ctx context.Context) error {
	_, err, _ := c.login.Do("login", func() (interface{}, error) {
		return nil, c.doLogin(ctx)
	})
	return err
}

func (c *Client) doLogin(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+"/login", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.TypeUpstream, apierr.CodeUpstreamAuthFailed, err, "failed to authenticate with Nexus Dashboard")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.Newf(apierr.TypeUpstream, apierr.CodeUpstreamAuthFailed,
			"authentication failed with status %d", resp.StatusCode).
			WithDetail("status_code", resp.StatusCode)
	}

	var data struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(body, &data)

	if data.Token == "" && len(c.http.Jar.Cookies(c.base)) == 0 {
		return apierr.New(apierr.TypeUpstream, apierr.CodeUpstreamAuthFailed,
			"authentication returned neither a token nor session cookies")
	}

	c.mu.Lock()
	c.token = data.Token
	c.authenticated = true
	c.mu.Unlock()

	c.logger.Info("authenticated with Nexus Dashboard")
	return nil
}

// Do sends req, logging in first if needed, and retries transient failures.
// Non-2xx final replies return both the response and an UpstreamError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if !c.Authenticated() {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	var (
		lastResp *Response
		lastErr  error
	)
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		resp, err := c.send(ctx, req)
		if err != nil {
			lastResp, lastErr = nil, err
			if ctx.Err() != nil {
				break
			}
			c.retrying(attempt, "network", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			c.logger.Warn("received 401, re-authenticating")
			c.recordRetry("unauthorized")
			if err := c.Login(ctx); err != nil {
				return resp, err
			}
			lastResp, lastErr = resp, nil
			continue
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastResp, lastErr = resp, nil
			c.retrying(attempt, "status", fmt.Errorf("status %d", resp.StatusCode))
			continue
		default:
			return resp, statusError(resp)
		}
	}

	if lastResp != nil {
		return lastResp, statusError(lastResp)
	}
	return nil, apierr.Upstream(0, fmt.Sprintf("Nexus Dashboard unreachable: %v", lastErr), lastErr)
}

func (c *Client) retrying(attempt int, reason string, err error) {
	if attempt >= c.cfg.RetryAttempts-1 {
		return
	}
	c.recordRetry(reason)
	c.logger.WithError(err).WithFields(map[string]interface{}{
		"attempt":      attempt + 1,
		"max_attempts": c.cfg.RetryAttempts,
	}).Warn("upstream request failed, retrying")
}

func (c *Client) recordRetry(reason string) {
	if c.metrics != nil {
		c.metrics.UpstreamRetries.WithLabelValues(reason).Inc()
	}
}

func (c *Client) send(ctx context.Context, r Request) (*Response, error) {
	u := c.base.String() + "/" + strings.TrimLeft(r.Path, "/")
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(r.Method), u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// CloseIdleConnections releases pooled connections
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func statusError(resp *Response) error {
	text := strings.TrimSpace(string(resp.Body))
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	msg := fmt.Sprintf("Nexus Dashboard returned status %d", resp.StatusCode)
	if text != "" {
		msg += ": " + text
	}
	return apierr.Upstream(resp.StatusCode, msg, nil)
}

// Decode turns a response into tool output: JSON bodies are decoded, anything
// else is wrapped as {"data": text, "status_code": n}
func Decode(resp *Response) interface{} {
	if strings.Contains(strings.ToLower(resp.ContentType), "application/json") && len(bytes.TrimSpace(resp.Body)) > 0 {
		var v interface{}
		if err := json.Unmarshal(resp.Body, &v); err == nil {
			return v
		}
	}
	return map[string]interface{}{
		"data":        string(resp.Body),
		"status_code": resp.StatusCode,
	}
}

// IsUnreachable reports whether err means no reply was received
func IsUnreachable(err error) bool {
	return apierr.HasCode(err, apierr.CodeUpstreamUnreachable) || errors.Is(err, context.DeadlineExceeded)
}
