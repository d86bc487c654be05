// Package transport provides the HTTP session shared by all platform
// adapters: base-URL-relative requests, typed status errors, bounded
// retries, per-session rate limiting, and auth state (headers, cookies).
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"
)

// UserAgent is sent on every request unless overridden.
const UserAgent = "ctfbridge/1.0"

const maxBodySize = 8 << 20 // 8 MiB

// Cacher caches response bodies for requests explicitly marked cacheable.
// Compatible with the cache package's disk-backed implementation.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// Response is a processed HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Text returns the response body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Session issues requests against one platform base URL. Auth state
// (headers, cookie jar) is mutated only between requests, never while one
// is in flight.
type Session struct {
	baseURL string
	client  *http.Client
	jar     *cookiejar.Jar
	cache   Cacher
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	headers http.Header
}

// Option configures a Session.
type Option func(*config)

type config struct {
	timeout time.Duration
	cache   Cacher
	logger  *slog.Logger
	limit   rate.Limit
	burst   int
}

// WithTimeout sets the general request timeout. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithCache sets the response cache consulted for cacheable requests.
func WithCache(cache Cacher) Option {
	return func(c *config) { c.cache = cache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithRateLimit bounds outgoing requests to rps per second with the given
// burst. Unlimited by default.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) { c.limit = rate.Limit(rps); c.burst = burst }
}

// New creates a Session bound to baseURL (scheme required, no trailing
// slash needed).
func New(baseURL string, opts ...Option) (*Session, error) {
	cfg := &config{timeout: 10 * time.Second, logger: slog.Default(), limit: rate.Inf, burst: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: cfg.timeout, Jar: jar},
		jar:     jar,
		cache:   cfg.cache,
		limiter: rate.NewLimiter(cfg.limit, cfg.burst),
		logger:  cfg.logger,
		headers: http.Header{"User-Agent": []string{UserAgent}},
	}, nil
}

// BaseURL returns the base URL the session is bound to.
func (s *Session) BaseURL() string { return s.baseURL }

// SetHeader sets a header applied to every subsequent request. Used for
// auth state transitions; must not be called with a request in flight.
func (s *Session) SetHeader(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Set(key, value)
}

// SetCookie stores a cookie for the given domain in the session jar.
func (s *Session) SetCookie(name, value, domain string) error {
	u, err := url.Parse("https://" + domain)
	if err != nil {
		return fmt.Errorf("invalid cookie domain: %w", err)
	}
	s.jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Domain: domain, Path: "/"}})
	return nil
}

// Clear resets all auth state: extra headers and cookies.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.headers = http.Header{"User-Agent": []string{UserAgent}}
	s.mu.Unlock()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	s.jar = jar
	s.client.Jar = jar
	return nil
}

// RequestOption configures a single request.
type RequestOption func(*reqConfig)

type reqConfig struct {
	raw       bool
	cacheable bool
	query     url.Values
	form      url.Values
	headers   http.Header
	timeout   time.Duration
}

// Raw disables status-code error mapping; the caller inspects the response.
func Raw() RequestOption {
	return func(c *reqConfig) { c.raw = true }
}

// Cacheable marks the request eligible for the session response cache.
// Only used for detection probes; challenge data is always fetched fresh.
func Cacheable() RequestOption {
	return func(c *reqConfig) { c.cacheable = true }
}

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(c *reqConfig) { c.query = q }
}

// WithForm sends the body as application/x-www-form-urlencoded (POST only).
func WithForm(form url.Values) RequestOption {
	return func(c *reqConfig) { c.form = form }
}

// WithHeader adds a header to this request only.
func WithHeader(key, value string) RequestOption {
	return func(c *reqConfig) {
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Set(key, value)
	}
}

// WithRequestTimeout overrides the session timeout for this request.
// Detection probes use a short bound so resolution fails fast.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(c *reqConfig) { c.timeout = d }
}

// Get issues a GET against a base-URL-relative path (or an absolute URL).
func (s *Session) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	cfg := &reqConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return s.do(ctx, http.MethodGet, path, nil, cfg)
}

// Stream issues a GET and writes the response body to w, bypassing the
// in-memory body cap. The session's auth headers and cookie jar apply as
// on any other request, but the session timeout does not: large transfers
// are bounded only by ctx (or WithRequestTimeout). Returns the byte count
// written.
func (s *Session) Stream(ctx context.Context, path string, w io.Writer, opts ...RequestOption) (int64, error) {
	cfg := &reqConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	reqURL := s.resolveURL(path, cfg.query)

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	for key, values := range s.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	s.mu.Unlock()
	for key, values := range cfg.headers {
		req.Header[key] = append([]string(nil), values...)
	}

	s.logger.Debug("stream", "url", reqURL)

	// Same jar as the session, but no client-level timeout: that would cap
	// the whole body transfer.
	client := &http.Client{Jar: s.client.Jar}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize)) //nolint:errcheck // body only feeds the error message
		return 0, statusError(&Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, reqURL)
	}
	return io.Copy(w, resp.Body)
}

// Post issues a POST with a JSON body (or a form body via WithForm).
func (s *Session) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	cfg := &reqConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return s.do(ctx, http.MethodPost, path, body, cfg)
}

func (s *Session) do(ctx context.Context, method, path string, body any, cfg *reqConfig) (*Response, error) {
	reqURL := s.resolveURL(path, cfg.query)

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	if method == http.MethodGet && cfg.cacheable && s.cache != nil {
		data, err := s.cache.GetSet(ctx, reqURL, func(ctx context.Context) ([]byte, error) {
			resp, err := s.roundTrip(ctx, method, reqURL, body, cfg)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				return nil, statusError(resp, reqURL)
			}
			return resp.Body, nil
		}, s.cache.TTL())
		if err != nil {
			return nil, err
		}
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: data}, nil
	}

	resp, err := s.roundTrip(ctx, method, reqURL, body, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.raw || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return resp, nil
	}
	return nil, statusError(resp, reqURL)
}

func (s *Session) roundTrip(ctx context.Context, method, reqURL string, body any, cfg *reqConfig) (*Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	build := func() (*http.Request, error) {
		var reader io.Reader = http.NoBody
		contentType := ""
		switch {
		case cfg.form != nil:
			reader = strings.NewReader(cfg.form.Encode())
			contentType = "application/x-www-form-urlencoded"
		case body != nil:
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			reader = bytes.NewReader(encoded)
			contentType = "application/json"
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		for key, values := range s.headers {
			req.Header[key] = append([]string(nil), values...)
		}
		s.mu.Unlock()
		for key, values := range cfg.headers {
			req.Header[key] = append([]string(nil), values...)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req, nil
	}

	exec := func() (*Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		s.logger.Debug("request", "method", method, "url", reqURL)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck // intentional

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		s.logger.Debug("response", "url", reqURL, "status", resp.StatusCode)
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}

	// Only GETs are retried: submissions and logins must not be replayed.
	if method != http.MethodGet {
		return exec()
	}

	return retry.DoWithData(
		func() (*Response, error) {
			resp, err := exec()
			if err != nil {
				return nil, err
			}
			if isRetryableStatus(resp.StatusCode) {
				return nil, statusError(resp, reqURL)
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying request", "attempt", n+1, "url", reqURL, "error", err)
		}),
	)
}

func (s *Session) resolveURL(path string, query url.Values) string {
	reqURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		reqURL = s.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + query.Encode()
	}
	return reqURL
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isRetryableError returns true for transient failures worth another attempt.
func isRetryableError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Network errors, timeouts, connection resets.
	return true
}
