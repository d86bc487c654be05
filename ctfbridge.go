// Package ctfbridge provides a unified client for CTF competition
// platforms. Point Connect at an instance URL; it figures out which
// platform is running there, resolves the API base, authenticates, and
// returns one client with a common challenge, submission, and scoreboard
// surface.
package ctfbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/ctfbridge/auth"
	"github.com/codeGROOVE-dev/ctfbridge/cache"
	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/registry"
	"github.com/codeGROOVE-dev/ctfbridge/transport"

	// Platform adapters register themselves.
	_ "github.com/codeGROOVE-dev/ctfbridge/ctfd"
	_ "github.com/codeGROOVE-dev/ctfbridge/pwncollege"
	_ "github.com/codeGROOVE-dev/ctfbridge/rctf"
)

// probeCacheTTL bounds how long detection probe responses are reused.
const probeCacheTTL = 15 * time.Minute

// Client is the unified platform client returned by Connect.
type Client = registry.Client

// Re-exports so common callers need only the root package.
type (
	Challenge        = ctf.Challenge
	Attachment       = ctf.Attachment
	SubmissionResult = ctf.SubmissionResult
	ScoreboardEntry  = ctf.ScoreboardEntry
	FilterOptions    = ctf.FilterOptions
	Capabilities     = ctf.Capabilities
	Credentials      = ctf.Credentials
)

// Common sentinel errors, re-exported.
var (
	ErrAuthRequired      = ctf.ErrAuthRequired
	ErrInvalidAuthMethod = ctf.ErrInvalidAuthMethod
	ErrNotSupported      = ctf.ErrNotSupported
	ErrRateLimited       = ctf.ErrRateLimited
)

// Option configures Connect and Detect.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	platform        string
	timeout         time.Duration
	rateLimit       float64
	rateBurst       int
	httpCache       transport.Cacher
	resolutionCache detect.Cache
	noCache         bool
	creds           ctf.Credentials
	browserCookies  bool
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPlatform pins the platform name and skips detection entirely.
func WithPlatform(name string) Option {
	return func(o *options) { o.platform = name }
}

// WithTimeout sets the general request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRateLimit bounds outgoing requests to rps per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) { o.rateLimit = rps; o.rateBurst = burst }
}

// WithCache sets the HTTP response cache used for detection probes.
func WithCache(c transport.Cacher) Option {
	return func(o *options) { o.httpCache = c }
}

// WithResolutionCache sets the platform-resolution cache.
func WithResolutionCache(c detect.Cache) Option {
	return func(o *options) { o.resolutionCache = c }
}

// WithoutCache disables the default disk caches. Detection then probes the
// network on every call.
func WithoutCache() Option {
	return func(o *options) { o.noCache = true }
}

// WithToken authenticates with a platform API or team token.
func WithToken(token string) Option {
	return func(o *options) { o.creds.Token = token }
}

// WithCredentials authenticates with a username and password.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.creds.Username = username
		o.creds.Password = password
	}
}

// WithCookies authenticates with existing session cookies.
func WithCookies(cookies map[string]string) Option {
	return func(o *options) { o.creds.Cookies = cookies }
}

// WithBrowserCookies reuses an existing browser login: when no other
// credentials are given, local browser cookie stores are searched for
// session cookies matching the instance host.
func WithBrowserCookies() Option {
	return func(o *options) { o.browserCookies = true }
}

func buildOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Platforms returns the supported platform names.
func Platforms() []string {
	return registry.Platforms()
}

// Detect resolves which platform runs at instanceURL and where its API
// base lives, without building a client or authenticating.
func Detect(ctx context.Context, instanceURL string, opts ...Option) (detect.Result, error) {
	o := buildOptions(opts)

	if o.platform != "" {
		if _, err := registry.Get(o.platform); err != nil {
			return detect.Result{}, err
		}
		return detect.Result{Platform: o.platform, BaseURL: detect.NormalizeURL(instanceURL)}, nil
	}

	session, err := o.newSession(detect.NormalizeURL(instanceURL))
	if err != nil {
		return detect.Result{}, err
	}
	return o.newDetector(session).Detect(ctx, instanceURL)
}

// Connect detects the platform at instanceURL, builds its client, and
// logs in when credentials were supplied (explicitly or via CTFBRIDGE_*
// environment variables).
func Connect(ctx context.Context, instanceURL string, opts ...Option) (*Client, error) {
	o := buildOptions(opts)

	res, err := Detect(ctx, instanceURL, opts...)
	if err != nil {
		return nil, err
	}

	def, err := registry.Get(res.Platform)
	if err != nil {
		return nil, err
	}

	session, err := o.newSession(res.BaseURL)
	if err != nil {
		return nil, err
	}

	client := def.New(session, o.logger)

	creds, err := o.resolveCredentials(ctx, res.BaseURL)
	if err != nil {
		return nil, err
	}
	if creds.Method() != "" {
		if err := client.Login(ctx, creds); err != nil {
			return nil, fmt.Errorf("login to %s: %w", res.Platform, err)
		}
	}
	return client, nil
}

func (o *options) newSession(baseURL string) (*transport.Session, error) {
	sessionOpts := []transport.Option{transport.WithLogger(o.logger)}
	if o.timeout > 0 {
		sessionOpts = append(sessionOpts, transport.WithTimeout(o.timeout))
	}
	if o.rateLimit > 0 {
		burst := o.rateBurst
		if burst <= 0 {
			burst = 1
		}
		sessionOpts = append(sessionOpts, transport.WithRateLimit(o.rateLimit, burst))
	}

	httpCache := o.httpCache
	if httpCache == nil && !o.noCache {
		if c, err := cache.New(probeCacheTTL); err == nil {
			httpCache = c
		} else {
			o.logger.Debug("disk cache unavailable, probing uncached", "error", err)
		}
	}
	if httpCache != nil {
		sessionOpts = append(sessionOpts, transport.WithCache(httpCache))
	}

	return transport.New(baseURL, sessionOpts...)
}

func (o *options) newDetector(session *transport.Session) *detect.Detector {
	detectOpts := []detect.Option{detect.WithLogger(o.logger)}

	resolution := o.resolutionCache
	if resolution == nil && !o.noCache {
		resolution = detect.NewFileCache()
	}
	if resolution != nil {
		detectOpts = append(detectOpts, detect.WithCache(resolution))
	}

	return detect.New(session, registry.Identifiers(session), detectOpts...)
}

// resolveCredentials picks auth in precedence order: explicit options,
// environment variables, then browser cookies when enabled.
func (o *options) resolveCredentials(ctx context.Context, baseURL string) (ctf.Credentials, error) {
	if o.creds.Method() != "" {
		return o.creds, nil
	}

	if creds := auth.CredentialsFromEnv(); creds.Method() != "" {
		return creds, nil
	}

	host := hostOf(baseURL)
	sources := []auth.Source{auth.EnvSource{}}
	if o.browserCookies {
		sources = append(sources, auth.NewBrowserSource(o.logger))
	}
	cookies, err := auth.ChainSources(ctx, host, sources...)
	if err != nil {
		return ctf.Credentials{}, err
	}
	if len(cookies) > 0 {
		return ctf.Credentials{Cookies: cookies}, nil
	}
	return ctf.Credentials{}, nil
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	return u.Hostname()
}
