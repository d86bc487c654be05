// Package detect identifies which CTF platform runs at a given URL and
// resolves the platform's true API base URL.
package detect

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// ProbeTimeout bounds each detection probe. Deliberately shorter than the
// general request timeout so resolution fails fast on dead hosts.
const ProbeTimeout = 5 * time.Second

// Verdict is the outcome of a static detection check.
type Verdict int

// Static detection verdicts.
const (
	Unknown Verdict = iota // no signal either way, fall through to dynamic probe
	Match                  // confident match
	NoMatch                // confident non-match
)

// Identifier decides whether a server runs one specific platform.
// Implementations must swallow transport and parse failures: a probe that
// errors is a non-match, never a raised error.
type Identifier interface {
	// Name returns the platform name the identifier detects.
	Name() string

	// StaticDetect inspects an already-fetched response for a platform
	// fingerprint. No network calls; string checks only.
	StaticDetect(resp *transport.Response) Verdict

	// DynamicDetect probes platform-specific endpoints under baseURL for a
	// fingerprint unlikely to appear by coincidence.
	DynamicDetect(ctx context.Context, baseURL string) bool

	// IsBaseURL reports whether the platform's API lives at exactly the
	// candidate root path.
	IsBaseURL(ctx context.Context, candidate string) bool
}

// Result is a resolved (platform, base URL) pair.
type Result struct {
	Platform string `json:"platform"`
	BaseURL  string `json:"base_url"`
}

// Detector runs a set of identifiers against a candidate URL.
type Detector struct {
	session     *transport.Session
	identifiers []Identifier
	cache       Cache
	logger      *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithCache sets the platform-resolution cache consulted before detection.
// Entries are advisory: a hit is returned without re-verification.
func WithCache(cache Cache) Option {
	return func(d *Detector) { d.cache = cache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// New creates a Detector. Identifier order is significant: it breaks ties
// when several platforms report a dynamic match.
func New(session *transport.Session, identifiers []Identifier, opts ...Option) *Detector {
	d := &Detector{
		session:     session,
		identifiers: identifiers,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NormalizeURL ensures a scheme and strips the trailing slash.
func NormalizeURL(input string) string {
	s := strings.TrimSpace(input)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	return strings.TrimRight(s, "/")
}

// Detect resolves the platform running at inputURL. Per-identifier probe
// failures are swallowed; only an aggregate miss fails, with
// *ctf.UnknownPlatformError.
func (d *Detector) Detect(ctx context.Context, inputURL string) (Result, error) {
	if d.cache != nil {
		if res, ok := d.cache.Get(ctx, inputURL); ok {
			d.logger.Debug("platform resolution cache hit", "url", inputURL, "platform", res.Platform)
			return res, nil
		}
	}

	normalized := NormalizeURL(inputURL)
	d.logger.InfoContext(ctx, "detecting platform", "url", normalized)

	// One baseline request feeds every identifier's static check. A failed
	// baseline is not fatal: dynamic probes may still identify the host.
	baseline, err := d.session.Get(ctx, normalized,
		transport.Raw(), transport.Cacheable(), transport.WithRequestTimeout(ProbeTimeout))
	if err != nil {
		d.logger.Debug("baseline request failed", "url", normalized, "error", err)
		baseline = nil
	}

	matched, ambiguous := d.staticPass(baseline)
	if matched == nil {
		matched = d.dynamicPass(ctx, normalized, ambiguous)
	}
	if matched == nil {
		return Result{}, &ctf.UnknownPlatformError{URL: inputURL}
	}

	res := Result{
		Platform: matched.Name(),
		BaseURL:  d.resolveBaseURL(ctx, matched, normalized),
	}
	d.logger.InfoContext(ctx, "platform detected", "platform", res.Platform, "base_url", res.BaseURL)

	if d.cache != nil {
		d.cache.Set(ctx, inputURL, res)
	}
	return res, nil
}

// staticPass runs every identifier's static check against the baseline
// response. It returns the single confident match when there is exactly
// one, plus the identifiers still ambiguous (everything not confidently
// ruled out) for the dynamic pass.
func (d *Detector) staticPass(baseline *transport.Response) (Identifier, []Identifier) {
	if baseline == nil {
		return nil, d.identifiers
	}

	var matches, ambiguous []Identifier
	for _, id := range d.identifiers {
		switch d.safeStatic(id, baseline) {
		case Match:
			matches = append(matches, id)
			ambiguous = append(ambiguous, id)
		case Unknown:
			ambiguous = append(ambiguous, id)
		case NoMatch:
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		d.logger.Debug("multiple static matches, falling through to dynamic probes")
	}
	return nil, ambiguous
}

// dynamicPass probes the ambiguous identifiers concurrently. All probes
// are awaited before deciding so the outcome depends on declaration order,
// never on completion order.
func (d *Detector) dynamicPass(ctx context.Context, baseURL string, candidates []Identifier) Identifier {
	results := make([]bool, len(candidates))

	var g errgroup.Group
	for i, id := range candidates {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
			defer cancel()
			results[i] = d.safeDynamic(probeCtx, id, baseURL)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probes never return errors

	for i, ok := range results {
		if ok {
			return candidates[i]
		}
	}
	return nil
}

// resolveBaseURL walks the URL path upward looking for the platform's API
// root: the full path first, then each parent. Falls back to the
// normalized URL when no candidate answers.
func (d *Detector) resolveBaseURL(ctx context.Context, id Identifier, normalized string) string {
	for _, candidate := range baseCandidates(normalized) {
		probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
		ok := d.safeIsBase(probeCtx, id, candidate)
		cancel()
		if ok {
			return candidate
		}
	}
	return normalized
}

func baseCandidates(normalized string) []string {
	u, err := url.Parse(normalized)
	if err != nil {
		return []string{normalized}
	}
	root := u.Scheme + "://" + u.Host

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return []string{root}
	}

	segments := strings.Split(path, "/")
	candidates := make([]string, 0, len(segments)+1)
	for i := len(segments); i >= 0; i-- {
		candidate := root
		if i > 0 {
			candidate += "/" + strings.Join(segments[:i], "/")
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// safeStatic guards against a misbehaving identifier taking down detection.
func (d *Detector) safeStatic(id Identifier, resp *transport.Response) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("static detect panic", "platform", id.Name(), "panic", r)
			v = NoMatch
		}
	}()
	return id.StaticDetect(resp)
}

func (d *Detector) safeDynamic(ctx context.Context, id Identifier, baseURL string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("dynamic detect panic", "platform", id.Name(), "panic", r)
			ok = false
		}
	}()
	return id.DynamicDetect(ctx, baseURL)
}

func (d *Detector) safeIsBase(ctx context.Context, id Identifier, candidate string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("base URL probe panic", "platform", id.Name(), "panic", r)
			ok = false
		}
	}()
	return id.IsBaseURL(ctx, candidate)
}
