// Package challenge implements the aggregation pipeline shared by all
// platform adapters: fetch, detail-hydrate, enrich, filter.
package challenge

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/enrich"
)

// DefaultConcurrency bounds the fan-out of per-challenge detail fetches.
const DefaultConcurrency = 8

// Adapter is the raw-fetch contract a platform adapter implements for the
// pipeline.
type Adapter interface {
	// BaseHasDetails reports whether the bulk list endpoint already returns
	// full challenge detail. When false, FetchChallenge must be implemented
	// and the pipeline hydrates each challenge individually.
	BaseHasDetails() bool

	// FetchChallenges returns the platform's challenge list, full or
	// summary-only per BaseHasDetails.
	FetchChallenges(ctx context.Context) ([]ctf.Challenge, error)

	// FetchChallenge returns full detail for one challenge.
	FetchChallenge(ctx context.Context, id string) (ctf.Challenge, error)
}

// Submitter is implemented by adapters that support flag submission.
// Submission is platform-specific enough that the pipeline never
// generalizes it.
type Submitter interface {
	Submit(ctx context.Context, challengeID, flag string) (ctf.SubmissionResult, error)
}

// Service runs the aggregation pipeline over one adapter.
type Service struct {
	adapter     Adapter
	logger      *slog.Logger
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithConcurrency bounds parallel detail hydration.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Service over adapter.
func New(adapter Adapter, opts ...Option) *Service {
	s := &Service{
		adapter:     adapter,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListOptions configures an All call. The zero value returns every
// challenge, fully detailed and enriched.
type ListOptions struct {
	Filter ctf.FilterOptions

	// SummaryOnly skips detail hydration on split-detail platforms. Only
	// summary-safe filter predicates apply; value-range and tag predicates
	// are ignored because the fields they inspect are absent.
	SummaryOnly bool

	// NoEnrich disables local enrichment.
	NoEnrich bool
}

// All fetches, hydrates, enriches, and filters the platform's challenges.
//
// On split-detail platforms the summary-safe filter predicates run before
// hydration to shrink the per-challenge fetch fan-out; the full filter runs
// again afterward for predicates that need detail fields. Hydration is
// fail-fast: one failed detail fetch fails the whole call rather than
// silently dropping the item.
func (s *Service) All(ctx context.Context, opts ListOptions) ([]ctf.Challenge, error) {
	base, err := s.adapter.FetchChallenges(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched challenge list", "count", len(base))

	if s.adapter.BaseHasDetails() {
		if !opts.NoEnrich {
			base = enrich.Challenges(base)
		}
		return opts.Filter.Apply(base), nil
	}

	pre := opts.Filter.ApplySummary(base)

	if opts.SummaryOnly {
		if !opts.NoEnrich {
			pre = enrich.Challenges(pre)
		}
		return pre, nil
	}

	detailed, err := s.hydrate(ctx, pre)
	if err != nil {
		return nil, err
	}

	if !opts.NoEnrich {
		detailed = enrich.Challenges(detailed)
	}
	return opts.Filter.Apply(detailed), nil
}

// ByID returns one challenge, enriched. On platforms whose list call
// already carries detail it scans a single full-list fetch; otherwise it
// issues exactly one detail fetch. Returns *ctf.NotFoundError when the ID
// is unmatched.
func (s *Service) ByID(ctx context.Context, id string) (ctf.Challenge, error) {
	if s.adapter.BaseHasDetails() {
		all, err := s.adapter.FetchChallenges(ctx)
		if err != nil {
			return ctf.Challenge{}, err
		}
		for _, c := range all {
			if c.ID == id {
				return enrich.Challenge(c), nil
			}
		}
		return ctf.Challenge{}, &ctf.NotFoundError{ID: id}
	}

	c, err := s.adapter.FetchChallenge(ctx, id)
	if err != nil {
		return ctf.Challenge{}, err
	}
	return enrich.Challenge(c), nil
}

// Submit delegates to the adapter when it supports flag submission.
func (s *Service) Submit(ctx context.Context, challengeID, flag string) (ctf.SubmissionResult, error) {
	submitter, ok := s.adapter.(Submitter)
	if !ok {
		return ctf.SubmissionResult{}, ctf.ErrNotSupported
	}
	return submitter.Submit(ctx, challengeID, flag)
}

// hydrate fetches full detail for every challenge concurrently, bounded by
// the service concurrency. Results keep input order regardless of
// completion order.
func (s *Service) hydrate(ctx context.Context, summaries []ctf.Challenge) ([]ctf.Challenge, error) {
	detailed := make([]ctf.Challenge, len(summaries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, summary := range summaries {
		g.Go(func() error {
			c, err := s.adapter.FetchChallenge(ctx, summary.ID)
			if err != nil {
				return err
			}
			detailed[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detailed, nil
}
