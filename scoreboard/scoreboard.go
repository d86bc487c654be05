// Package scoreboard retrieves and normalizes platform scoreboards.
package scoreboard

import (
	"context"
	"log/slog"

	"github.com/codeGROOVE-dev/ctfbridge/ctf"
)

// Fetcher is implemented by adapters that can retrieve a scoreboard.
// limit <= 0 requests every entry the platform will return.
type Fetcher interface {
	FetchScoreboard(ctx context.Context, limit int) ([]ctf.ScoreboardEntry, error)
}

// Service normalizes adapter scoreboard output.
type Service struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a Service. fetcher may be nil for platforms without a
// scoreboard; Top then returns ctf.ErrNotSupported.
func New(fetcher Fetcher, opts ...Option) *Service {
	s := &Service{fetcher: fetcher, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Top returns up to limit scoreboard entries (all entries when limit <= 0)
// with 1-based ranks, assigned positionally when the platform did not
// provide them.
func (s *Service) Top(ctx context.Context, limit int) ([]ctf.ScoreboardEntry, error) {
	if s.fetcher == nil {
		return nil, ctf.ErrNotSupported
	}

	entries, err := s.fetcher.FetchScoreboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched scoreboard", "entries", len(entries))

	out := make([]ctf.ScoreboardEntry, len(entries))
	for i, e := range entries {
		if e.Rank == 0 {
			e.Rank = i + 1
		}
		out[i] = e
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
