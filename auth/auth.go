// Package auth provides session cookie sources for authenticated CTF
// platform sessions.
package auth

import "context"

// Source represents a source of session cookies for a CTF instance host.
type Source interface {
	// Cookies returns cookies for the given host, or nil if unavailable.
	Cookies(ctx context.Context, host string) (map[string]string, error)
}

// ChainSources returns cookies from the first source that provides them.
func ChainSources(ctx context.Context, host string, sources ...Source) (map[string]string, error) {
	for _, src := range sources {
		cookies, err := src.Cookies(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(cookies) > 0 {
			return cookies, nil
		}
	}
	return nil, nil //nolint:nilnil // no source had cookies, but this is not an error
}
