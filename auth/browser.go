package auth

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Import all browser cookie stores
	"github.com/browserutils/kooky/browser/firefox"
)

// sessionCookieNames are the cookie names CTF platforms use for login
// sessions. When any are present in a browser store, only those are
// forwarded; otherwise every cookie for the host is.
var sessionCookieNames = map[string]bool{
	"session":    true, // CTFd
	"session_id": true,
	"token":      true,
}

// BrowserSource reads cookies for a CTF instance host from browser cookie
// stores, so an existing browser login can be reused.
type BrowserSource struct {
	logger *slog.Logger
}

// NewBrowserSource creates a new browser cookie source.
func NewBrowserSource(logger *slog.Logger) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{logger: logger}
}

// Cookies returns cookies for the given host from browser stores.
func (s *BrowserSource) Cookies(ctx context.Context, host string) (map[string]string, error) {
	// Try Firefox profiles first (including Developer Edition)
	cookies := s.tryFirefoxProfiles(ctx, host)
	if len(cookies) > 0 {
		return cookies, nil
	}

	// Fall back to kooky's automatic browser detection
	kookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(host))
	if err != nil {
		s.logger.Debug("failed to read browser cookies", "host", host, "error", err)
		return nil, nil //nolint:nilnil // failed browser read is not a fatal error
	}

	if len(kookies) == 0 {
		return nil, nil //nolint:nilnil // no browser cookies is not an error
	}

	return s.filterSessionCookies(kookies, host), nil
}

// firefoxProfileDirs returns the profile roots Firefox uses per platform:
// the macOS application-support path, the classic Linux dotdir, and the
// snap-confined Linux path. Nonexistent dirs just produce no glob matches.
func firefoxProfileDirs(home string) []string {
	return []string{
		filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles"),
		filepath.Join(home, ".mozilla", "firefox"),
		filepath.Join(home, "snap", "firefox", "common", ".mozilla", "firefox"),
	}
}

// tryFirefoxProfiles attempts to read cookies from Firefox profiles.
func (s *BrowserSource) tryFirefoxProfiles(ctx context.Context, host string) map[string]string {
	home := os.Getenv("HOME")
	if home == "" {
		return nil
	}

	var matches []string
	for _, dir := range firefoxProfileDirs(home) {
		found, err := filepath.Glob(filepath.Join(dir, "*", "cookies.sqlite"))
		if err != nil {
			continue
		}
		matches = append(matches, found...)
	}
	if len(matches) == 0 {
		return nil
	}

	for _, f := range matches {
		kookies, err := firefox.ReadCookies(ctx, f, kooky.Valid, kooky.DomainHasSuffix(host))
		if err == nil && len(kookies) > 0 {
			s.logger.Debug("found Firefox cookies",
				"profile", filepath.Base(filepath.Dir(f)),
				"host", host,
				"count", len(kookies))
			return s.filterSessionCookies(kookies, host)
		}
	}

	return nil
}

// filterSessionCookies keeps only known session cookies when any are
// present, since forwarding analytics cookies to the platform is noise.
func (s *BrowserSource) filterSessionCookies(kookies []*kooky.Cookie, host string) map[string]string {
	session := make(map[string]string)
	all := make(map[string]string)
	for _, c := range kookies {
		all[c.Name] = c.Value
		if sessionCookieNames[c.Name] {
			session[c.Name] = c.Value
			s.logger.Debug("found session cookie", "host", host, "name", c.Name, "len", len(c.Value))
		}
	}
	if len(session) > 0 {
		return session
	}
	return all
}
