// Package ctf defines the common types shared by all platform adapters.
package ctf

import "errors"

// Common errors returned by platform adapters and the detection layer.
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrInvalidAuthMethod = errors.New("auth method not supported by platform")
	ErrNotSupported      = errors.New("operation not supported by platform")
	ErrRateLimited       = errors.New("rate limited")
)

// Challenge represents a single challenge as reported by a platform.
//
// A Challenge is constructed fresh on every fetch and never mutated in
// place; observing a state change (for example a solve) requires a re-fetch.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Challenge struct {
	// Identity
	ID   string // platform-unique, stable across calls
	Name string

	// Classification
	Categories []string // first entry is the primary category
	Tags       []string // order irrelevant

	// Scoring
	Value int // points; 0 means not reported (summary listings may omit it)

	// Detail fields, absent until detail fetch on split-detail platforms
	Description string
	Attachments []Attachment
	Authors     []string

	// Solved is nil when the platform could not report solve state
	// (typically an unauthenticated session).
	Solved *bool
}

// PrimaryCategory returns the first category, or "" if none were reported.
func (c Challenge) PrimaryCategory() string {
	if len(c.Categories) == 0 {
		return ""
	}
	return c.Categories[0]
}

// HasTag reports whether the challenge carries the given tag.
func (c Challenge) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Attachment is a downloadable file attached to a challenge. The URL is
// absolute after adapter normalization. Headers carries any auth headers the
// platform requires on the download request.
type Attachment struct {
	Name    string
	URL     string
	Headers map[string]string
}

// SubmissionResult is the outcome of a single flag submission.
type SubmissionResult struct {
	Correct bool
	Message string // human-readable, platform-sourced
}

// ScoreboardEntry is one row of a platform scoreboard. Rank is 1-based and
// assigned positionally when the platform does not provide it.
type ScoreboardEntry struct {
	Name  string
	Score int
	Rank  int
}

// Capabilities declares what an adapter supports. The library does not
// verify the declaration at runtime beyond returning ErrNotSupported from
// unimplemented operations.
type Capabilities struct {
	Login          bool
	SubmitFlag     bool
	ViewScoreboard bool
	ListChallenges bool // true for every shipped adapter
}

// AuthMethod is a way of authenticating against a platform.
type AuthMethod string

// Supported auth methods.
const (
	AuthToken       AuthMethod = "token"
	AuthCredentials AuthMethod = "credentials"
	AuthCookies     AuthMethod = "cookies"
)

// Credentials carries caller-supplied authentication material. Exactly one
// method should be populated; Method reports which one.
type Credentials struct {
	Token    string
	Username string
	Password string
	Cookies  map[string]string
}

// Method returns the auth method the populated fields correspond to, or ""
// when nothing is set.
func (c Credentials) Method() AuthMethod {
	switch {
	case c.Token != "":
		return AuthToken
	case c.Username != "" || c.Password != "":
		return AuthCredentials
	case len(c.Cookies) > 0:
		return AuthCookies
	default:
		return ""
	}
}

// Bool returns a pointer to v. Convenience for FilterOptions and Challenge
// literals.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
