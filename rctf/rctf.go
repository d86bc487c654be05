// Package rctf implements the adapter for rCTF platforms.
//
// rCTF's bulk listing already carries full detail, so the pipeline never
// hydrates. The API wraps every response in a {kind, message, data}
// envelope; "good*" kinds are successes.
package rctf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/codeGROOVE-dev/ctfbridge/challenge"
	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/download"
	"github.com/codeGROOVE-dev/ctfbridge/registry"
	"github.com/codeGROOVE-dev/ctfbridge/scoreboard"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// Name is the platform name used in the registry and detection results.
const Name = "rctf"

// API endpoints.
const (
	loginPath       = "/api/v1/auth/login"
	challsPath      = "/api/v1/challs"
	mePath          = "/api/v1/users/me"
	leaderboardPath = "/api/v1/leaderboard/now"
)

func init() {
	registry.Register(registry.Def{
		Name: Name,
		New: func(session *transport.Session, logger *slog.Logger) *registry.Client {
			c := New(session, logger)
			return &registry.Client{
				Platform: Name,
				Capabilities: ctf.Capabilities{
					Login:          true,
					SubmitFlag:     true,
					ViewScoreboard: true,
					ListChallenges: true,
				},
				AuthMethods: []ctf.AuthMethod{ctf.AuthToken},
				Session:     session,
				Challenges:  challenge.New(c, challenge.WithLogger(c.logger)),
				Scoreboard:  scoreboard.New(c, scoreboard.WithLogger(c.logger)),
				Attachments: download.New(session, download.WithLogger(c.logger)),
				Auth:        c,
			}
		},
		Identifier: func(session *transport.Session) detect.Identifier {
			return &Identifier{session: session}
		},
	})
}

// Client talks to one rCTF instance.
type Client struct {
	session *transport.Session
	logger  *slog.Logger

	authed bool
}

// New creates an rCTF client on an existing session.
func New(session *transport.Session, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{session: session, logger: logger}
}

// BaseHasDetails is true: /api/v1/challs returns descriptions and files.
func (*Client) BaseHasDetails() bool { return true }

// Login exchanges the team token for a bearer token. rCTF has no
// username/password or cookie login.
func (c *Client) Login(ctx context.Context, creds ctf.Credentials) error {
	if creds.Token == "" {
		return ctf.ErrAuthRequired
	}

	resp, err := c.session.Post(ctx, loginPath, map[string]string{"teamToken": creds.Token})
	if err != nil {
		if errors.Is(err, transport.ErrUnauthorized) || errors.Is(err, transport.ErrForbidden) {
			return fmt.Errorf("%w: team token rejected", ctf.ErrAuthRequired)
		}
		return fmt.Errorf("login: %w", err)
	}

	var payload struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Data    struct {
			AuthToken string `json:"authToken"`
		} `json:"data"`
	}
	if err := resp.JSON(&payload); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}
	if payload.Kind != "goodLogin" || payload.Data.AuthToken == "" {
		return fmt.Errorf("%w: %s", ctf.ErrAuthRequired, payload.Message)
	}

	c.session.SetHeader("Authorization", "Bearer "+payload.Data.AuthToken)
	c.authed = true
	c.logger.InfoContext(ctx, "team token login successful", "platform", Name)
	return nil
}

// Wire types.

type challEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Author      string `json:"author"`
	Points      int    `json:"points"`
	Files       []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"files"`
}

// FetchChallenges returns the full challenge list. When authenticated, the
// team's solves annotate each challenge; anonymously Solved stays unknown.
func (c *Client) FetchChallenges(ctx context.Context) ([]ctf.Challenge, error) {
	resp, err := c.session.Get(ctx, challsPath)
	if err != nil {
		if errors.Is(err, transport.ErrUnauthorized) {
			return nil, fmt.Errorf("fetch challenges: %w", ctf.ErrAuthRequired)
		}
		return nil, &ctf.FetchError{Resource: "challenges", Reason: reasonOf(err), Err: err}
	}

	var payload struct {
		Kind    string       `json:"kind"`
		Message string       `json:"message"`
		Data    []challEntry `json:"data"`
	}
	if err := resp.JSON(&payload); err != nil {
		return nil, &ctf.FetchError{Resource: "challenges", Reason: "malformed challenge list", Err: err}
	}
	if payload.Kind != "goodChallenges" {
		return nil, &ctf.FetchError{Resource: "challenges", Reason: payload.Message}
	}

	solved := c.solvedSet(ctx)

	challenges := make([]ctf.Challenge, 0, len(payload.Data))
	for _, e := range payload.Data {
		challenges = append(challenges, c.toChallenge(e, solved))
	}
	return challenges, nil
}

// FetchChallenge scans the full list; rCTF has no per-challenge endpoint.
func (c *Client) FetchChallenge(ctx context.Context, id string) (ctf.Challenge, error) {
	all, err := c.FetchChallenges(ctx)
	if err != nil {
		return ctf.Challenge{}, err
	}
	for _, chall := range all {
		if chall.ID == id {
			return chall, nil
		}
	}
	return ctf.Challenge{}, &ctf.NotFoundError{ID: id}
}

// Submit posts a flag attempt. The response kind encodes the outcome:
// goodFlag, badFlag, badAlreadySolvedChallenge, badRateLimit.
func (c *Client) Submit(ctx context.Context, challengeID, flag string) (ctf.SubmissionResult, error) {
	resp, err := c.session.Post(ctx, challsPath+"/"+url.PathEscape(challengeID)+"/submit",
		map[string]string{"flag": flag})
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return ctf.SubmissionResult{}, &ctf.NotFoundError{ID: challengeID}
		}
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: reasonOf(err), Err: err,
		}
	}

	var payload struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	if err := resp.JSON(&payload); err != nil {
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: "malformed submission response", Err: err,
		}
	}

	switch payload.Kind {
	case "goodFlag", "badAlreadySolvedChallenge":
		return ctf.SubmissionResult{Correct: true, Message: payload.Message}, nil
	case "badFlag":
		return ctf.SubmissionResult{Correct: false, Message: payload.Message}, nil
	case "badRateLimit":
		return ctf.SubmissionResult{}, fmt.Errorf("submit %s: %w", challengeID, ctf.ErrRateLimited)
	case "":
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: `submission response missing "kind"`,
		}
	default:
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: payload.Kind + ": " + payload.Message,
		}
	}
}

// FetchScoreboard returns the current leaderboard.
func (c *Client) FetchScoreboard(ctx context.Context, limit int) ([]ctf.ScoreboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 100 // rCTF caps page size at 100
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", "0")

	resp, err := c.session.Get(ctx, leaderboardPath, transport.WithQuery(q))
	if err != nil {
		return nil, &ctf.FetchError{Resource: "scoreboard", Reason: reasonOf(err), Err: err}
	}

	var payload struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Data    struct {
			Total       int `json:"total"`
			Leaderboard []struct {
				Name  string `json:"name"`
				Score int    `json:"score"`
			} `json:"leaderboard"`
		} `json:"data"`
	}
	if err := resp.JSON(&payload); err != nil {
		return nil, &ctf.FetchError{Resource: "scoreboard", Reason: "malformed scoreboard", Err: err}
	}
	if payload.Kind != "goodLeaderboard" {
		return nil, &ctf.FetchError{Resource: "scoreboard", Reason: payload.Message}
	}

	entries := make([]ctf.ScoreboardEntry, 0, len(payload.Data.Leaderboard))
	for i, e := range payload.Data.Leaderboard {
		entries = append(entries, ctf.ScoreboardEntry{Name: e.Name, Score: e.Score, Rank: i + 1})
	}
	return entries, nil
}

// solvedSet returns the IDs the team has solved, or nil when the session is
// anonymous or the profile fetch fails. Absence of the set means Solved
// stays unknown, never false.
func (c *Client) solvedSet(ctx context.Context) map[string]bool {
	if !c.authed {
		return nil
	}

	resp, err := c.session.Get(ctx, mePath)
	if err != nil {
		c.logger.Debug("profile fetch failed, skipping solve annotation", "error", err)
		return nil
	}

	var payload struct {
		Kind string `json:"kind"`
		Data struct {
			Solves []struct {
				ID string `json:"id"`
			} `json:"solves"`
		} `json:"data"`
	}
	if err := resp.JSON(&payload); err != nil || payload.Kind != "goodUserSelfData" {
		return nil
	}

	solved := make(map[string]bool, len(payload.Data.Solves))
	for _, s := range payload.Data.Solves {
		solved[s.ID] = true
	}
	return solved
}

func (c *Client) toChallenge(e challEntry, solved map[string]bool) ctf.Challenge {
	out := ctf.Challenge{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Value:       e.Points,
	}
	if e.Category != "" {
		out.Categories = []string{e.Category}
	}
	if e.Author != "" {
		out.Authors = []string{e.Author}
	}
	if solved != nil {
		out.Solved = ctf.Bool(solved[e.ID])
	}
	for _, f := range e.Files {
		name := f.Name
		if name == "" {
			name = filenameFromURL(f.URL)
		}
		out.Attachments = append(out.Attachments, ctf.Attachment{Name: name, URL: f.URL})
	}
	return out
}

func filenameFromURL(raw string) string {
	trimmed := raw
	if idx := strings.IndexByte(trimmed, '?'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}

func reasonOf(err error) string {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return err.Error()
}
