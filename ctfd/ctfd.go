// Package ctfd implements the adapter for CTFd platforms.
//
// CTFd's bulk listing endpoint returns summaries only, so the pipeline
// hydrates each challenge with one detail request.
package ctfd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/ctfbridge/challenge"
	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/download"
	"github.com/codeGROOVE-dev/ctfbridge/htmlutil"
	"github.com/codeGROOVE-dev/ctfbridge/registry"
	"github.com/codeGROOVE-dev/ctfbridge/scoreboard"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// Name is the platform name used in the registry and detection results.
const Name = "ctfd"

// API endpoints.
const (
	loginPath      = "/login"
	challengesPath = "/api/v1/challenges"
	attemptPath    = "/api/v1/challenges/attempt"
	scoreboardPath = "/api/v1/scoreboard"
	mePath         = "/api/v1/users/me"
	swaggerPath    = "/api/v1/swagger.json"
)

// swaggerFingerprint appears only in CTFd's generated API documentation.
const swaggerFingerprint = "Endpoint to disband your current team. Can only"

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
				AuthMethods: []ctf.AuthMethod{ctf.AuthToken, ctf.AuthCredentials, ctf.AuthCookies},
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

// Client talks to one CTFd instance.
type Client struct {
	session *transport.Session
	logger  *slog.Logger

	// token is set after API-token login. Token sessions skip the CSRF
	// dance on submission and carry the header on attachment downloads.
	token string
}

// New creates a CTFd client on an existing session.
func New(session *transport.Session, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{session: session, logger: logger}
}

// BaseHasDetails is false: CTFd's list endpoint omits description,
// attachments, and tags.
func (*Client) BaseHasDetails() bool { return false }

// Login authenticates with an API token or with credentials (form login
// with a hidden nonce). Cookies are installed directly into the session.
func (c *Client) Login(ctx context.Context, creds ctf.Credentials) error {
	switch creds.Method() {
	case ctf.AuthToken:
		return c.loginWithToken(ctx, creds.Token)
	case ctf.AuthCredentials:
		return c.loginWithCredentials(ctx, creds.Username, creds.Password)
	case ctf.AuthCookies:
		return c.loginWithCookies(creds.Cookies)
	default:
		return ctf.ErrAuthRequired
	}
}

func (c *Client) loginWithToken(ctx context.Context, token string) error {
	c.session.SetHeader("Authorization", "Token "+token)

	// Verify the token before reporting success.
	if _, err := c.session.Get(ctx, mePath); err != nil {
		if errors.Is(err, transport.ErrUnauthorized) {
			return fmt.Errorf("%w: token rejected", ctf.ErrAuthRequired)
		}
		return fmt.Errorf("verify token: %w", err)
	}

	c.token = token
	c.logger.InfoContext(ctx, "token authentication successful", "platform", Name)
	return nil
}

func (c *Client) loginWithCredentials(ctx context.Context, username, password string) error {
	page, err := c.session.Get(ctx, loginPath)
	if err != nil {
		return fmt.Errorf("fetch login page: %w", err)
	}
	nonce := htmlutil.FormNonce(page.Text())
	if nonce == "" {
		return fmt.Errorf("%w: login nonce not found", ctf.ErrAuthRequired)
	}

	form := url.Values{}
	form.Set("name", username)
	form.Set("password", password)
	form.Set("nonce", nonce)

	resp, err := c.session.Post(ctx, loginPath, nil, transport.WithForm(form), transport.Raw())
	if err != nil {
		return fmt.Errorf("post login form: %w", err)
	}
	if resp.StatusCode == 403 || strings.Contains(strings.ToLower(resp.Text()), "incorrect") {
		return fmt.Errorf("%w: login rejected for user %q", ctf.ErrAuthRequired, username)
	}

	c.logger.InfoContext(ctx, "credential login successful", "platform", Name, "user", username)
	return nil
}

func (c *Client) loginWithCookies(cookies map[string]string) error {
	u, err := url.Parse(c.session.BaseURL())
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	for name, value := range cookies {
		if err := c.session.SetCookie(name, value, u.Hostname()); err != nil {
			return err
		}
	}
	return nil
}

// Wire types. CTFd tags arrive either as plain strings or as
// {"value": "..."} objects depending on version.

type listResponse struct {
	Success bool      `json:"success"`
	Data    []summary `json:"data"`
}

type summary struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Value    int    `json:"value"`
	Solved   *bool  `json:"solved_by_me"`
	Tags     []tag  `json:"tags"`
}

type detailResponse struct {
	Success bool   `json:"success"`
	Data    detail `json:"data"`
}

type detail struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Value       int      `json:"value"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
	Tags        []tag    `json:"tags"`
	Solved      *bool    `json:"solved_by_me"`
}

type tag struct {
	Value string
}

func (t *tag) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Value)
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Value = obj.Value
	return nil
}

// FetchChallenges returns challenge summaries from the bulk listing.
func (c *Client) FetchChallenges(ctx context.Context) ([]ctf.Challenge, error) {
	resp, err := c.session.Get(ctx, challengesPath)
	if err != nil {
		return nil, c.fetchError("challenges", err)
	}

	var payload listResponse
	if err := resp.JSON(&payload); err != nil {
		return nil, &ctf.FetchError{Resource: "challenges", Reason: "malformed challenge list", Err: err}
	}
	if !payload.Success {
		return nil, &ctf.FetchError{Resource: "challenges", Reason: "platform reported failure"}
	}

	challenges := make([]ctf.Challenge, 0, len(payload.Data))
	for _, s := range payload.Data {
		challenges = append(challenges, ctf.Challenge{
			ID:         strconv.Itoa(s.ID),
			Name:       s.Name,
			Categories: categories(s.Category),
			Value:      s.Value,
			Tags:       tagValues(s.Tags),
			Solved:     s.Solved,
		})
	}
	return challenges, nil
}

// FetchChallenge returns full detail for one challenge.
func (c *Client) FetchChallenge(ctx context.Context, id string) (ctf.Challenge, error) {
	resp, err := c.session.Get(ctx, challengesPath+"/"+url.PathEscape(id))
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return ctf.Challenge{}, &ctf.NotFoundError{ID: id}
		}
		return ctf.Challenge{}, c.fetchError("challenge "+id, err)
	}

	var payload detailResponse
	if err := resp.JSON(&payload); err != nil {
		return ctf.Challenge{}, &ctf.FetchError{Resource: "challenge " + id, Reason: "malformed challenge detail", Err: err}
	}
	d := payload.Data

	out := ctf.Challenge{
		ID:          strconv.Itoa(d.ID),
		Name:        d.Name,
		Categories:  categories(d.Category),
		Value:       d.Value,
		Description: d.Description,
		Tags:        tagValues(d.Tags),
		Solved:      d.Solved,
	}
	for _, ref := range d.Files {
		if ref == "" {
			continue
		}
		out.Attachments = append(out.Attachments, ctf.Attachment{
			Name:    filenameFromRef(ref),
			URL:     c.resolveFileURL(ref),
			Headers: c.authHeaders(),
		})
	}
	return out, nil
}

// Submit posts a flag attempt. CTFd reports the outcome in
// data.status: "correct", "incorrect", or "already_solved".
func (c *Client) Submit(ctx context.Context, challengeID, flag string) (ctf.SubmissionResult, error) {
	id, err := strconv.Atoi(challengeID)
	if err != nil {
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: "challenge ID must be numeric", Err: err,
		}
	}

	opts := []transport.RequestOption{}
	if c.token == "" {
		if nonce := c.csrfNonce(ctx); nonce != "" {
			opts = append(opts, transport.WithHeader("CSRF-Token", nonce))
		}
	}

	body := map[string]any{"challenge_id": id, "submission": flag}
	resp, err := c.session.Post(ctx, attemptPath, body, opts...)
	if err != nil {
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: reasonOf(err), Err: err,
		}
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := resp.JSON(&payload); err != nil {
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: "malformed submission response", Err: err,
		}
	}
	if payload.Data.Status == "" {
		return ctf.SubmissionResult{}, &ctf.SubmissionError{
			ChallengeID: challengeID, Flag: flag, Reason: `submission response missing "status"`,
		}
	}

	correct := payload.Data.Status == "correct" || payload.Data.Status == "already_solved"
	return ctf.SubmissionResult{Correct: correct, Message: payload.Data.Message}, nil
}

// FetchScoreboard returns the scoreboard. CTFd provides explicit positions.
func (c *Client) FetchScoreboard(ctx context.Context, _ int) ([]ctf.ScoreboardEntry, error) {
	resp, err := c.session.Get(ctx, scoreboardPath)
	if err != nil {
		return nil, &ctf.FetchError{Resource: "scoreboard", Reason: reasonOf(err), Err: err}
	}

	var payload struct {
		Success bool `json:"success"`
		Data    []struct {
			Pos   int    `json:"pos"`
			Name  string `json:"name"`
			Score int    `json:"score"`
		} `json:"data"`
	}
	if err := resp.JSON(&payload); err != nil {
		return nil, &ctf.FetchError{Resource: "scoreboard", Reason: "malformed scoreboard", Err: err}
	}

	entries := make([]ctf.ScoreboardEntry, 0, len(payload.Data))
	for _, e := range payload.Data {
		entries = append(entries, ctf.ScoreboardEntry{Name: e.Name, Score: e.Score, Rank: e.Pos})
	}
	return entries, nil
}

// csrfNonce fetches the base page and pulls the CSRF nonce CTFd embeds in
// its init script. Best-effort: cookie sessions without a nonce still get
// a meaningful rejection from the platform.
func (c *Client) csrfNonce(ctx context.Context) string {
	resp, err := c.session.Get(ctx, "/", transport.Raw())
	if err != nil {
		c.logger.Debug("csrf nonce fetch failed", "error", err)
		return ""
	}
	return htmlutil.CSRFNonce(resp.Text())
}

func (c *Client) fetchError(resource string, err error) error {
	if errors.Is(err, transport.ErrUnauthorized) {
		return fmt.Errorf("fetch %s: %w", resource, ctf.ErrAuthRequired)
	}
	return &ctf.FetchError{Resource: resource, Reason: reasonOf(err), Err: err}
}

func (c *Client) resolveFileURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return c.session.BaseURL() + "/" + strings.TrimLeft(ref, "/")
}

// authHeaders returns the headers an attachment download needs when the
// instance requires auth for file access. Cookie sessions rely on the
// downloader reusing the session jar instead.
func (c *Client) authHeaders() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Token " + c.token}
}

func categories(category string) []string {
	if category == "" {
		return nil
	}
	return []string{category}
}

func tagValues(tags []tag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Value != "" {
			out = append(out, t.Value)
		}
	}
	return out
}

func filenameFromRef(ref string) string {
	trimmed := ref
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
