// Package pwncollege implements the adapter for pwn.college dojos.
//
// The dojo runs on a reworked CTFd, so login, flag submission, and the
// scoreboard reuse the CTFd client unchanged. Challenge listings differ:
// there is no bulk API, so the adapter walks the public dojo pages
// (/dojos, then each dojo and module page) and scrapes the challenge
// entries. Challenge files live in a per-user workspace reached over SSH
// rather than behind download URLs.
package pwncollege

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/ctfbridge/challenge"
	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/ctfd"
	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/download"
	"github.com/codeGROOVE-dev/ctfbridge/registry"
	"github.com/codeGROOVE-dev/ctfbridge/scoreboard"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// Name is the platform name used in the registry and detection results.
const Name = "pwncollege"

const dojosPath = "/dojos"

// sshWorkspace is where challenge files live. The dojo provisions every
// user a workspace on the shared SSH host instead of serving file
// downloads.
const sshWorkspace = "ssh://hacker@dojo.pwn.college:22"

// fetchConcurrency bounds concurrent dojo and module page fetches.
const fetchConcurrency = 8

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

// Client talks to one pwn.college deployment. The embedded CTFd client
// handles everything the underlying CTFd still serves; only challenge
// listing is overridden.
type Client struct {
	*ctfd.Client

	session *transport.Session
	logger  *slog.Logger
}

// New creates a pwn.college client on an existing session.
func New(session *transport.Session, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Client: ctfd.New(session, logger), session: session, logger: logger}
}

// BaseHasDetails is true: module pages carry everything the adapter can
// know about a challenge, so per-challenge hydration would buy nothing.
func (*Client) BaseHasDetails() bool { return true }

type moduleRef struct {
	dojo   string
	module string
}

// FetchChallenges walks the dojo hierarchy: the listing page yields dojo
// slugs, each dojo page yields module slugs, and each module page yields
// challenge entries. Page fetches within a level run concurrently; the
// result keeps listing order.
func (c *Client) FetchChallenges(ctx context.Context) ([]ctf.Challenge, error) {
	resp, err := c.session.Get(ctx, dojosPath)
	if err != nil {
		return nil, &ctf.FetchError{Resource: "dojo listing", Reason: reasonOf(err), Err: err}
	}
	dojos := parseDojoSlugs(resp.Text())
	if len(dojos) == 0 {
		return nil, &ctf.FetchError{Resource: "dojo listing", Reason: "no dojos found"}
	}

	perDojo := make([][]moduleRef, len(dojos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, slug := range dojos {
		g.Go(func() error {
			resp, err := c.session.Get(gctx, "/"+slug)
			if err != nil {
				return &ctf.FetchError{Resource: "dojo " + slug, Reason: reasonOf(err), Err: err}
			}
			for _, module := range parseModuleSlugs(resp.Text(), slug) {
				perDojo[i] = append(perDojo[i], moduleRef{dojo: slug, module: module})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // group errors are already FetchErrors
	}

	var refs []moduleRef
	for _, ms := range perDojo {
		refs = append(refs, ms...)
	}

	perModule := make([][]ctf.Challenge, len(refs))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			resp, err := c.session.Get(gctx, "/"+ref.dojo+"/"+ref.module)
			if err != nil {
				return &ctf.FetchError{Resource: "module " + ref.dojo + "/" + ref.module, Reason: reasonOf(err), Err: err}
			}
			title, entries := parseModule(resp.Text())
			if title == "" {
				title = ref.module
			}
			for _, e := range entries {
				perModule[i] = append(perModule[i], ctf.Challenge{
					ID:          e.id,
					Name:        e.name,
					Categories:  []string{title},
					Description: e.description,
					// The dojo tracks per-level progress, not points.
					Value:       1,
					Attachments: []ctf.Attachment{{Name: "workspace", URL: sshWorkspace}},
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // group errors are already FetchErrors
	}

	var challenges []ctf.Challenge
	for _, ms := range perModule {
		challenges = append(challenges, ms...)
	}
	c.logger.DebugContext(ctx, "scraped dojo hierarchy",
		"dojos", len(dojos), "modules", len(refs), "challenges", len(challenges))
	return challenges, nil
}

// FetchChallenge scans the scraped listing; the dojo pages have no
// per-challenge detail beyond what the module page shows.
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

func reasonOf(err error) string {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return err.Error()
}
