// Package registry maps platform names to adapter constructors. The set of
// platforms is closed: adapters register from init() and nothing is loaded
// at runtime.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codeGROOVE-dev/ctfbridge/challenge"
	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/download"
	"github.com/codeGROOVE-dev/ctfbridge/scoreboard"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// Authenticator is implemented by adapters that support login.
type Authenticator interface {
	Login(ctx context.Context, creds ctf.Credentials) error
}

// Client is the unified service set for one platform instance.
type Client struct {
	Platform     string
	Capabilities ctf.Capabilities
	AuthMethods  []ctf.AuthMethod
	Session      *transport.Session
	Challenges   *challenge.Service
	Scoreboard   *scoreboard.Service
	Attachments  *download.Service
	Auth         Authenticator // nil when the platform has no login
}

// Login authenticates the session. Credentials whose method the platform
// does not declare are rejected up front with ctf.ErrInvalidAuthMethod.
func (c *Client) Login(ctx context.Context, creds ctf.Credentials) error {
	if c.Auth == nil {
		return ctf.ErrNotSupported
	}
	method := creds.Method()
	if method == "" {
		return ctf.ErrAuthRequired
	}
	supported := false
	for _, m := range c.AuthMethods {
		if m == method {
			supported = true
			break
		}
	}
	if !supported {
		return ctf.ErrInvalidAuthMethod
	}
	return c.Auth.Login(ctx, creds)
}

// Def describes a registered platform. Construction is deferred: nothing is
// built until the factory runs.
type Def struct {
	Name       string
	New        func(session *transport.Session, logger *slog.Logger) *Client
	Identifier func(session *transport.Session) detect.Identifier
}

var (
	mu   sync.Mutex
	defs []Def
)

// Register adds a platform definition. Called from init() in adapter
// packages; registration order is the detection tiebreak order.
func Register(d Def) {
	mu.Lock()
	defer mu.Unlock()
	defs = append(defs, d)
}

// Platforms returns the registered platform names in registration order.
func Platforms() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Get returns the definition for a platform name.
func Get(name string) (Def, error) {
	mu.Lock()
	defer mu.Unlock()
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return Def{}, &ctf.UnknownPlatformError{Name: name}
}

// Identifiers constructs one identifier per registered platform, in
// registration order.
func Identifiers(session *transport.Session) []detect.Identifier {
	mu.Lock()
	defer mu.Unlock()
	ids := make([]detect.Identifier, 0, len(defs))
	for _, d := range defs {
		if d.Identifier != nil {
			ids = append(ids, d.Identifier(session))
		}
	}
	return ids
}
