package ctfd

import (
	"context"
	"strings"

	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// Identifier detects CTFd instances. The static check looks for the
// platform name in the landing page; the dynamic check fetches the
// generated swagger document, whose help text is unique to CTFd.
type Identifier struct {
	session *transport.Session
}

// Name returns the platform name.
func (*Identifier) Name() string { return Name }

// StaticDetect looks for "ctfd" anywhere in the landing page. Heavily
// themed instances hide it, so absence is Unknown rather than NoMatch.
func (*Identifier) StaticDetect(resp *transport.Response) detect.Verdict {
	if resp == nil {
		return detect.Unknown
	}
	if strings.Contains(strings.ToLower(resp.Text()), "ctfd") {
		return detect.Match
	}
	return detect.Unknown
}

// DynamicDetect fetches the swagger document under baseURL and checks for
// CTFd's generated API help text.
func (i *Identifier) DynamicDetect(ctx context.Context, baseURL string) bool {
	resp, err := i.session.Get(ctx, baseURL+swaggerPath,
		transport.Raw(), transport.Cacheable(), transport.WithRequestTimeout(detect.ProbeTimeout))
	if err != nil || resp.StatusCode != 200 {
		return false
	}
	return strings.Contains(resp.Text(), swaggerFingerprint)
}

// IsBaseURL reports whether the API root answers at the candidate path.
func (i *Identifier) IsBaseURL(ctx context.Context, candidate string) bool {
	resp, err := i.session.Get(ctx, candidate+swaggerPath,
		transport.Raw(), transport.Cacheable(), transport.WithRequestTimeout(detect.ProbeTimeout))
	return err == nil && resp.StatusCode == 200
}
