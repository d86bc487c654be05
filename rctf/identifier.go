package rctf

import (
	"context"
	"strings"

	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// tokenRejection is the exact message rCTF's API returns for an
// unauthenticated /users/me request.
const tokenRejection = "The token provided is invalid."

// Identifier detects rCTF instances. The static check looks for the
// rctf-config script tag the frontend always embeds; the dynamic check
// relies on the API's distinctive unauthenticated rejection message.
type Identifier struct {
	session *transport.Session
}

// Name returns the platform name.
func (*Identifier) Name() string { return Name }

// StaticDetect looks for the rctf-config bootstrap in the landing page.
func (*Identifier) StaticDetect(resp *transport.Response) detect.Verdict {
	if resp == nil {
		return detect.Unknown
	}
	if strings.Contains(resp.Text(), "rctf-config") {
		return detect.Match
	}
	return detect.Unknown
}

// DynamicDetect hits the profile endpoint anonymously and checks for
// rCTF's exact rejection message.
func (i *Identifier) DynamicDetect(ctx context.Context, baseURL string) bool {
	return i.probeMe(ctx, baseURL)
}

// IsBaseURL reports whether the API root answers at the candidate path.
func (i *Identifier) IsBaseURL(ctx context.Context, candidate string) bool {
	return i.probeMe(ctx, candidate)
}

// probeMe expects a 401 with the canonical rejection body, so the response
// is read raw and never cached.
func (i *Identifier) probeMe(ctx context.Context, base string) bool {
	resp, err := i.session.Get(ctx, base+mePath,
		transport.Raw(), transport.WithRequestTimeout(detect.ProbeTimeout))
	if err != nil {
		return false
	}
	return strings.Contains(resp.Text(), tokenRejection)
}
