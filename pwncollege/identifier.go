package pwncollege

import (
	"context"
	"strings"

	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// dojoMarker anchors the dojo card section on the public listing page.
const dojoMarker = `id="dojos"`

// Identifier detects pwn.college deployments. The static check looks for
// the site name in the landing page; the dynamic check fetches the public
// dojo listing, which plain CTFd instances do not serve.
type Identifier struct {
	session *transport.Session
}

// Name returns the platform name.
func (*Identifier) Name() string { return Name }

// StaticDetect looks for the site name in the landing page. Absence is
// Unknown rather than NoMatch: self-hosted dojos may rename themselves.
func (*Identifier) StaticDetect(resp *transport.Response) detect.Verdict {
	if resp == nil {
		return detect.Unknown
	}
	body := strings.ToLower(resp.Text())
	if strings.Contains(body, "pwn.college") || strings.Contains(body, "pwncollege") {
		return detect.Match
	}
	return detect.Unknown
}

// DynamicDetect fetches the dojo listing under baseURL and checks for the
// dojo card section.
func (i *Identifier) DynamicDetect(ctx context.Context, baseURL string) bool {
	resp, err := i.session.Get(ctx, baseURL+dojosPath,
		transport.Raw(), transport.Cacheable(), transport.WithRequestTimeout(detect.ProbeTimeout))
	if err != nil || resp.StatusCode != 200 {
		return false
	}
	return strings.Contains(resp.Text(), dojoMarker)
}

// IsBaseURL reports whether the dojo listing answers at the candidate path.
func (i *Identifier) IsBaseURL(ctx context.Context, candidate string) bool {
	resp, err := i.session.Get(ctx, candidate+dojosPath,
		transport.Raw(), transport.Cacheable(), transport.WithRequestTimeout(detect.ProbeTimeout))
	return err == nil && resp.StatusCode == 200 && strings.Contains(resp.Text(), dojoMarker)
}
