// Package download saves challenge attachments to local files.
//
// Attachments hosted on the platform itself are fetched through the
// authenticated session, so instances that gate file access behind login
// still serve them. External hosts (object storage, CDNs) get a plain
// request that carries no session state.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

// Service downloads challenge attachments to disk.
type Service struct {
	session *transport.Session
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithHTTPClient sets the client used for attachments on external hosts.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// New creates a download service on the platform session.
func New(session *transport.Session, opts ...Option) *Service {
	s := &Service{session: session, client: &http.Client{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Save fetches one attachment into dir and returns the written file path.
// The directory is created if needed. A failed transfer leaves no partial
// file behind.
func (s *Service) Save(ctx context.Context, att ctf.Attachment, dir string) (string, error) {
	if att.URL == "" {
		return "", &ctf.FetchError{Resource: "attachment " + att.Name, Reason: "attachment has no URL"}
	}
	u, err := url.Parse(att.URL)
	if err != nil {
		return "", &ctf.FetchError{Resource: "attachment " + att.Name, Reason: "invalid attachment URL", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("download attachment %q over %s: %w", att.Name, u.Scheme, ctf.ErrNotSupported)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	dest := filepath.Join(dir, filename(att))

	out, err := os.Create(dest) //nolint:gosec // dest is confined to dir by filename
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}
	written, err := s.fetch(ctx, att, u, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest) //nolint:errcheck // best-effort cleanup of the partial file
		return "", &ctf.FetchError{Resource: "attachment " + att.Name, Reason: reasonOf(err), Err: err}
	}

	s.logger.Debug("saved attachment", "name", att.Name, "path", dest, "bytes", written)
	return dest, nil
}

// SaveAll fetches every attachment into dir, returning the written paths
// in input order. It stops at the first failure.
func (s *Service) SaveAll(ctx context.Context, attachments []ctf.Attachment, dir string) ([]string, error) {
	paths := make([]string, 0, len(attachments))
	for _, att := range attachments {
		p, err := s.Save(ctx, att, dir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (s *Service) fetch(ctx context.Context, att ctf.Attachment, u *url.URL, w io.Writer) (int64, error) {
	if s.sameHost(u) {
		opts := make([]transport.RequestOption, 0, len(att.Headers))
		for key, value := range att.Headers {
			opts = append(opts, transport.WithHeader(key, value))
		}
		return s.session.Stream(ctx, att.URL, w, opts...)
	}

	// External hosts never see session auth state.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", transport.UserAgent)
	for key, value := range att.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u.Host)
	}
	return io.Copy(w, resp.Body)
}

func (s *Service) sameHost(u *url.URL) bool {
	base, err := url.Parse(s.session.BaseURL())
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}

// filename picks the local file name: the attachment's own name when set,
// the last URL path segment otherwise. Path separators are stripped so a
// hostile name cannot escape the target directory.
func filename(att ctf.Attachment) string {
	name := att.Name
	if name == "" {
		if u, err := url.Parse(att.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = filepath.Base(filepath.Clean(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "attachment"
	}
	return name
}

func reasonOf(err error) string {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return err.Error()
}
