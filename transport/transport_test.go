package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSession(t *testing.T, url string, opts ...Option) *Session {
	t.Helper()
	s, err := New(url, opts...)
	if err != nil {
		t.Fatalf("New(%q): %v", url, err)
	}
	return s
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/challenges" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("User-Agent"); got != UserAgent {
			t.Errorf("User-Agent = %q, want %q", got, UserAgent)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`)) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	resp, err := s.Get(context.Background(), "/api/v1/challenges")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := resp.JSON(&body); err != nil || !body.Success {
		t.Errorf("JSON() = %+v, %v", body, err)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusUnprocessableEntity, ErrValidation},
		{http.StatusInternalServerError, ErrServer},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		s := newTestSession(t, srv.URL)

		_, err := s.Get(context.Background(), "/x")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != tc.status {
			t.Errorf("status %d: StatusError not surfaced: %v", tc.status, err)
		}
		srv.Close()
	}
}

func TestRawSkipsStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("The token provided is invalid.")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	resp, err := s.Get(context.Background(), "/api/v1/users/me", Raw())
	if err != nil {
		t.Fatalf("Get with Raw(): %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
}

func TestErrorMessageExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"flag is required"}`)) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	_, err := s.Get(context.Background(), "/x")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Message != "flag is required" {
		t.Errorf("Message = %q, want platform message", statusErr.Message)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	_, err := s.Get(context.Background(), "/x")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter not parsed: %+v", statusErr)
	}
}

func TestGetRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	resp, err := s.Get(context.Background(), "/x")
	if err != nil {
		t.Fatalf("Get should succeed after retries: %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("body = %q", resp.Text())
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestPostIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	if _, err := s.Post(context.Background(), "/submit", map[string]string{"flag": "x"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1 (no submission replay)", calls.Load())
	}
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("name") != "alice" || r.PostForm.Get("nonce") != "n1" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Write([]byte("welcome")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	form := map[string][]string{"name": {"alice"}, "nonce": {"n1"}}
	if _, err := s.Post(context.Background(), "/login", nil, WithForm(form)); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestPostJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["submission"] != "flag{x}" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte("{}")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	if _, err := s.Post(context.Background(), "/attempt", map[string]any{"submission": "flag{x}"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestSessionHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("Authorization"))) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	s.SetHeader("Authorization", "Token secret")

	resp, err := s.Get(context.Background(), "/x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.Text() != "Token secret" {
		t.Errorf("session header not sent: %q", resp.Text())
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	resp, err = s.Get(context.Background(), "/x")
	if err != nil {
		t.Fatalf("Get after Clear: %v", err)
	}
	if resp.Text() != "" {
		t.Errorf("header survived Clear: %q", resp.Text())
	}
}

type fakeCache struct {
	entries map[string][]byte
	hits    int
}

func (f *fakeCache) GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), _ ...time.Duration) ([]byte, error) {
	if data, ok := f.entries[key]; ok {
		f.hits++
		return data, nil
	}
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	f.entries[key] = data
	return data, nil
}

func (*fakeCache) TTL() time.Duration { return time.Minute }

func TestCacheableGetUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte("probe")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	cache := &fakeCache{entries: make(map[string][]byte)}
	s := newTestSession(t, srv.URL, WithCache(cache))

	for range 2 {
		resp, err := s.Get(context.Background(), "/", Cacheable())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if resp.Text() != "probe" {
			t.Errorf("body = %q", resp.Text())
		}
	}
	if calls.Load() != 1 {
		t.Errorf("origin calls = %d, want 1", calls.Load())
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}
}

func TestUncachedGetSkipsCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`)) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	cache := &fakeCache{entries: make(map[string][]byte)}
	s := newTestSession(t, srv.URL, WithCache(cache))

	for range 2 {
		if _, err := s.Get(context.Background(), "/api/v1/challs"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("origin calls = %d, want 2 (challenge data is never cached)", calls.Load())
	}
}

func TestResolveURL(t *testing.T) {
	s := newTestSession(t, "https://ctf.example.com/event")
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/challs", "https://ctf.example.com/event/api/v1/challs"},
		{"api/v1/challs", "https://ctf.example.com/event/api/v1/challs"},
		{"https://other.example.com/x", "https://other.example.com/x"},
	}
	for _, tc := range tests {
		if got := s.resolveURL(tc.path, nil); got != tc.want {
			t.Errorf("resolveURL(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestStreamWritesBodyAndCarriesAuth(t *testing.T) {
	payload := make([]byte, 64<<10)
	for i := range payload {
		payload[i] = byte(i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token tok" {
			t.Errorf("Authorization = %q, want session header", got)
		}
		w.Write(payload) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	s.SetHeader("Authorization", "Token tok")

	var buf bytes.Buffer
	n, err := s.Stream(context.Background(), "/files/big.bin", &buf)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("streamed %d bytes, want %d intact", n, len(payload))
	}
}

func TestStreamMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := newTestSession(t, srv.URL).Stream(context.Background(), "/files/gated.bin", &buf)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if buf.Len() != 0 {
		t.Errorf("error response leaked %d bytes into the writer", buf.Len())
	}
}
