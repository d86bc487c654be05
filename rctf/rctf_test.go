package rctf

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/ctfbridge/challenge"
	"github.com/codeGROOVE-dev/ctfbridge/ctf"
	"github.com/codeGROOVE-dev/ctfbridge/detect"
	"github.com/codeGROOVE-dev/ctfbridge/transport"
)

const challsFixture = `{
  "kind": "goodChallenges",
  "message": "ok",
  "data": [
    {
      "id": "baby-rop", "name": "Baby ROP", "category": "pwn", "author": "jane",
      "description": "ret2win", "points": 127,
      "files": [{"name": "rop.zip", "url": "https://files.example.com/rop.zip"}]
    },
    {
      "id": "cookies", "name": "Cookies", "category": "web",
      "description": "eat them", "points": 310, "files": []
    }
  ]
}`

const profileFixture = `{
  "kind": "goodUserSelfData",
  "data": {"name": "team", "solves": [{"id": "cookies"}]}
}`

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	session, err := transport.New(srv.URL)
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	return New(session, nil), srv
}

func TestFetchChallengesAnonymous(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/challs", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(challsFixture)) //nolint:errcheck // test handler
	})

	client, _ := newTestClient(t, mux)
	got, err := client.FetchChallenges(context.Background())
	if err != nil {
		t.Fatalf("FetchChallenges: %v", err)
	}

	want := []ctf.Challenge{
		{
			ID: "baby-rop", Name: "Baby ROP", Categories: []string{"pwn"},
			Authors: []string{"jane"}, Description: "ret2win", Value: 127,
			Attachments: []ctf.Attachment{{Name: "rop.zip", URL: "https://files.example.com/rop.zip"}},
		},
		{
			ID: "cookies", Name: "Cookies", Categories: []string{"web"},
			Description: "eat them", Value: 310,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	// Anonymous sessions cannot know solve state.
	if got[0].Solved != nil {
		t.Error("Solved should be unknown without auth")
	}
}

func TestFetchChallengesAnnotatesSolves(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"kind": "goodLogin", "data": {"authToken": "jwt-abc"}}`)) //nolint:errcheck // test handler
	})
	mux.HandleFunc("GET /api/v1/challs", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(challsFixture)) //nolint:errcheck // test handler
	})
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(profileFixture)) //nolint:errcheck // test handler
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()
	if err := client.Login(ctx, ctf.Credentials{Token: "team-token"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	got, err := client.FetchChallenges(ctx)
	if err != nil {
		t.Fatalf("FetchChallenges: %v", err)
	}
	if got[0].Solved == nil || *got[0].Solved {
		t.Errorf("baby-rop should be unsolved, got %v", got[0].Solved)
	}
	if got[1].Solved == nil || !*got[1].Solved {
		t.Errorf("cookies should be solved, got %v", got[1].Solved)
	}
}

func TestLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"kind": "badTokenVerification", "message": "Invalid token"}`)) //nolint:errcheck // test handler
	})

	client, _ := newTestClient(t, mux)
	err := client.Login(context.Background(), ctf.Credentials{Token: "bad"})
	if !errors.Is(err, ctf.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestLoginWithoutToken(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	if err := client.Login(context.Background(), ctf.Credentials{}); !errors.Is(err, ctf.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestPipelineSkipsHydration(t *testing.T) {
	var challsCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/challs", func(w http.ResponseWriter, _ *http.Request) {
		challsCalls++
		w.Write([]byte(challsFixture)) //nolint:errcheck // test handler
	})

	client, _ := newTestClient(t, mux)
	got, err := challenge.New(client).All(context.Background(), challenge.ListOptions{})
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d challenges", len(got))
	}
	if challsCalls != 1 {
		t.Errorf("challs calls = %d, want 1 (full-detail listing, no hydration)", challsCalls)
	}
}

func TestFetchChallengeByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/challs", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(challsFixture)) //nolint:errcheck // test handler
	})

	client, _ := newTestClient(t, mux)
	got, err := client.FetchChallenge(context.Background(), "cookies")
	if err != nil {
		t.Fatalf("FetchChallenge: %v", err)
	}
	if got.Name != "Cookies" {
		t.Errorf("Name = %q", got.Name)
	}

	_, err = client.FetchChallenge(context.Background(), "nope")
	var nf *ctf.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "nope" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSubmitKinds(t *testing.T) {
	tests := []struct {
		kind        string
		wantCorrect bool
		wantErr     bool
	}{
		{"goodFlag", true, false},
		{"badAlreadySolvedChallenge", true, false},
		{"badFlag", false, false},
		{"badRateLimit", false, true},
		{"", false, true},
	}
	for _, tc := range tests {
		name := tc.kind
		if name == "" {
			name = "missing kind"
		}
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/v1/challs/{id}/submit", func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Flag string `json:"flag"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Flag == "" {
					t.Errorf("bad submit payload: %v", err)
				}
				json.NewEncoder(w).Encode(map[string]string{"kind": tc.kind, "message": "m"}) //nolint:errcheck // test handler
			})

			client, _ := newTestClient(t, mux)
			got, err := client.Submit(context.Background(), "baby-rop", "flag{x}")
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if got.Correct != tc.wantCorrect {
				t.Errorf("Correct = %v, want %v", got.Correct, tc.wantCorrect)
			}
		})
	}
}

func TestSubmitRateLimited(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/challs/{id}/submit", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"kind": "badRateLimit", "message": "slow down"}`)) //nolint:errcheck // test handler
	})

	client, _ := newTestClient(t, mux)
	_, err := client.Submit(context.Background(), "x", "flag{x}")
	if !errors.Is(err, ctf.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestFetchScoreboard(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/leaderboard/now", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") == "" {
			t.Error("limit query parameter missing")
		}
		w.Write([]byte(`{
			"kind": "goodLeaderboard",
			"data": {"total": 2, "leaderboard": [
				{"name": "alpha", "score": 900},
				{"name": "beta", "score": 500}
			]}
		}`)) //nolint:errcheck // test handler
	})

	client, _ := newTestClient(t, mux)
	got, err := client.FetchScoreboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchScoreboard: %v", err)
	}
	want := []ctf.ScoreboardEntry{
		{Name: "alpha", Score: 900, Rank: 1},
		{Name: "beta", Score: 500, Rank: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentifier(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"kind": "badToken", "message": "The token provided is invalid."}`)) //nolint:errcheck // test handler
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session, err := transport.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	id := &Identifier{session: session}
	ctx := context.Background()

	if v := id.StaticDetect(&transport.Response{Body: []byte(`<script id="rctf-config">{}</script>`)}); v != detect.Match {
		t.Errorf("StaticDetect = %v, want Match", v)
	}
	if v := id.StaticDetect(&transport.Response{Body: []byte("<html></html>")}); v != detect.Unknown {
		t.Errorf("StaticDetect = %v, want Unknown", v)
	}

	if !id.DynamicDetect(ctx, srv.URL) {
		t.Error("DynamicDetect should match the rejection message")
	}
	if !id.IsBaseURL(ctx, srv.URL) {
		t.Error("IsBaseURL should accept the API root")
	}
}
