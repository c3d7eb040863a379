package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- helpers ---

func sourceServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	c := NewHTTPClient(baseURL, "client-1", "s3cret", 5*time.Second)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

// --- RefreshToken tests ---

func TestRefreshToken_Success(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant_type: %s", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" {
			t.Errorf("unexpected refresh_token: %s", r.PostForm.Get("refresh_token"))
		}
		if r.PostForm.Get("client_id") != "client-1" || r.PostForm.Get("client_secret") != "s3cret" {
			t.Errorf("client credentials not sent")
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 3600})
	})

	tok, err := newTestClient(t, ts.URL).RefreshToken(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "new-refresh" {
		t.Errorf("unexpected token: %+v", tok)
	}
	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if !tok.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, tok.ExpiresAt)
	}
}

func TestRefreshToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "new-access", ExpiresIn: 60})
	})

	tok, err := newTestClient(t, ts.URL).RefreshToken(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.RefreshToken != "old-refresh" {
		t.Errorf("expected old refresh token to be kept, got %q", tok.RefreshToken)
	}
}

func TestRefreshToken_Unauthorized(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := newTestClient(t, ts.URL).RefreshToken(context.Background(), "revoked")
	if !errors.Is(err, ErrSourceAuth) {
		t.Fatalf("expected ErrSourceAuth, got %v", err)
	}
}

func TestRefreshToken_MissingAccessToken(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := newTestClient(t, ts.URL).RefreshToken(context.Background(), "x")
	if !errors.Is(err, ErrSourceAuth) {
		t.Fatalf("expected ErrSourceAuth, got %v", err)
	}
}

// --- ListMessages tests ---

func TestListMessages_ValidResponse(t *testing.T) {
	received := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer access-1" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		q := r.URL.Query()
		if q.Get("q") != "after:100" {
			t.Errorf("unexpected query: %s", q.Get("q"))
		}
		if q.Get("limit") != "50" {
			t.Errorf("unexpected limit: %s", q.Get("limit"))
		}
		if q.Get("page_token") != "" {
			t.Errorf("unexpected page token on first page: %s", q.Get("page_token"))
		}
		json.NewEncoder(w).Encode(MessagePage{
			Messages: []Message{{
				ID: "m-1", From: "alice@example.com", To: []string{"support@acme.com"},
				Labels: []string{"inbox"}, Subject: "Refund", Body: "Where is my refund?", ReceivedAt: received,
			}},
			NextPageToken: "p2",
		})
	})

	page, err := newTestClient(t, ts.URL).ListMessages(context.Background(), "access-1",
		ListRequest{Query: "after:100", Limit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(page.Messages))
	}
	m := page.Messages[0]
	if m.ID != "m-1" || m.From != "alice@example.com" || m.Subject != "Refund" {
		t.Errorf("unexpected message: %+v", m)
	}
	if !m.ReceivedAt.Equal(received) {
		t.Errorf("expected received_at %v, got %v", received, m.ReceivedAt)
	}
	if page.NextPageToken != "p2" {
		t.Errorf("unexpected next page token: %s", page.NextPageToken)
	}
}

func TestListMessages_EmptyResultIsNonNil(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages": null}`))
	})

	page, err := newTestClient(t, ts.URL).ListMessages(context.Background(), "a", ListRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Messages == nil {
		t.Error("expected non-nil empty slice")
	}
}

func TestListMessages_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrSourceAuth},
		{http.StatusForbidden, ErrSourceAuth},
		{http.StatusBadRequest, ErrSourceQuery},
		{http.StatusInternalServerError, ErrSourceQuery},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := newTestClient(t, ts.URL).ListMessages(context.Background(), "a", ListRequest{})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestListMessages_MalformedJSON(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := newTestClient(t, ts.URL).ListMessages(context.Background(), "a", ListRequest{})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestListMessages_Unreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.ListMessages(context.Background(), "a", ListRequest{})
	if !errors.Is(err, ErrSourceUnreachable) {
		t.Fatalf("expected ErrSourceUnreachable, got %v", err)
	}
}

func TestListMessages_Timeout(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	c := NewHTTPClient(ts.URL, "", "", 50*time.Millisecond)
	_, err := c.ListMessages(context.Background(), "a", ListRequest{})
	if !errors.Is(err, ErrSourceTimeout) {
		t.Fatalf("expected ErrSourceTimeout, got %v", err)
	}
}

func TestListMessages_ContextCancelled(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, ts.URL).ListMessages(ctx, "a", ListRequest{})
	if !errors.Is(err, ErrSourceTimeout) {
		t.Fatalf("expected ErrSourceTimeout, got %v", err)
	}
}

// --- ListAll tests ---

func TestListAll_FollowsPages(t *testing.T) {
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page_token") {
		case "":
			json.NewEncoder(w).Encode(MessagePage{Messages: []Message{{ID: "1"}, {ID: "2"}}, NextPageToken: "b"})
		case "b":
			json.NewEncoder(w).Encode(MessagePage{Messages: []Message{{ID: "3"}}})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("page_token"))
		}
	})

	msgs, err := ListAll(context.Background(), newTestClient(t, ts.URL), "a", ListRequest{Limit: 2}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
}

func TestListAll_StopsAtMaxPages(t *testing.T) {
	calls := 0
	ts := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(MessagePage{Messages: []Message{{ID: "x"}}, NextPageToken: "more"})
	})

	msgs, err := ListAll(context.Background(), newTestClient(t, ts.URL), "a", ListRequest{}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || len(msgs) != 3 {
		t.Errorf("expected 3 pages, got %d calls and %d messages", calls, len(msgs))
	}
}

// --- Ready tests ---

func TestReady(t *testing.T) {
	ok := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ready" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})
	if err := newTestClient(t, ok.URL).Ready(context.Background()); err != nil {
		t.Errorf("expected ready, got %v", err)
	}

	down := sourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := newTestClient(t, down.URL).Ready(context.Background()); !errors.Is(err, ErrSourceUnreachable) {
		t.Errorf("expected ErrSourceUnreachable, got %v", err)
	}
}
