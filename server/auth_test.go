package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/careflow/auth"
	"github.com/randalmurphal/careflow/testutil"
)

const (
	testReviewerKey = "ck_reviewer_key_for_auth_tests1"
	testObserverKey = "ck_observer_key_for_auth_tests1"
)

func testJWTConfig() auth.JWTConfig {
	return auth.JWTConfig{Secret: []byte(strings.Repeat("k", 32)), Issuer: "careflow"}
}

func newAuthedServer(t *testing.T) *Server {
	t.Helper()

	ring := auth.NewKeyring()
	if err := ring.Add(auth.HashToken(testReviewerKey), auth.RoleReviewer); err != nil {
		t.Fatal(err)
	}
	if err := ring.Add(auth.HashToken(testObserverKey), auth.RoleObserver); err != nil {
		t.Fatal(err)
	}

	jwtCfg := testJWTConfig()
	srv, _ := newTestServer(t, testutil.ApprovingClient(), Config{Keyring: ring, JWT: &jwtCfg})
	return srv
}

func TestAuth_OpenServerAllowsAll(t *testing.T) {
	srv, _ := newTestServer(t, testutil.ApprovingClient(), Config{})

	if w := doRequest(t, srv, http.MethodGet, "/api/v1/threads", nil, ""); w.Code != http.StatusOK {
		t.Errorf("read status = %d, want 200", w.Code)
	}
	w := doRequest(t, srv, http.MethodPost, "/api/v1/threads",
		startThreadRequest{Intent: "Help with stress"}, "")
	if w.Code != http.StatusAccepted {
		t.Errorf("mutation status = %d, want 202", w.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	srv := newAuthedServer(t)

	for _, tt := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/threads"},
		{http.MethodPost, "/api/v1/exercise"},
	} {
		w := doRequest(t, srv, tt.method, tt.path, nil, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", tt.method, tt.path, w.Code)
		}
		if body := decodeErrorBody(t, w); body.Code != "unauthorized" {
			t.Errorf("%s %s code = %q, want unauthorized", tt.method, tt.path, body.Code)
		}
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	srv := newAuthedServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/threads", nil, "ck_not_a_real_key_000000000000")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_HealthzStaysOpen(t *testing.T) {
	srv := newAuthedServer(t)

	if w := doRequest(t, srv, http.MethodGet, "/healthz", nil, ""); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}

func TestAuth_APIKeyRoles(t *testing.T) {
	srv := newAuthedServer(t)

	t.Run("observer reads", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/api/v1/threads", nil, testObserverKey)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("observer cannot mutate", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/v1/threads",
			startThreadRequest{Intent: "Help with stress"}, testObserverKey)
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
		if body := decodeErrorBody(t, w); body.Code != "forbidden" {
			t.Errorf("code = %q, want forbidden", body.Code)
		}
	})

	t.Run("reviewer mutates", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/v1/threads",
			startThreadRequest{Intent: "Help with stress"}, testReviewerKey)
		if w.Code != http.StatusAccepted {
			t.Errorf("status = %d, want 202, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("reviewer reads", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/api/v1/threads", nil, testReviewerKey)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

func TestAuth_JWTRoles(t *testing.T) {
	srv := newAuthedServer(t)
	jwtCfg := testJWTConfig()

	reviewerToken, err := auth.GenerateReviewerToken(jwtCfg, "dr-lopez", auth.RoleReviewer)
	if err != nil {
		t.Fatal(err)
	}
	observerToken, err := auth.GenerateReviewerToken(jwtCfg, "audit-bot", auth.RoleObserver)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("reviewer token mutates", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/v1/threads",
			startThreadRequest{Intent: "Help with stress"}, reviewerToken)
		if w.Code != http.StatusAccepted {
			t.Errorf("status = %d, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("observer token cannot mutate", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/v1/threads",
			startThreadRequest{Intent: "Help with stress"}, observerToken)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		tampered := reviewerToken[:len(reviewerToken)-2] + "xx"
		w := doRequest(t, srv, http.MethodGet, "/api/v1/threads", nil, tampered)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, testutil.ApprovingClient(), Config{
		MutationRate:  rate.Limit(0.01),
		MutationBurst: 1,
	})

	w := doRequest(t, srv, http.MethodPost, "/api/v1/threads",
		startThreadRequest{Intent: "Help with stress"}, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("first mutation status = %d, want 202", w.Code)
	}

	w = doRequest(t, srv, http.MethodPost, "/api/v1/threads",
		startThreadRequest{Intent: "Help with stress"}, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second mutation status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got == "" {
		t.Error("429 response should set Retry-After")
	}
	if body := decodeErrorBody(t, w); body.Code != "rate_limited" {
		t.Errorf("code = %q, want rate_limited", body.Code)
	}

	// Reads are never limited.
	for i := 0; i < 5; i++ {
		if w := doRequest(t, srv, http.MethodGet, "/api/v1/threads", nil, ""); w.Code != http.StatusOK {
			t.Fatalf("read %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, testutil.ApprovingClient(), Config{
		AllowedOrigins: []string{"https://app.example.com"},
	})

	t.Run("preflight allowed origin", func(t *testing.T) {
		w := doRequestWithOrigin(t, srv, http.MethodOptions, "/api/v1/threads", "https://app.example.com")
		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Errorf("allow-origin = %q", got)
		}
	})

	t.Run("disallowed origin gets no header", func(t *testing.T) {
		w := doRequestWithOrigin(t, srv, http.MethodGet, "/healthz", "https://evil.example.com")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow-origin = %q, want empty", got)
		}
	})

	t.Run("wildcard", func(t *testing.T) {
		wild, _ := newTestServer(t, testutil.ApprovingClient(), Config{AllowedOrigins: []string{"*"}})
		w := doRequestWithOrigin(t, wild, http.MethodGet, "/healthz", "https://anywhere.example.com")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
			t.Errorf("allow-origin = %q", got)
		}
	})
}

func doRequestWithOrigin(t *testing.T, srv *Server, method, path, origin string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Origin", origin)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}
