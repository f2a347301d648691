package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != "user-1" {
		t.Fatalf("subject = %q, want user-1", got)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v := NewVerifier("test-secret")
	other := NewVerifier("other-secret")

	expired := NewVerifier("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	wrongKey, _ := other.Issue("user-1", time.Hour)
	stale, _ := expired.Issue("user-1", time.Hour)
	noSubject, _ := v.Issue("", time.Hour)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong key", wrongKey},
		{"expired", stale},
		{"no subject", noSubject},
		{"alg none", noneAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("Verify err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestRequireAPI(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Issue("user-1", time.Hour)

	var seen string
	h := v.RequireAPI(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
		wantUser string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent, "user-1"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, http.StatusNoContent, "user-1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusNoContent, "user-1"},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized, ""},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if seen != tt.wantUser {
				t.Fatalf("user = %q, want %q", seen, tt.wantUser)
			}
		})
	}
}

func TestRequirePage_RedirectsToLogin(t *testing.T) {
	v := NewVerifier("test-secret")
	h := v.RequirePage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != LoginPath {
		t.Fatalf("Location = %q, want %q", loc, LoginPath)
	}
}
