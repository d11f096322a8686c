package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func okHandler(captured **User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := CurrentUser(r.Context()); ok {
			*captured = u
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_TokenRoundTrip(t *testing.T) {
	v := NewVerifier(testSecret, "")
	token, err := v.IssueToken(User{ID: "user-1", Email: "anna@example.com", Role: "learner"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var got *User
	srv := v.RequireAuth(okHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got == nil || got.ID != "user-1" || got.Email != "anna@example.com" || got.Role != "learner" {
		t.Errorf("user in context = %+v", got)
	}
}

func TestRequireAuth_Rejections(t *testing.T) {
	v := NewVerifier(testSecret, "")
	other := NewVerifier("other-secret", "")

	expired, err := v.IssueToken(User{ID: "user-1"}, -time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	foreign, err := other.IssueToken(User{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	noSubject, err := v.IssueToken(User{}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
		{"missing subject", "Bearer " + noSubject},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got *User
			srv := v.RequireAuth(okHandler(&got))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
			if got != nil {
				t.Error("handler ran despite rejection")
			}
		})
	}
}

func TestParseToken_DefaultsRole(t *testing.T) {
	v := NewVerifier(testSecret, "")
	token, err := v.IssueToken(User{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	u, err := v.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if u.Role != "learner" {
		t.Errorf("Role = %q, want default learner", u.Role)
	}
}

func TestRequireRoles(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("bootstrap-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	v := NewVerifier(testSecret, string(hash))
	mw := v.RequireRoles("admin")

	adminToken, err := v.IssueToken(User{ID: "admin-1", Role: "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	learnerToken, err := v.IssueToken(User{ID: "user-1", Role: "learner"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name       string
		authHeader string
		adminKey   string
		wantStatus int
	}{
		{"admin role", "Bearer " + adminToken, "", http.StatusOK},
		{"learner role", "Bearer " + learnerToken, "", http.StatusForbidden},
		{"learner with admin key", "Bearer " + learnerToken, "bootstrap-key", http.StatusOK},
		{"bad admin key", "Bearer " + learnerToken, "wrong", http.StatusForbidden},
		{"admin key only, no token", "", "bootstrap-key", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got *User
			// Mirrors the admin route chain: optional token, then role gate.
			srv := v.OptionalAuth(mw(okHandler(&got)))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			if tc.adminKey != "" {
				req.Header.Set("X-Admin-Key", tc.adminKey)
			}
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, req)
			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
		})
	}
}
