package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"wyspamat/internal/app/apiresp"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid access token")

// User is the learner identity asserted by the external identity provider.
type User struct {
	ID    string
	Email string
	Role  string
}

type contextKey struct{}

// Verifier validates identity-provider bearer tokens and gates admin routes.
type Verifier struct {
	hmacSecret     []byte
	adminKeyBcrypt string
}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func NewVerifier(jwtSecret, adminKeyBcrypt string) *Verifier {
	return &Verifier{
		hmacSecret:     []byte(jwtSecret),
		adminKeyBcrypt: strings.TrimSpace(adminKeyBcrypt),
	}
}

// ParseToken validates the token signature and expiry and returns the user.
func (v *Verifier) ParseToken(tokenStr string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.hmacSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	role := claims.Role
	if role == "" {
		role = "learner"
	}
	return &User{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// IssueToken signs a token the way the identity provider does. Used by tests
// and local development seeding.
func (v *Verifier) IssueToken(user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.hmacSecret)
}

// RequireAuth rejects requests without a valid bearer token before any
// content data is read.
func (v *Verifier) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		user, err := v.ParseToken(token)
		if err != nil {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "invalid access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the user when a valid bearer token is present but
// lets the request through either way. Admin routes pair it with RequireRoles
// so the bootstrap key works before any admin token exists.
func (v *Verifier) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			if user, err := v.ParseToken(token); err == nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles allows only users whose role is in the given set. An admin
// bootstrap key in X-Admin-Key is accepted as an alternative for admin-only
// routes so a fresh deployment can be seeded before any admin token exists.
func (v *Verifier) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, ok := CurrentUser(r.Context()); ok && allowed[user.Role] {
				next.ServeHTTP(w, r)
				return
			}
			if allowed["admin"] && v.checkAdminKey(r.Header.Get("X-Admin-Key")) {
				next.ServeHTTP(w, r)
				return
			}
			apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		})
	}
}

func (v *Verifier) checkAdminKey(key string) bool {
	if v.adminKeyBcrypt == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(v.adminKeyBcrypt), []byte(key)) == nil
}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func CurrentUser(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(contextKey{}).(*User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
