// Package auth resolves the caller's identity. Authentication itself happens
// elsewhere (the session token is issued by the identity provider); this
// package only verifies and reads it, and mints anonymous client ids for
// everyone else.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Cookie and header names shared with the UI.
const (
	SessionCookie   = "session"
	AnonymousCookie = "anonymous_id"
)

// User is an authenticated caller.
type User struct {
	ID string
}

// Service reads identities from incoming requests.
type Service struct {
	secret []byte
}

// NewService creates a service verifying session tokens with the given HMAC
// secret. An empty secret disables authenticated identities entirely; every
// caller is then anonymous.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// CurrentUser returns the authenticated user, or nil when the request
// carries no valid session token.
func (s *Service) CurrentUser(r *http.Request) *User {
	if len(s.secret) == 0 {
		return nil
	}

	token := bearerToken(r)
	if token == "" {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			return nil
		}
		token = cookie.Value
	}
	if token == "" {
		return nil
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		if err != nil {
			slog.Debug("session token rejected", "error", err)
		}
		return nil
	}

	return &User{ID: claims.Subject}
}

// Identity resolves the request to an (identity, authenticated) pair. For
// anonymous callers the client id comes from a cookie, minted here on first
// contact so subsequent requests share one rate-limit counter.
func (s *Service) Identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	if user := s.CurrentUser(r); user != nil {
		return user.ID, true
	}

	if cookie, err := r.Cookie(AnonymousCookie); err == nil && cookie.Value != "" {
		return cookie.Value, false
	}

	clientID := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     AnonymousCookie,
		Value:    clientID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
	})
	return clientID, false
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}
