package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/objectrekognition/rekognition-server/pkg/identity"
	"github.com/objectrekognition/rekognition-server/pkg/token"
)

// AccessTokenCookie is the cookie read when no Authorization header is sent.
const AccessTokenCookie = "access_token"

// JWTAuthenticator is middleware that validates access tokens
type JWTAuthenticator struct {
	Issuer *token.Issuer
	// IsTrustedProxy decides whether X-Forwarded-For is honored. Nil trusts
	// no proxy.
	IsTrustedProxy func(ip string) bool
	Log            logrus.FieldLogger
}

// NewJWTAuthenticator creates a new JWT authenticator middleware
func NewJWTAuthenticator(issuer *token.Issuer) *JWTAuthenticator {
	return &JWTAuthenticator{
		Issuer: issuer,
		Log:    logrus.StandardLogger(),
	}
}

// BearerToken extracts the raw token from the Authorization header or,
// failing that, from the access_token cookie.
func BearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, raw, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		raw = strings.TrimSpace(raw)
		return raw, raw != ""
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// Middleware returns an HTTP middleware that validates access tokens and
// stores the caller's identity in the request context.
func (j *JWTAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r)
		if !ok {
			if r.Header.Get("Authorization") != "" {
				unauthorized(w, "Malformed authorization header")
				return
			}
			unauthorized(w, "Authorization missing")
			return
		}

		claims, err := j.Issuer.Parse(raw)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				unauthorized(w, "Token expired")
			case errors.Is(err, token.ErrMalformed):
				unauthorized(w, "Malformed authorization token")
			default:
				j.Log.WithError(err).Debug("rejected access token")
				unauthorized(w, "Invalid token")
			}
			return
		}

		id, err := identity.FromClaims(claims)
		if err != nil {
			unauthorized(w, "Invalid token")
			return
		}
		id.WithRemoteIP(ClientIP(r, j.IsTrustedProxy))
		if requestID, ok := RequestIDFromContext(r.Context()); ok {
			id.WithRequestID(requestID)
		}

		next.ServeHTTP(w, r.WithContext(identity.Set(r.Context(), id)))
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="rekognition"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
