package identity

import (
	"context"
	"net"
	"time"

	"github.com/objectrekognition/rekognition-server/pkg/token"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// Key is the context key for Identity.
	Key ContextKey = "identity"
)

// Identity represents the authenticated user for a request.
// It combines token claims with request-specific context.
type Identity struct {
	// Token claims
	UserID    int64
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Request context
	RemoteIP  net.IP
	RequestID string

	// The underlying token claims
	Claims *token.Claims
}

// FromClaims creates an Identity from validated token claims.
func FromClaims(claims *token.Claims) (*Identity, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID:   userID,
		Username: claims.Name,
		Claims:   claims,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// WithRemoteIP sets the remote IP address.
func (i *Identity) WithRemoteIP(ip net.IP) *Identity {
	i.RemoteIP = ip
	return i
}

// WithRequestID sets the request id.
func (i *Identity) WithRequestID(requestID string) *Identity {
	i.RequestID = requestID
	return i
}

// Expired reports whether the identity's token has expired at now.
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Get retrieves Identity from context.
func Get(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(Key).(*Identity)
	return id, ok
}

// Set stores Identity in context.
func Set(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, Key, id)
}
