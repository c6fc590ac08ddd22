// Package identity provides the authenticated identity for a request.
//
// An Identity combines the claims of a validated access token (user id,
// username, timestamps) with request-specific context such as the client IP
// and request id. The JWT middleware stores it in the request context.
//
// # Basic Usage
//
//	claims, err := issuer.Parse(raw)
//	id, err := identity.FromClaims(claims)
//
//	id.WithRemoteIP(clientIP).
//	   WithRequestID(requestID)
//
//	ctx = identity.Set(ctx, id)
//
//	id, ok := identity.Get(ctx)
package identity
