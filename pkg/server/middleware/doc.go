// Package middleware provides the HTTP middleware of the rekognition server:
// request ids, client address resolution and bearer token authentication.
package middleware
