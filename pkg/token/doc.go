// Package token issues and validates the access tokens handed out by
// /auth/login.
//
// Tokens are HS256 JWTs. The subject is the user id, the "name" claim carries
// the username, and every token has an issued-at and an expiration time.
//
// # Basic Usage
//
//	issuer := token.NewIssuer(secret, 24*time.Hour)
//
//	raw, err := issuer.Issue(user.ID, user.Username)
//	if err != nil {
//	    return err
//	}
//
//	claims, err := issuer.Parse(raw)
//	if errors.Is(err, token.ErrExpired) {
//	    // ask the client to log in again
//	}
//
//	userID, err := claims.UserID()
package token
