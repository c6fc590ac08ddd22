package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim of issued tokens.
const DefaultIssuer = "rekognition-server"

var (
	// ErrMalformed indicates the token could not be decoded.
	ErrMalformed = errors.New("malformed token")

	// ErrExpired indicates the token is past its expiration time.
	ErrExpired = errors.New("token expired")

	// ErrInvalid indicates a bad signature, algorithm or missing claim.
	ErrInvalid = errors.New("invalid token")
)

// Claims are the claims carried by an access token.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject is not a user id", ErrInvalid)
	}
	return id, nil
}

// Issuer signs and verifies access tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(iss string) Option {
	return func(i *Issuer) {
		i.issuer = iss
	}
}

// NewIssuer creates an Issuer whose tokens are valid for ttl.
func NewIssuer(secret []byte, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		secret: secret,
		ttl:    ttl,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTL returns how long issued tokens are valid.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for the user.
func (i *Issuer) Issue(userID int64, username string) (string, error) {
	now := i.now().Truncate(time.Second)
	claims := Claims{
		Name: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns its claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
