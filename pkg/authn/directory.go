// Package authn registers accounts and authenticates them with a username
// and password, issuing an access token on success.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
	"github.com/objectrekognition/rekognition-server/pkg/token"
)

var (
	// ErrMissingCredentials is returned when the username or password is empty.
	ErrMissingCredentials = errors.New("username and password are required")

	// ErrInvalidCredentials is returned for an unknown username or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidUsername is returned for usernames containing control
	// characters.
	ErrInvalidUsername = errors.New("username must not contain control characters")

	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// Directory manages accounts backed by a UsersStore.
type Directory struct {
	users   store.UsersStore
	issuer  *token.Issuer
	cost    int
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	dummyOnce sync.Once
	dummyHash string
}

// Option configures a Directory.
type Option func(*Directory)

// WithBcryptCost sets the bcrypt cost for new password hashes.
func WithBcryptCost(cost int) Option {
	return func(d *Directory) {
		d.cost = cost
	}
}

// WithMetrics counts register and login attempts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Directory) {
		d.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Directory) {
		d.log = log
	}
}

// NewDirectory creates a Directory.
func NewDirectory(users store.UsersStore, issuer *token.Issuer, opts ...Option) *Directory {
	d := &Directory{
		users:  users,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register creates an account. An existing account with the same username
// is left untouched and store.ErrUsernameTaken is returned.
func (d *Directory) Register(ctx context.Context, username, password string) (*model.User, error) {
	user, err := d.register(ctx, username, password)
	d.metrics.IncAuthAttempt("register", err == nil)
	return user, err
}

func (d *Directory) register(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if strings.IndexFunc(username, unicode.IsControl) >= 0 {
		return nil, ErrInvalidUsername
	}

	hash, err := model.HashPassword(password, d.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := d.users.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, err
	}

	d.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return user, nil
}

// Authenticate verifies the credentials and returns a signed access token.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (string, *model.User, error) {
	raw, user, err := d.authenticate(ctx, username, password)
	d.metrics.IncAuthAttempt("login", err == nil)
	return raw, user, err
}

func (d *Directory) authenticate(ctx context.Context, username, password string) (string, *model.User, error) {
	if username == "" || password == "" {
		return "", nil, ErrMissingCredentials
	}

	user, err := d.users.FetchUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Spend the same time as a real comparison.
			_ = bcrypt.CompareHashAndPassword([]byte(d.dummy()), []byte(password))
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !user.ValidatePassword(password) {
		return "", nil, ErrInvalidCredentials
	}

	raw, err := d.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return "", nil, err
	}
	return raw, user, nil
}

// Lookup returns the account for id.
func (d *Directory) Lookup(ctx context.Context, id int64) (*model.User, error) {
	return d.users.FetchUser(ctx, id)
}

func (d *Directory) dummy() string {
	d.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("rekognition-dummy-password"), d.cost)
		if err == nil {
			d.dummyHash = string(hash)
		}
	})
	return d.dummyHash
}
