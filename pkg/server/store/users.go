package store

import (
	"context"
	"errors"

	"github.com/objectrekognition/rekognition-server/pkg/model"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

// UsersStore abstracts user account storage operations
type UsersStore interface {
	// CreateUser stores a new account. It returns ErrUsernameTaken if the
	// username is already registered.
	CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error)

	// FetchUserByUsername returns the account registered under username
	FetchUserByUsername(ctx context.Context, username string) (*model.User, error)

	// FetchUser returns the account with the given id
	FetchUser(ctx context.Context, id int64) (*model.User, error)
}
