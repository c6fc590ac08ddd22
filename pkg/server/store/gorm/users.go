package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

// Ensure UsersStore implements store.UsersStore
var _ store.UsersStore = (*UsersStore)(nil)

// UsersStore implements store.UsersStore using GORM
type UsersStore struct {
	db *gorm.DB
}

// NewUsersStore creates a new UsersStore
func NewUsersStore(db *gorm.DB) *UsersStore {
	return &UsersStore{db: db}
}

// CreateUser inserts a new user row.
func (s *UsersStore) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	user := model.User{
		Username:     username,
		PasswordHash: passwordHash,
	}

	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "username"}}, DoNothing: true}).
		Create(&user)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return nil, store.ErrUsernameTaken
		}
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, store.ErrUsernameTaken
	}
	return &user, nil
}

// FetchUserByUsername retrieves a user by username.
func (s *UsersStore) FetchUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.fetch(ctx, "username = ?", username)
}

// FetchUser retrieves a user by id.
func (s *UsersStore) FetchUser(ctx context.Context, id int64) (*model.User, error) {
	return s.fetch(ctx, "id = ?", id)
}

func (s *UsersStore) fetch(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	tx := s.db.WithContext(ctx).Where(query, arg).First(&user)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, tx.Error
	}
	return &user, nil
}
