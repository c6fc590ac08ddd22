package endpoints

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

// MockResultsStore implements store.ResultsStore for testing using testify/mock
type MockResultsStore struct {
	mock.Mock
}

func (m *MockResultsStore) ResultExists(ctx context.Context, digest string) (bool, error) {
	args := m.Called(ctx, digest)
	return args.Bool(0), args.Error(1)
}

func (m *MockResultsStore) FetchResult(ctx context.Context, digest string) (*store.Result, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Result), args.Error(1)
}

func (m *MockResultsStore) CreateResult(ctx context.Context, result store.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultsStore) ListResults(ctx context.Context, limit, offset int) ([]store.Result, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]store.Result), args.Error(1)
}

// MockUsersStore implements store.UsersStore for testing using testify/mock
type MockUsersStore struct {
	mock.Mock
}

func (m *MockUsersStore) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	args := m.Called(ctx, username, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUsersStore) FetchUserByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUsersStore) FetchUser(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

// MockHealthStore implements store.HealthStore for testing using testify/mock
type MockHealthStore struct {
	mock.Mock
}

func (m *MockHealthStore) CheckConnectivity(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDetector implements detection.Detector for testing using testify/mock
type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Analyze(ctx context.Context, key string, data []byte) (model.LabelSet, error) {
	args := m.Called(ctx, key, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.LabelSet), args.Error(1)
}
