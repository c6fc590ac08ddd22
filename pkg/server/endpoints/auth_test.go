package endpoints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/server/middleware"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("creates account", func(t *testing.T) {
		env := newTestEnv(t)
		env.Users.On("CreateUser", mock.Anything, "alice", mock.AnythingOfType("string")).
			Return(&model.User{ID: 1, Username: "alice"}, nil).Once()

		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, postJSON("/auth/register", `{"username":"alice","password":"secret"}`))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "User created successfully", decodeBody(t, w)["message"])
		assert.Contains(t, env.AuditLog.String(), "alice registered")
		env.assertExpectations(t)
	})

	t.Run("stores a bcrypt hash", func(t *testing.T) {
		env := newTestEnv(t)
		env.Users.On("CreateUser", mock.Anything, "alice", mock.MatchedBy(func(hash string) bool {
			return bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")) == nil
		})).Return(&model.User{ID: 1, Username: "alice"}, nil).Once()

		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, postJSON("/auth/register", `{"username":"alice","password":"secret"}`))

		assert.Equal(t, http.StatusCreated, w.Code)
		env.assertExpectations(t)
	})

	t.Run("duplicate username", func(t *testing.T) {
		env := newTestEnv(t)
		env.Users.On("CreateUser", mock.Anything, "alice", mock.AnythingOfType("string")).
			Return(nil, store.ErrUsernameTaken).Once()

		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, postJSON("/auth/register", `{"username":"alice","password":"other"}`))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "User already exists", decodeBody(t, w)["message"])
		assert.Contains(t, env.AuditLog.String(), "alice failed to register")
		env.assertExpectations(t)
	})

	tests := []struct {
		name string
		body string
	}{
		{"missing password", `{"username":"alice"}`},
		{"missing username", `{"password":"secret"}`},
		{"newline in username", `{"username":"mallory\n<86>1 forged","password":"secret"}`},
		{"not json", `username=alice`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := httptest.NewRecorder()
			env.Server.Router.ServeHTTP(w, postJSON("/auth/register", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			env.Users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestLoginEndpoint(t *testing.T) {
	hash, err := model.HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	alice := &model.User{ID: 42, Username: "alice", PasswordHash: hash}

	t.Run("issues token", func(t *testing.T) {
		env := newTestEnv(t)
		env.Users.On("FetchUserByUsername", mock.Anything, "alice").Return(alice, nil).Once()

		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, postJSON("/auth/login", `{"username":"alice","password":"secret"}`))

		require.Equal(t, http.StatusOK, w.Code)
		raw, ok := decodeBody(t, w)["access_token"].(string)
		require.True(t, ok)

		claims, err := env.Server.Issuer.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "42", claims.Subject)
		assert.Equal(t, "alice", claims.Name)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.AccessTokenCookie, cookies[0].Name)
		assert.Equal(t, raw, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)

		assert.Contains(t, env.AuditLog.String(), "alice successfully authenticated")
		env.assertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		env := newTestEnv(t)
		env.Users.On("FetchUserByUsername", mock.Anything, "alice").Return(alice, nil).Once()

		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, postJSON("/auth/login", `{"username":"alice","password":"nope"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bad username or password", decodeBody(t, w)["message"])
		assert.Empty(t, w.Result().Cookies())
		assert.Contains(t, env.AuditLog.String(), "alice failed to authenticate")
	})

	t.Run("unknown user", func(t *testing.T) {
		env := newTestEnv(t)
		env.Users.On("FetchUserByUsername", mock.Anything, "bob").Return(nil, store.ErrUserNotFound).Once()

		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, postJSON("/auth/login", `{"username":"bob","password":"secret"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bad username or password", decodeBody(t, w)["message"])
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t)

		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, postJSON("/auth/login", `{"username":"alice"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.Users.AssertNotCalled(t, "FetchUserByUsername", mock.Anything, mock.Anything)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("requires token", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.Server.Router.ServeHTTP(w, httptest.NewRequest("GET", "/auth/logout", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("clears cookie", func(t *testing.T) {
		raw := env.token(t, 42, "alice")
		req := httptest.NewRequest("GET", "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: raw})
		w := httptest.NewRecorder()

		env.Server.Router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Successfully logged out", decodeBody(t, w)["message"])
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.AccessTokenCookie, cookies[0].Name)
		assert.Equal(t, "", cookies[0].Value)
		assert.True(t, cookies[0].MaxAge < 0)
	})

	t.Run("bearer header leaves cookies alone", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+env.token(t, 42, "alice"))
		w := httptest.NewRecorder()

		env.Server.Router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})
}
