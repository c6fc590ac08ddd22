package endpoints

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHandleStatus(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		health := &MockHealthStore{}
		health.On("CheckConnectivity", mock.Anything).Return(nil).Once()

		w := httptest.NewRecorder()
		handleStatus(health)(w, httptest.NewRequest("GET", "/status", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		assert.JSONEq(t, `{"status":"ok","database":"ok"}`, w.Body.String())
		health.AssertExpectations(t)
	})

	t.Run("database unreachable", func(t *testing.T) {
		health := &MockHealthStore{}
		health.On("CheckConnectivity", mock.Anything).Return(errors.New("connection refused")).Once()

		w := httptest.NewRecorder()
		handleStatus(health)(w, httptest.NewRequest("GET", "/status", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"error","database":"unreachable"}`, w.Body.String())
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.Server.Metrics.IncFileResult("uploaded and analyzed")

	w := httptest.NewRecorder()
	env.Server.Router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "rekognition_"), "expected rekognition metrics in exposition")
}
