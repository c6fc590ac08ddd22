package endpoints

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/objectrekognition/rekognition-server/pkg/analysis"
	"github.com/objectrekognition/rekognition-server/pkg/audit"
	"github.com/objectrekognition/rekognition-server/pkg/authn"
	"github.com/objectrekognition/rekognition-server/pkg/config"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/server"
	"github.com/objectrekognition/rekognition-server/pkg/token"
)

type testEnv struct {
	Server   *server.Server
	Results  *MockResultsStore
	Users    *MockUsersStore
	Health   *MockHealthStore
	Detector *MockDetector
	AuditLog *bytes.Buffer
}

// newTestEnv builds a server backed by mocks with every endpoint registered.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		Results:  &MockResultsStore{},
		Users:    &MockUsersStore{},
		Health:   &MockHealthStore{},
		Detector: &MockDetector{},
		AuditLog: &bytes.Buffer{},
	}

	cfg := &config.Config{
		MaxUploadBytes: 1 << 20,
		CORSOrigins:    []string{"*"},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	issuer := token.NewIssuer([]byte("endpoints-test-secret"), time.Hour)

	s := server.NewServer(cfg, server.Dependencies{
		ResultsStore: env.Results,
		UsersStore:   env.Users,
		HealthStore:  env.Health,
		Workflow:     analysis.New(env.Detector, env.Results, analysis.WithLogger(log), analysis.WithMetrics(m)),
		Directory:    authn.NewDirectory(env.Users, issuer, authn.WithBcryptCost(bcrypt.MinCost), authn.WithLogger(log), authn.WithMetrics(m)),
		Issuer:       issuer,
		Metrics:      m,
		Audit:        audit.NewLogger(env.AuditLog),
	}, log, "127.0.0.1", "0")
	RegisterAll(s)

	env.Server = s
	return env
}

func (e *testEnv) token(t *testing.T, userID int64, username string) string {
	t.Helper()
	raw, err := e.Server.Issuer.Issue(userID, username)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) assertExpectations(t *testing.T) {
	e.Results.AssertExpectations(t)
	e.Users.AssertExpectations(t)
	e.Health.AssertExpectations(t)
	e.Detector.AssertExpectations(t)
}
