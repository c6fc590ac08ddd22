package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/objectrekognition/rekognition-server/pkg/analysis"
	"github.com/objectrekognition/rekognition-server/pkg/audit"
	"github.com/objectrekognition/rekognition-server/pkg/authn"
	"github.com/objectrekognition/rekognition-server/pkg/config"
	"github.com/objectrekognition/rekognition-server/pkg/db"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/server"
	"github.com/objectrekognition/rekognition-server/pkg/server/endpoints"
	"github.com/objectrekognition/rekognition-server/pkg/server/store/cache"
	gormstore "github.com/objectrekognition/rekognition-server/pkg/server/store/gorm"
	"github.com/objectrekognition/rekognition-server/pkg/token"
)

// TestContext holds all the resources needed for integration tests
type TestContext struct {
	DB          *gorm.DB
	Container   testcontainers.Container
	ServerURL   string
	DatabaseURL string
	HTTPClient  *http.Client
	Detector    *fakeDetector
	Cache       *cache.ResultsStore

	httpServer *httptest.Server
	auditStore *audit.Store
}

// NewTestContext starts PostgreSQL in a container, applies the migrations
// and runs the server in-process against it with a fake detector.
func NewTestContext(ctx context.Context) (*TestContext, error) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}
	migrationsDir := filepath.Join(projectRoot, "db", "migrations")

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rekognition_test"),
		tcpostgres.WithUsername("rekognition"),
		tcpostgres.WithPassword("rekognition"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if err := runMigrations(connStr, migrationsDir); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.Connect(db.Config{URL: connStr})
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, err
	}

	auditStore, err := audit.NewStore(connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	tc := &TestContext{
		DB:          database,
		Container:   pgContainer,
		DatabaseURL: connStr,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		Detector:    newFakeDetector(),
		auditStore:  auditStore,
	}

	if err := tc.startServer(); err != nil {
		tc.Close(ctx)
		return nil, err
	}
	return tc, nil
}

func (tc *TestContext) startServer() error {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if os.Getenv("INTEGRATION_DEBUG") != "" {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.DebugLevel)
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	cfg := &config.Config{
		MaxUploadBytes: 1 << 20,
		CORSOrigins:    []string{"*"},
	}

	tc.Cache = cache.NewResultsStore(gormstore.NewResultsStore(tc.DB), time.Minute, m)
	users := gormstore.NewUsersStore(tc.DB)
	issuer := token.NewIssuer([]byte("integration-test-secret"), time.Hour)

	auditLogger := audit.NewLogger(io.Discard)
	auditLogger.SetStore(tc.auditStore)

	workflow := analysis.New(tc.Detector, tc.Cache,
		analysis.WithConcurrency(2),
		analysis.WithLogger(logger),
		analysis.WithMetrics(m),
	)
	directory := authn.NewDirectory(users, issuer,
		authn.WithBcryptCost(bcrypt.MinCost),
		authn.WithLogger(logger),
		authn.WithMetrics(m),
	)

	s := server.NewServer(cfg, server.Dependencies{
		ResultsStore: tc.Cache,
		UsersStore:   users,
		HealthStore:  gormstore.NewHealthStore(tc.DB),
		Workflow:     workflow,
		Directory:    directory,
		Issuer:       issuer,
		Metrics:      m,
		Audit:        auditLogger,
	}, logger, "127.0.0.1", "0")
	endpoints.RegisterAll(s)

	tc.httpServer = httptest.NewServer(s.Handler())
	tc.ServerURL = tc.httpServer.URL
	return nil
}

// Reset empties every table and the result cache between scenarios.
func (tc *TestContext) Reset() error {
	tc.Cache.Flush()
	tc.Detector.Reset()
	return tc.DB.Exec(`TRUNCATE users, analysis_results, audit_messages RESTART IDENTITY`).Error
}

// Close cleans up all test resources
func (tc *TestContext) Close(ctx context.Context) {
	if tc.httpServer != nil {
		tc.httpServer.Close()
	}
	if tc.auditStore != nil {
		_ = tc.auditStore.Close()
	}
	if tc.DB != nil {
		if sqlDB, err := tc.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if tc.Container != nil {
		_ = tc.Container.Terminate(ctx)
	}
}

// findProjectRoot locates the project root directory
func findProjectRoot() (string, error) {
	paths := []string{
		"../..",
		"..",
		".",
	}

	for _, p := range paths {
		goMod := filepath.Join(p, "go.mod")
		if _, err := os.Stat(goMod); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", fmt.Errorf("project root not found (looking for go.mod)")
}

func runMigrations(dbURL, migrationsDir string) error {
	m, err := migrate.New("file://"+migrationsDir, dbURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	version, _, _ := m.Version()
	log.Printf("Migrated test database to version %d", version)
	return nil
}
