package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/objectrekognition/rekognition-server/pkg/audit"
	"github.com/objectrekognition/rekognition-server/pkg/authn"
	"github.com/objectrekognition/rekognition-server/pkg/db"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/server"
	"github.com/objectrekognition/rekognition-server/pkg/server/endpoints"
	gormstore "github.com/objectrekognition/rekognition-server/pkg/server/store/gorm"
	"github.com/objectrekognition/rekognition-server/pkg/token"
)

func defaultBindAddress() string {
	if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
		return addr
	}
	return "0.0.0.0"
}

func defaultPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "5000"
}

func defaultPortInt() int {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			return p
		}
	}
	return 5000
}

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the rekognition application server",
	Long: `Run the rekognition application server.

The server requires DATABASE_URL and REKOG_TOKEN_SECRET. AWS credentials are
read from the default SDK chain (environment, shared profile or instance role).

By default, database migrations are run on startup. Use --no-migrate to skip.`,
	Run: func(cmd *cobra.Command, args []string) {
		host, _ := cmd.Flags().GetString("bind-address")
		port, _ := cmd.Flags().GetString("port")
		noMigrate, _ := cmd.Flags().GetBool("no-migrate")

		if err := runServer(host, port, noMigrate); err != nil {
			fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringP("port", "p", defaultPort(), "server listen port")
	serverCmd.Flags().StringP("bind-address", "b", defaultBindAddress(), "server bind address")
	serverCmd.Flags().Bool("no-migrate", false, "skip running database migrations on start")
}

func runServer(host, port string, noMigrate bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	if !noMigrate && !db.IsSQLite(cfg.DatabaseURL) {
		log.Info("running database migrations")
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	database, err := connectDB(cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	detector, err := newDetector(cfg, log, m)
	if err != nil {
		return err
	}

	results := newResultsStore(database, cfg, m)
	users := gormstore.NewUsersStore(database)
	issuer := token.NewIssuer([]byte(cfg.TokenSecret), cfg.TokenLifetime())

	auditLogger := audit.NewLogger(os.Stdout)
	if cfg.AuditDatabaseURL != "" {
		auditStore, err := audit.NewStore(cfg.AuditDatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer func() { _ = auditStore.Close() }()
		auditLogger.SetStore(auditStore)
	}

	directory := authn.NewDirectory(users, issuer,
		authn.WithBcryptCost(cfg.BcryptCost),
		authn.WithLogger(log),
		authn.WithMetrics(m),
	)

	s := server.NewServer(cfg, server.Dependencies{
		ResultsStore: results,
		UsersStore:   users,
		HealthStore:  gormstore.NewHealthStore(database),
		Workflow:     newWorkflow(detector, results, cfg, log, m),
		Directory:    directory,
		Issuer:       issuer,
		Metrics:      m,
		Audit:        auditLogger,
	}, log, host, port)
	endpoints.RegisterAll(s)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Running server at http://%s...", s.Addr())
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
