package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/objectrekognition/rekognition-server/pkg/model"
)

// ErrMissingURL is returned by Connect when no database URL is configured.
var ErrMissingURL = errors.New("database URL is required (set DATABASE_URL)")

// Config holds database connection configuration
type Config struct {
	// URL is a postgres:// URL or a sqlite:// / file: path
	URL string
	// LogLevel is a logrus level name; "debug" and "trace" enable SQL logging
	LogLevel string
}

// IsSQLite reports whether url selects the SQLite driver.
func IsSQLite(url string) bool {
	return strings.HasPrefix(url, "sqlite://") || strings.HasPrefix(url, "file:")
}

// Dialector returns the gorm dialector for url.
func Dialector(url string) (gorm.Dialector, error) {
	switch {
	case url == "":
		return nil, ErrMissingURL
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite://")), nil
	case strings.HasPrefix(url, "file:"):
		return sqlite.Open(url), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.New(postgres.Config{
			DSN:                  url,
			PreferSimpleProtocol: true, // disables implicit prepared statement usage
		}), nil
	default:
		return nil, fmt.Errorf("unsupported database URL scheme: %q", schemeOf(url))
	}
}

// Connect establishes a database connection.
func Connect(cfg Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logMode(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if IsSQLite(cfg.URL) {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// AutoMigrate creates the schema from the models. Postgres databases use the
// SQL migrations instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.AnalysisResult{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// logMode keeps gorm silent unless debug logging is requested.
func logMode(level string) logger.LogLevel {
	lvl, err := logrus.ParseLevel(level)
	if err == nil && lvl >= logrus.DebugLevel {
		return logger.Info
	}
	return logger.Silent
}

func schemeOf(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i]
	}
	return url
}
