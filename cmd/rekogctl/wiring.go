package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/objectrekognition/rekognition-server/pkg/analysis"
	"github.com/objectrekognition/rekognition-server/pkg/config"
	"github.com/objectrekognition/rekognition-server/pkg/db"
	"github.com/objectrekognition/rekognition-server/pkg/detection"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
	"github.com/objectrekognition/rekognition-server/pkg/server/store/cache"
	gormstore "github.com/objectrekognition/rekognition-server/pkg/server/store/gorm"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connectDB(cfg *config.Config) (*gorm.DB, error) {
	return db.Connect(db.Config{URL: cfg.DatabaseURL, LogLevel: cfg.LogLevel})
}

// newDetector builds the Rekognition detector from one shared AWS session.
func newDetector(cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) (*detection.RekognitionDetector, error) {
	sess, err := detection.NewSession(cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return detection.NewRekognitionDetector(sess, detection.Config{
		Bucket:        cfg.S3Bucket,
		Prefix:        cfg.S3Prefix,
		Inline:        cfg.InlineStaging(),
		MinConfidence: cfg.MinConfidence,
		MaxLabels:     int64(cfg.MaxLabels),
		Timeout:       cfg.DetectionTimeoutDuration(),
	}, detection.WithLogger(log), detection.WithMetrics(m)), nil
}

// newResultsStore returns the gorm results store, wrapped in the in-memory
// cache unless the cache TTL is zero.
func newResultsStore(database *gorm.DB, cfg *config.Config, m *metrics.Metrics) store.ResultsStore {
	var results store.ResultsStore = gormstore.NewResultsStore(database)
	if ttl := cfg.ResultCacheDuration(); ttl > 0 {
		results = cache.NewResultsStore(results, ttl, m)
	}
	return results
}

func newWorkflow(detector detection.Detector, results store.ResultsStore, cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) *analysis.Workflow {
	return analysis.New(detector, results,
		analysis.WithConcurrency(cfg.AnalysisConcurrency),
		analysis.WithLogger(log),
		analysis.WithMetrics(m),
	)
}
