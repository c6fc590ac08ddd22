// Package analysis implements the upload-and-analyze workflow: each uploaded
// image is analyzed at most once, keyed by the digest of its content.
package analysis

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/objectrekognition/rekognition-server/pkg/detection"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

// Status describes what happened to one uploaded file.
type Status string

const (
	StatusNoSelectedFile  Status = "no selected file"
	StatusAlreadyAnalyzed Status = "already analyzed"
	StatusAnalyzed        Status = "uploaded and analyzed"
	StatusError           Status = "error processing file"
)

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// FileResult is the outcome for one Upload.
type FileResult struct {
	Filename string         `json:"filename"`
	Status   Status         `json:"status"`
	Labels   model.LabelSet `json:"labels,omitempty"`
	Error    string         `json:"error,omitempty"`
	Warning  string         `json:"warning,omitempty"`
}

// Workflow analyzes uploads with a Detector and records the labels in a
// ResultsStore.
type Workflow struct {
	detector    detection.Detector
	results     store.ResultsStore
	concurrency int
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithConcurrency bounds how many files of one batch are processed at once.
// Values below 1 mean sequential processing.
func WithConcurrency(n int) Option {
	return func(w *Workflow) {
		w.concurrency = n
	}
}

// WithMetrics counts file results by status on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(w *Workflow) {
		w.log = log
	}
}

// New creates a Workflow.
func New(detector detection.Detector, results store.ResultsStore, opts ...Option) *Workflow {
	w := &Workflow{
		detector:    detector,
		results:     results,
		concurrency: 1,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	return w
}

// Process returns one FileResult per upload, in input order. A failure on
// one file never affects the others.
func (w *Workflow) Process(ctx context.Context, uploads []Upload) []FileResult {
	results := make([]FileResult, len(uploads))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, upload := range uploads {
		i, upload := i, upload
		g.Go(func() error {
			results[i] = w.processFile(ctx, upload)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (w *Workflow) processFile(ctx context.Context, upload Upload) FileResult {
	result := w.analyze(ctx, upload)
	w.metrics.IncFileResult(string(result.Status))
	return result
}

func (w *Workflow) analyze(ctx context.Context, upload Upload) FileResult {
	if upload.Filename == "" {
		return FileResult{Status: StatusNoSelectedFile}
	}

	digest := model.ContentDigest(upload.Data)
	log := w.log.WithFields(logrus.Fields{
		"filename": upload.Filename,
		"digest":   digest,
	})

	if stored, ok := w.lookup(ctx, log, digest); ok {
		log.Debug("image already analyzed")
		return FileResult{
			Filename: upload.Filename,
			Status:   StatusAlreadyAnalyzed,
			Labels:   stored.Labels,
		}
	}

	labels, err := w.detector.Analyze(ctx, detection.StagingKey(digest, upload.Filename), upload.Data)
	if err != nil {
		log.WithError(err).Warn("image analysis failed")
		return FileResult{
			Filename: upload.Filename,
			Status:   StatusError,
			Error:    err.Error(),
		}
	}
	if labels == nil {
		labels = model.LabelSet{}
	}

	result := FileResult{
		Filename: upload.Filename,
		Status:   StatusAnalyzed,
		Labels:   labels,
	}

	err = w.results.CreateResult(ctx, store.Result{
		Digest:   digest,
		Filename: upload.Filename,
		Labels:   labels,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrResultExists):
		log.Debug("result stored concurrently by another request")
	default:
		log.WithError(err).Error("failed to store analysis result")
		result.Warning = "result not cached: " + err.Error()
	}

	return result
}

// lookup treats store read failures as a miss.
func (w *Workflow) lookup(ctx context.Context, log logrus.FieldLogger, digest string) (*store.Result, bool) {
	exists, err := w.results.ResultExists(ctx, digest)
	if err != nil {
		log.WithError(err).Warn("failed to check for stored result")
		return nil, false
	}
	if !exists {
		return nil, false
	}

	stored, err := w.results.FetchResult(ctx, digest)
	if err != nil {
		if !errors.Is(err, store.ErrResultNotFound) {
			log.WithError(err).Warn("failed to fetch stored result")
		}
		return nil, false
	}
	return stored, true
}
