package store

import (
	"context"
	"errors"
	"time"

	"github.com/objectrekognition/rekognition-server/pkg/model"
)

var (
	ErrResultNotFound = errors.New("analysis result not found")
	ErrResultExists   = errors.New("analysis result already exists")
)

// Result is a stored analysis result.
type Result struct {
	Digest    string         `json:"digest"`
	Filename  string         `json:"filename"`
	Labels    model.LabelSet `json:"labels"`
	CreatedAt time.Time      `json:"created_at"`
}

// ResultsStore abstracts analysis result storage operations
type ResultsStore interface {
	// ResultExists reports whether a result is stored for the digest
	ResultExists(ctx context.Context, digest string) (bool, error)

	// FetchResult returns the result stored for the digest
	FetchResult(ctx context.Context, digest string) (*Result, error)

	// CreateResult stores a new result. It returns ErrResultExists if a
	// result is already stored for the same digest.
	CreateResult(ctx context.Context, result Result) error

	// ListResults returns stored results, newest first
	ListResults(ctx context.Context, limit, offset int) ([]Result, error)
}
