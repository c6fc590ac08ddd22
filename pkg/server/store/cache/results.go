// Package cache provides an in-memory read-through cache in front of a
// store.ResultsStore.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

var _ store.ResultsStore = (*ResultsStore)(nil)

// ResultsStore caches positive lookups of an underlying store. Results are
// immutable once stored, so only presence is cached and never absence.
//
// An entry is either a full row read back from the store or a nil marker
// recording presence only. A marker answers ResultExists but FetchResult
// still reads through to load the row.
type ResultsStore struct {
	next    store.ResultsStore
	cache   *gocache.Cache
	metrics *metrics.Metrics
}

// NewResultsStore wraps next with a cache holding entries for ttl.
func NewResultsStore(next store.ResultsStore, ttl time.Duration, m *metrics.Metrics) *ResultsStore {
	return &ResultsStore{
		next:    next,
		cache:   gocache.New(ttl, 2*ttl),
		metrics: m,
	}
}

func (s *ResultsStore) ResultExists(ctx context.Context, digest string) (bool, error) {
	if _, found := s.cache.Get(digest); found {
		s.metrics.IncCacheLookup(true)
		return true, nil
	}
	s.metrics.IncCacheLookup(false)

	exists, err := s.next.ResultExists(ctx, digest)
	if err != nil {
		return false, err
	}
	if exists {
		s.cache.SetDefault(digest, (*store.Result)(nil))
	}
	return exists, nil
}

func (s *ResultsStore) FetchResult(ctx context.Context, digest string) (*store.Result, error) {
	cached, found := s.cache.Get(digest)
	if found {
		if result, ok := cached.(*store.Result); ok && result != nil {
			s.metrics.IncCacheLookup(true)
			copied := *result
			return &copied, nil
		}
	} else {
		s.metrics.IncCacheLookup(false)
	}

	result, err := s.next.FetchResult(ctx, digest)
	if err != nil {
		return nil, err
	}
	copied := *result
	s.cache.SetDefault(digest, &copied)
	return result, nil
}

func (s *ResultsStore) CreateResult(ctx context.Context, result store.Result) error {
	if err := s.next.CreateResult(ctx, result); err != nil {
		return err
	}
	// The store assigns CreatedAt, so only presence is known here.
	s.cache.SetDefault(result.Digest, (*store.Result)(nil))
	return nil
}

func (s *ResultsStore) ListResults(ctx context.Context, limit, offset int) ([]store.Result, error) {
	return s.next.ListResults(ctx, limit, offset)
}

// Flush drops every cached entry.
func (s *ResultsStore) Flush() {
	s.cache.Flush()
}
