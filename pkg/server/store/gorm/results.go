package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

// Ensure ResultsStore implements store.ResultsStore
var _ store.ResultsStore = (*ResultsStore)(nil)

// ResultsStore implements store.ResultsStore using GORM
type ResultsStore struct {
	db *gorm.DB
}

// NewResultsStore creates a new ResultsStore
func NewResultsStore(db *gorm.DB) *ResultsStore {
	return &ResultsStore{db: db}
}

// ResultExists reports whether a result row exists for the digest.
func (s *ResultsStore) ResultExists(ctx context.Context, digest string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.AnalysisResult{}).
		Where("digest = ?", digest).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FetchResult retrieves the result stored for the digest.
func (s *ResultsStore) FetchResult(ctx context.Context, digest string) (*store.Result, error) {
	var row model.AnalysisResult
	tx := s.db.WithContext(ctx).Where("digest = ?", digest).First(&row)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrResultNotFound
		}
		return nil, tx.Error
	}

	result := toResult(row)
	return &result, nil
}

// CreateResult inserts a result. A concurrent insert of the same digest
// loses the race and reports store.ErrResultExists.
func (s *ResultsStore) CreateResult(ctx context.Context, result store.Result) error {
	labels := result.Labels
	if labels == nil {
		labels = model.LabelSet{}
	}
	row := model.AnalysisResult{
		Digest:   result.Digest,
		Filename: result.Filename,
		Labels:   labels,
	}

	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "digest"}}, DoNothing: true}).
		Create(&row)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return store.ErrResultExists
		}
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return store.ErrResultExists
	}
	return nil
}

// ListResults returns results newest first. A non-positive limit returns
// every row.
func (s *ResultsStore) ListResults(ctx context.Context, limit, offset int) ([]store.Result, error) {
	var rows []model.AnalysisResult
	query := s.db.WithContext(ctx).Order("created_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]store.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, toResult(row))
	}
	return results, nil
}

func toResult(row model.AnalysisResult) store.Result {
	labels := row.Labels
	if labels == nil {
		labels = model.LabelSet{}
	}
	return store.Result{
		Digest:    row.Digest,
		Filename:  row.Filename,
		Labels:    labels,
		CreatedAt: row.CreatedAt,
	}
}
