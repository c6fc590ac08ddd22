package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AnalysisResult corresponds to a row in the "analysis_results" table.
//
// Rows are keyed by the SHA-256 digest of the image bytes. Filename is the
// name the image was first uploaded under and is kept as metadata only.
type AnalysisResult struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Digest    string    `gorm:"uniqueIndex;not null" json:"digest"`
	Filename  string    `gorm:"not null" json:"filename"`
	Labels    LabelSet  `gorm:"type:text;not null" json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}

// ContentDigest returns the hex encoded SHA-256 digest of data.
func ContentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
