// Package model defines the database models for the rekognition server.
//
// # Core Models
//
//   - User: a registered account with a bcrypt password hash
//   - AnalysisResult: the labels detected for one uploaded image
//   - Label, Instance, BoundingBox: the label set value types
//
// # Database Schema
//
//   - users: one row per username
//   - analysis_results: one row per distinct image content digest
//
// Label sets are persisted as JSON text in analysis_results.labels. LabelSet
// implements driver.Valuer and sql.Scanner so GORM reads and writes the
// column directly.
package model
