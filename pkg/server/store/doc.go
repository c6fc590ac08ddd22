// Package store provides storage abstractions for the rekognition server.
//
// This package defines interfaces for database operations, allowing the
// endpoints and the analysis workflow to be decoupled from the specific
// database implementation.
//
// # Available Stores
//
//   - ResultsStore: analysis results keyed by image content digest
//   - UsersStore: registered accounts
//   - HealthStore: database connectivity checks
//
// # Usage
//
//	results := gorm.NewResultsStore(db)
//	result, err := results.FetchResult(ctx, digest)
//	if err != nil {
//	    if errors.Is(err, store.ErrResultNotFound) {
//	        // Handle not found
//	    }
//	}
//
// Implementations live in the gorm and cache subpackages.
package store
