// Package db holds the SQL migrations of the rekognition server.
package db

import "embed"

// Migrations contains the golang-migrate migration files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
