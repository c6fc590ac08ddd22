// Package config provides configuration management for the rekognition
// server.
//
// # Configuration Sources
//
// Configuration is resolved in this order, later sources winning:
//
//   - Built-in defaults
//   - $REKOG_CONFIG_PATH/rekognition.yml (default /etc/rekognition)
//   - Environment variables
//
// Every attribute remembers which source set it; `rekogctl configuration
// show` prints them.
//
// # Key Configuration Options
//
//   - DATABASE_URL: postgres:// or sqlite:// database
//   - AWS_REGION, REKOG_S3_BUCKET, REKOG_STAGING: detection provider
//   - REKOG_TOKEN_SECRET, REKOG_TOKEN_TTL: access tokens
//   - REKOG_LOG_LEVEL: logging verbosity
package config
