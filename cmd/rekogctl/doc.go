// Command rekogctl runs the rekognition image analysis server.
//
// The server accepts image uploads, stages them in S3, detects labels with
// Amazon Rekognition and stores one result per distinct image. Clients
// authenticate with a username and password and receive a signed access
// token.
//
// # Quick Start
//
//	export DATABASE_URL=postgres://postgres@localhost/rekognition?sslmode=disable
//	export REKOG_TOKEN_SECRET=$(openssl rand -hex 32)
//
//	# Run database migrations
//	rekogctl db migrate
//
//	# Create an account
//	rekogctl user create alice
//
//	# Start the server
//	rekogctl server
//
// For local development a SQLite database can be used instead:
//
//	export DATABASE_URL=sqlite://rekognition.db
//
// # Environment Variables
//
//   - DATABASE_URL: postgres:// or sqlite:// database URL
//   - REKOG_TOKEN_SECRET: secret used to sign access tokens
//   - AWS_REGION, REKOG_S3_BUCKET: where images are staged
//   - REKOG_LOG_LEVEL: log level (debug, info, warn, error)
//   - PORT: server port (default: 5000)
//
// Run "rekogctl configuration show" for the full list.
package main
