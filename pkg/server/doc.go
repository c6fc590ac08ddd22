// Package server provides the HTTP server for the rekognition API.
//
// The server uses gorilla/mux for routing and gorilla/handlers for access
// logging, CORS and panic recovery. Endpoints are registered by the
// endpoints subpackage:
//
//	srv := server.NewServer(cfg, deps, log, "0.0.0.0", "5000")
//	endpoints.RegisterAll(srv)
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Components
//
// Dependencies holds the collaborators endpoints share:
//
//   - ResultsStore, UsersStore, HealthStore: persistence
//   - Workflow: upload-and-analyze orchestration
//   - Directory: registration and password login
//   - Issuer: access token signing and validation
//   - Metrics, Audit: operational visibility
//
// # Endpoints
//
//   - /auth/register, /auth/login, /auth/logout, /auth/whoami
//   - /images/upload-and-analyze, /images/find-object
//   - /status, /metrics
package server
