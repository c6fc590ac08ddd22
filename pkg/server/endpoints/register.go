package endpoints

import (
	"github.com/objectrekognition/rekognition-server/pkg/server"
)

// RegisterAll registers all API endpoints on the server
func RegisterAll(srv *server.Server) {
	RegisterAuthEndpoints(srv)
	RegisterImagesEndpoints(srv)
	RegisterStatusEndpoints(srv)
	RegisterMetricsEndpoint(srv)

	// Must come last: it matches every remaining path.
	RegisterStaticFiles(srv)
}
