package endpoints

import (
	"github.com/objectrekognition/rekognition-server/pkg/server"
)

// RegisterMetricsEndpoint exposes the Prometheus registry at /metrics.
func RegisterMetricsEndpoint(s *server.Server) {
	if s.Metrics == nil {
		return
	}
	s.Router.Handle("/metrics", s.Metrics.Handler()).Methods("GET")
}
