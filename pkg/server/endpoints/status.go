package endpoints

import (
	"context"
	"net/http"
	"time"

	"github.com/objectrekognition/rekognition-server/pkg/server"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

// StatusResponse represents the response from /status
type StatusResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// RegisterStatusEndpoints registers the health endpoint
func RegisterStatusEndpoints(s *server.Server) {
	s.Router.HandleFunc("/status", handleStatus(s.HealthStore)).Methods("GET")
}

func handleStatus(healthStore store.HealthStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := healthStore.CheckConnectivity(ctx); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, StatusResponse{
				Status:   "error",
				Database: "unreachable",
			})
			return
		}

		respondWithJSON(w, http.StatusOK, StatusResponse{
			Status:   "ok",
			Database: "ok",
		})
	}
}
