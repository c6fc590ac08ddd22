package endpoints

import (
	"net/http"
	"time"

	"github.com/objectrekognition/rekognition-server/pkg/identity"
	"github.com/objectrekognition/rekognition-server/pkg/server"
)

// WhoamiResponse represents the response from the /auth/whoami endpoint
type WhoamiResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterWhoamiEndpoint registers the /auth/whoami endpoint
func RegisterWhoamiEndpoint(s *server.Server) {
	s.Router.Handle("/auth/whoami", s.JWTMiddleware.Middleware(handleWhoami())).Methods("GET")
}

func handleWhoami() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Set by the JWT middleware
		id, ok := identity.Get(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Unable to determine identity")
			return
		}

		respondWithJSON(w, http.StatusOK, WhoamiResponse{
			ID:        id.UserID,
			Username:  id.Username,
			ExpiresAt: id.ExpiresAt.UTC(),
		})
	}
}
