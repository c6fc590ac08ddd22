package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/objectrekognition/rekognition-server/pkg/server"
	"github.com/objectrekognition/rekognition-server/pkg/server/middleware"
)

// maxJSONBody caps credential and find-object request bodies.
const maxJSONBody = 1 << 20

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"message": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
}

func clientIP(s *server.Server, r *http.Request) string {
	ip := middleware.ClientIP(r, s.Config.IsTrustedProxy)
	if ip == nil {
		return ""
	}
	return ip.String()
}
