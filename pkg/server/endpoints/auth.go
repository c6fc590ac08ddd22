package endpoints

import (
	"errors"
	"net/http"

	"github.com/objectrekognition/rekognition-server/pkg/audit"
	"github.com/objectrekognition/rekognition-server/pkg/authn"
	"github.com/objectrekognition/rekognition-server/pkg/server"
	"github.com/objectrekognition/rekognition-server/pkg/server/middleware"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

// RegisterAuthEndpoints registers registration, login, logout and whoami.
func RegisterAuthEndpoints(s *server.Server) {
	s.Router.HandleFunc("/auth/register", handleRegister(s)).Methods("POST")
	s.Router.HandleFunc("/auth/login", handleLogin(s)).Methods("POST")

	s.Router.Handle("/auth/logout", s.JWTMiddleware.Middleware(handleLogout())).Methods("GET")
	RegisterWhoamiEndpoint(s)
}

func handleRegister(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Request body must be a JSON object with username and password")
			return
		}

		_, err := s.Directory.Register(r.Context(), req.Username, req.Password)

		event := audit.RegisterEvent{Username: req.Username, ClientIP: clientIP(s, r), Success: err == nil}
		if err != nil {
			event.ErrorMessage = err.Error()
		}
		s.Audit.Log(event)

		switch {
		case err == nil:
			respondWithJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully"})
		case errors.Is(err, authn.ErrMissingCredentials), errors.Is(err, authn.ErrInvalidUsername),
			errors.Is(err, authn.ErrPasswordTooLong):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrUsernameTaken):
			respondWithError(w, http.StatusConflict, "User already exists")
		default:
			middleware.Logger(s.Log, r).WithError(err).Error("registration failed")
			respondWithError(w, http.StatusInternalServerError, "Registration failed")
		}
	}
}

func handleLogin(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Request body must be a JSON object with username and password")
			return
		}

		raw, user, err := s.Directory.Authenticate(r.Context(), req.Username, req.Password)

		event := audit.LoginEvent{Username: req.Username, ClientIP: clientIP(s, r), Success: err == nil}
		if err != nil {
			event.ErrorMessage = err.Error()
		} else {
			event.UserID = user.ID
		}
		s.Audit.Log(event)

		switch {
		case err == nil:
		case errors.Is(err, authn.ErrMissingCredentials):
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, authn.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "Bad username or password")
			return
		default:
			middleware.Logger(s.Log, r).WithError(err).Error("login failed")
			respondWithError(w, http.StatusInternalServerError, "Login failed")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AccessTokenCookie,
			Value:    raw,
			Path:     "/",
			MaxAge:   int(s.Issuer.TTL().Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		respondWithJSON(w, http.StatusOK, LoginResponse{AccessToken: raw})
	}
}

func handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(middleware.AccessTokenCookie); err == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     middleware.AccessTokenCookie,
				Value:    "",
				Path:     "/",
				MaxAge:   -1,
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
	}
}
