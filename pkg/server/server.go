package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/objectrekognition/rekognition-server/pkg/analysis"
	"github.com/objectrekognition/rekognition-server/pkg/audit"
	"github.com/objectrekognition/rekognition-server/pkg/authn"
	"github.com/objectrekognition/rekognition-server/pkg/config"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/server/middleware"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
	"github.com/objectrekognition/rekognition-server/pkg/token"
)

// Dependencies are the collaborators shared by all endpoints.
type Dependencies struct {
	ResultsStore store.ResultsStore
	UsersStore   store.UsersStore
	HealthStore  store.HealthStore
	Workflow     *analysis.Workflow
	Directory    *authn.Directory
	Issuer       *token.Issuer
	Metrics      *metrics.Metrics
	Audit        *audit.Logger
}

// DefaultWriteTimeout bounds writing a response. Handlers that do slow work
// before replying extend their own deadline.
const DefaultWriteTimeout = 60 * time.Second

type Server struct {
	Dependencies

	Config        *config.Config
	Log           *logrus.Logger
	Router        *mux.Router
	JWTMiddleware *middleware.JWTAuthenticator
	srv           *http.Server
}

func NewServer(
	cfg *config.Config,
	deps Dependencies,
	log *logrus.Logger,
	host string,
	port string,
) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	router := mux.NewRouter().UseEncodedPath()

	jwt := middleware.NewJWTAuthenticator(deps.Issuer)
	jwt.IsTrustedProxy = cfg.IsTrustedProxy
	jwt.Log = log

	s := &Server{
		Dependencies:  deps,
		Config:        cfg,
		Log:           log,
		Router:        router,
		JWTMiddleware: jwt,
	}
	s.srv = &http.Server{
		Handler:      s.Handler(),
		Addr:         net.JoinHostPort(host, port),
		WriteTimeout: DefaultWriteTimeout,
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler wraps the router with request ids, CORS, panic recovery and
// access logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router
	h = middleware.RequestID(h)

	origins := s.Config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", middleware.RequestIDHeader}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
		handlers.AllowCredentials(),
	)(h)

	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.Log),
		handlers.PrintRecoveryStack(s.Log.IsLevelEnabled(logrus.DebugLevel)),
	)(h)

	return handlers.LoggingHandler(s.Log.WriterLevel(logrus.InfoLevel), h)
}

// Protected returns a subrouter for prefix whose routes require a valid
// access token.
func (s *Server) Protected(prefix string) *mux.Router {
	r := s.Router.PathPrefix(prefix).Subrouter()
	r.Use(s.JWTMiddleware.Middleware)
	return r
}

func (s *Server) Addr() string {
	return s.srv.Addr
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
