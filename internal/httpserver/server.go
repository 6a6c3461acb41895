package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campaigns/internal/observability"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router with /healthz, /readyz and /metrics mounted.
func New(readyTimeout time.Duration, checks ...ReadyzCheck) *Server {
	m := mux.NewRouter()
	m.HandleFunc("/healthz", Healthz()).Methods(http.MethodGet)
	m.HandleFunc("/readyz", Readyz(readyTimeout, checks...)).Methods(http.MethodGet)
	m.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	// Runs after routing so labels use the path template.
	m.Use(Metrics(observability.APIRequests))
	return &Server{Mux: m}
}

// Handler wraps the router with the standard middleware chain.
func (s *Server) Handler() http.Handler {
	return Recover(Logging(s.Mux))
}
