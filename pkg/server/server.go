package server

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adfharrison1/go-indexdb/pkg/api"
	"github.com/adfharrison1/go-indexdb/pkg/documents"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

// Server holds references to the document service, router, etc.
type Server struct {
	router   *mux.Router
	service  *documents.Service
	duration *prometheus.HistogramVec
}

// NewServer creates a new instance of Server. Request metrics are registered
// on reg, which is also served at /metrics.
func NewServer(service *documents.Service, reg *prometheus.Registry) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		service: service,
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "indexdb",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status code",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}

	// Define HTTP routes
	api.NewHandler(service).RegisterRoutes(s.router)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods("GET")

	s.router.Use(requestIDMiddleware)
	s.router.Use(s.requestLoggerMiddleware)

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("WARN: No route found for %s %s", r.Method, r.URL.Path)
		api.WriteJSONError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})

	return s
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses streaming through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestIDMiddleware echoes the caller's request id or assigns a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// requestLoggerMiddleware logs the method, URL path, and duration for each
// request and records it by route template.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.duration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
		log.Printf("INFO: Request %s %s [%s] -> %d took %s", r.Method, r.URL.Path, r.Header.Get(RequestIDHeader), rec.status, elapsed)
	})
}

// Router exposes the internal mux.Router.
func (s *Server) Router() http.Handler {
	return s.router
}

// Service returns the document service behind the routes.
func (s *Server) Service() *documents.Service {
	return s.service
}
