package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientIDHeader identifies the voting client. It is required for voting and optional for listing.
const ClientIDHeader = "X-Client-Id"

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows which routes it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// QueueService is the subset of [tasks.Jukebox] the endpoints call.
type QueueService interface {
	Queue(ctx context.Context, clientID string) ([]models.RankedSong, error)
	AdmitLink(ctx context.Context, link string) (bool, error)
	Vote(ctx context.Context, songID, clientID string, value int) (bool, error)
}

// Options configures a [Server]. Zero values select defaults.
type Options struct {
	Host               string
	Port               int
	CORSOrigins        []string
	RateLimitPerMinute int
	Logger             *log.Logger
}

// Server serves the queue endpoints over HTTP.
type Server struct {
	queue    QueueService
	opts     Options
	logger   *log.Logger
	validate *validator.Validate
	router   chi.Router
}

// New builds a Server and its routes.
func New(queue QueueService, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 120
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		queue:    queue,
		opts:     opts,
		logger:   opts.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.validate.RegisterTagNameFunc(jsonFieldName)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(s.opts.CORSOrigins))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(s.opts.RateLimitPerMinute))

		r.Get("/queue", s.handleListQueue)
		r.Post("/queue", s.handleAdmit)
		r.Post("/vote", s.handleVote)
	})

	return r
}

// ServeHTTP implements [http.Handler] for the entire router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr is the listen address built from the host and port options.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// HTTPServer wraps the router in an [http.Server] with conservative timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) String() string {
	return fmt.Sprintf("jukebox api on %s", s.Addr())
}
