package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/jaminalder/minesweeper/internal/app"
	"github.com/jaminalder/minesweeper/internal/logger"
)

// Options tune the HTTP layer. The zero value is usable.
type Options struct {
	Log         logrus.FieldLogger
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Heartbeat   time.Duration
	// Defaults is the board used when a create request leaves fields empty.
	Defaults app.Settings
}

// NewServer wires routes and returns an http.Handler.
func NewServer(s *app.Service, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.Defaults.Width == 0 {
		opts.Defaults = app.Settings{Width: 9, Height: 9, Mines: 10}
	}
	h := &handlers{
		svc:       s,
		tpl:       loadTemplates(),
		log:       opts.Log,
		defaults:  opts.Defaults,
		heartbeat: opts.Heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(opts.CORSOrigins),
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Log))

	r.Get("/", h.index)
	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/open", h.open)
		r.Post("/flag", h.flag)
		r.Post("/discard", h.discard)
		r.Get("/events", h.events)
		r.Get("/ws", h.ws)
	})
	r.Route("/api/games", func(r chi.Router) {
		if len(opts.CORSOrigins) > 0 {
			r.Use(cors.New(cors.Options{
				AllowedOrigins:   opts.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
				AllowedHeaders:   []string{"Content-Type", playerHeader},
				AllowCredentials: true,
			}).Handler)
		}
		r.Post("/", h.apiCreate)
		r.Get("/{id}", h.apiGet)
		r.Post("/{id}/open", h.apiOpen)
		r.Post("/{id}/flag", h.apiFlag)
		r.Delete("/{id}", h.apiDiscard)
	})
	return r
}

// requestLogger logs one line per request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}

// checkOrigin accepts same-host requests and any configured CORS origin.
func checkOrigin(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] || allowed[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
