// Package server exposes the corpus gateway and identity binder over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/config"
	"annotatrix/internal/metrics"
	"annotatrix/internal/session"
)

// Options holds the server's collaborators.
type Options struct {
	Gateway   *annotatrix.CorpusGateway
	Binder    *annotatrix.IdentityBinder
	Sessions  *session.Codec
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	StaticDir string
	Upload    config.UploadConfig
}

// Server routes browser requests to the core services.
type Server struct {
	gateway   *annotatrix.CorpusGateway
	binder    *annotatrix.IdentityBinder
	sessions  *session.Codec
	metrics   *metrics.Metrics
	logger    *slog.Logger
	staticDir string
	maxUpload int64
	uploads   *RateLimiter
	router    *mux.Router
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		gateway:   opts.Gateway,
		binder:    opts.Binder,
		sessions:  opts.Sessions,
		metrics:   m,
		logger:    logger,
		staticDir: opts.StaticDir,
		maxUpload: opts.Upload.MaxBytes,
		uploads:   NewRateLimiter(opts.Upload.RatePerMinute, opts.Upload.Burst),
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(func(next http.Handler) http.Handler {
		return s.metrics.InstrumentHandler(next, routeTemplate)
	})

	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/annotatrix/save", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/load/{treebank_id}", s.handleLoad).Methods(http.MethodGet)
	r.HandleFunc("/load/{treebank_id}/", s.handleLoad).Methods(http.MethodGet)
	r.HandleFunc("/load/{treebank_id}/{num}", s.handleLoad).Methods(http.MethodGet)
	r.HandleFunc("/annotatrix/download", s.handleDownload).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/annotatrix/upload", s.handleUpload).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/annotatrix/running", s.handleRunning).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/annotatrix/help.html", s.page("help.html")).Methods(http.MethodGet)
	r.HandleFunc("/annotatrix/settings.html", s.page("settings.html")).Methods(http.MethodGet)
	r.HandleFunc("/annotatrix/", s.handleNewTreebank).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/annotatrix/{treebank_id}/login", s.handleLogin).Methods(http.MethodGet)
	r.HandleFunc("/annotatrix/{treebank_id}/logout", s.handleLogout).Methods(http.MethodGet)
	r.HandleFunc("/annotatrix/{treebank_id}", s.handleCorpusPage).Methods(http.MethodGet)
	r.HandleFunc("/github-callback", s.handleCallback).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/css/{file}", s.asset("css")).Methods(http.MethodGet)
	r.HandleFunc("/js/{file}", s.asset("js")).Methods(http.MethodGet)
	r.HandleFunc("/fonts/{file}", s.asset("fonts")).Methods(http.MethodGet)
	r.HandleFunc("/", s.page("welcome_page.html")).Methods(http.MethodGet, http.MethodPost)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return Chain(s.router, Recover(s.logger), LogWith(s.logger))
}

// routeTemplate labels a request by its matched route so metrics do not
// carry treebank ids.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}

// saveSession persists sess, logging rather than failing the request.
func (s *Server) saveSession(w http.ResponseWriter, sess *annotatrix.Session) {
	if err := s.sessions.Save(w, sess); err != nil {
		s.logger.Error("saving session failed", "error", err)
	}
}
