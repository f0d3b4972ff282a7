// Package api is a local emulator that speaks the hastebin, mystb.in and
// paste.ee wire protocols from one chi router.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"

	"superpaste/cfg"
	"superpaste/svc/cache"
	"superpaste/svc/lim"
	"superpaste/svc/util"
)

type Server struct {
	router     *chi.Mux
	store      *cache.LRU
	lim        *lim.Limiter
	cfg        cfg.EmuCfg
	mw         *Mw
	httpServer *http.Server
}

// Option adjusts a Server.
type Option func(*Server)

// WithToken adds an accepted API token; it may be given more than once.
// paste.ee requests must then authenticate with one of them and only see
// their own pastes. Hastebin requests that send a bearer token must send a
// known one.
func WithToken(token string) Option {
	return func(s *Server) {
		if token != "" {
			s.mw.tokens = append(s.mw.tokens, token)
		}
	}
}

// NewServer builds the emulator. l may be nil to disable rate limiting.
func NewServer(c cfg.EmuCfg, store *cache.LRU, l *lim.Limiter, opts ...Option) *Server {
	s := &Server{
		store: store,
		lim:   l,
		cfg:   c,
		mw:    NewMw(c),
	}
	for _, opt := range opts {
		opt(s)
	}
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(s.mw.Recoverer)
		r.Get("/health", s.Health)
		r.Handle("/metrics", promhttp.Handler())
	})
	r.Group(func(r chi.Router) {
		r.Use(s.mw.Recoverer)
		r.Use(s.mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", util.RedactSecret(req.URL.String())).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(s.mw.Count)
		r.Use(s.mw.ContextTimeout)
		if l != nil {
			r.Use(l.Middleware)
		}
		hdl := &Hdl{store: s.store}
		r.With(s.mw.OptionalBearer).Post("/documents", hdl.CreateDocument)
		r.Get("/documents/{key}", hdl.GetDocument)
		r.Get("/raw/{key}", hdl.GetRaw)

		r.Post("/api/paste", hdl.CreateMystbin)
		r.Get("/api/paste/{key}", hdl.GetMystbin)

		r.Group(func(r chi.Router) {
			r.Use(s.mw.PasteEEAuth)
			r.Post("/v1/pastes", hdl.CreatePasteEE)
			r.Get("/v1/pastes/{key}", hdl.GetPasteEE)
			r.Delete("/v1/pastes/{key}", hdl.DeletePasteEE)
		})
	})
	s.router = r
	s.httpServer = &http.Server{
		Addr:           ":" + c.Port,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 256 * 1024,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Count reports how many requests matched the route "METHOD /pattern".
func (s *Server) Count(route string) int {
	return s.mw.count(route)
}

func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting emulator")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("emulator failed to start")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
