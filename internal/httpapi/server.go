// Package httpapi exposes the direct-message router over HTTP.
package httpapi

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"hackhub/internal/attachment"
	"hackhub/internal/authutil"
	"hackhub/internal/dm"
)

// Metrics captures lightweight in-process counters for the HTTP surface.
type Metrics struct {
	Requests     atomic.Uint64
	HealthChecks atomic.Uint64
	Uploads      atomic.Uint64
	ClientErrors atomic.Uint64
	ServerErrors atomic.Uint64
}

type Options struct {
	AllowedOrigins []string
	// MaxUploadBytes caps a multipart request body.
	MaxUploadBytes int64
}

// Server bundles handlers, middleware and metrics around one dm.Service.
type Server struct {
	svc       *dm.Service
	signer    *authutil.Signer
	log       zerolog.Logger
	metrics   *Metrics
	origins   []string
	maxUpload int64
}

func New(svc *dm.Service, signer *authutil.Signer, log zerolog.Logger, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 4*attachment.DefaultRemoteMaxBytes + attachment.MB
	}
	return &Server{
		svc:       svc,
		signer:    signer,
		log:       log.With().Str("component", "http").Logger(),
		metrics:   &Metrics{},
		origins:   opts.AllowedOrigins,
		maxUpload: opts.MaxUploadBytes,
	}
}

// Router wires up chi routes, middleware and handlers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.accessLog())

	r.Get("/healthz", s.healthHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated())

		r.Get("/conversations", s.partnersHandler())
		r.Route("/conversations/{peer}", func(r chi.Router) {
			r.Get("/messages", s.messagesHandler())
			r.Post("/messages", s.sendTextHandler())
			r.Post("/files", s.sendFilesHandler())
			r.Post("/read", s.markReadHandler())
		})
		r.Patch("/messages/{id}", s.editHandler())
		r.Delete("/messages/{id}", s.deleteMessageHandler())
		r.Delete("/attachments/{id}", s.deleteAttachmentHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.operatorOnly())
			r.Get("/debug/metrics", s.metricsHandler())
			r.Route("/storage", func(r chi.Router) {
				r.Get("/usage", s.usageHandler())
				r.Post("/cleanup", s.maintenanceHandler("cleanup", s.svc.Cleanup))
				r.Post("/cleanup/aggressive", s.maintenanceHandler("aggressive", s.svc.AggressiveCleanup))
				r.Post("/strip", s.maintenanceHandler("strip", s.svc.StripAllAttachments))
				r.Post("/probe/invalidate", s.invalidateHandler())
			})
		})
	})
	return r
}
