// Package api exposes the published content cache over HTTP.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

type routerOptions struct {
	logger      *slog.Logger
	previewAuth *jwtauth.JWTAuth
}

// RouterOption configures NewRouter.
type RouterOption func(*routerOptions)

// WithLogger sets the logger of the handlers and middleware.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(o *routerOptions) {
		o.logger = logger
	}
}

// WithPreviewAuth gates preview requests behind tokens verified by ja.
func WithPreviewAuth(ja *jwtauth.JWTAuth) RouterOption {
	return func(o *routerOptions) {
		o.previewAuth = ja
	}
}

// NewRouter mounts the content, raw value and cache routes.
func NewRouter(cache *publishedcontent.Cache, opts ...RouterOption) chi.Router {
	o := &routerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	content := NewContentHandler(cache, o.logger)
	admin := NewCacheHandler(cache, o.logger)

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(o.logger), RecoveryMiddleware(o.logger), PreviewGate(o.previewAuth))

	r.With(ViewMiddleware(cache)).Mount("/content", content.Routes())
	r.Mount("/raw", content.RawRoutes())
	r.Mount("/cache", admin.Routes())

	return r
}
