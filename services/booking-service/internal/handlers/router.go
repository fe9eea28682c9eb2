package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/apptflow/libs/httpx"
)

type RouterConfig struct {
	Booking *BookingHandler
	// InternalSecret guards the appointment update endpoint.
	InternalSecret string
	PublicLimiter  httpx.Limiter
	Logger         *slog.Logger
}

// NewRouter serves the API under /api/v1 and, for links embedded in
// messages, under /api.
func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Booking
	r := chi.NewRouter()
	routes := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.PublicLimiter != nil {
				r.Use(httpx.LimitMiddleware(cfg.PublicLimiter, httpx.ClientIP, cfg.Logger, true))
			}
			r.Get("/public/slots", h.Slots)
			r.Post("/public/book", h.Book)
			r.Get("/appointments/confirm/{token}", h.Confirm)
			r.Post("/appointments/confirm/{token}", h.Confirm)
			r.Get("/appointments/cancel/{token}", h.Cancel)
			r.Post("/appointments/cancel/{token}", h.Cancel)
		})
		r.With(httpx.RequireBearer(cfg.InternalSecret)).Patch("/appointments/{id}", h.Update)
	}
	r.Route("/api/v1", routes)
	r.Route("/api", routes)
	return r
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
