package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/apptflow/libs/httpx"
)

type RouterConfig struct {
	Cron       *CronHandler
	Feedback   *FeedbackHandler
	OptOut     *OptOutHandler
	CronSecret string
	// PublicLimiter limits public endpoints by client IP; SenderLimiter limits
	// the inbound SMS webhook by sender number. Either may be nil.
	PublicLimiter httpx.Limiter
	SenderLimiter httpx.Limiter
	Logger        *slog.Logger
}

// NewRouter serves the API under /api/v1 and, for links embedded in
// messages, under /api.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	routes := func(r chi.Router) {
		r.With(httpx.RequireBearer(cfg.CronSecret)).Get("/cron/run-due-jobs", cfg.Cron.RunDueJobs)
		r.With(httpx.RequireBearer(cfg.CronSecret)).Post("/cron/run-due-jobs", cfg.Cron.RunDueJobs)

		r.Group(func(r chi.Router) {
			if cfg.PublicLimiter != nil {
				r.Use(httpx.LimitMiddleware(cfg.PublicLimiter, httpx.ClientIP, cfg.Logger, true))
			}
			r.Get("/feedback/{token}", cfg.Feedback.Get)
			r.Post("/feedback/{token}", cfg.Feedback.Submit)
			r.Get("/webhooks/email-unsubscribe/{token}", cfg.OptOut.EmailUnsubscribe)
			r.Post("/webhooks/email-unsubscribe/{token}", cfg.OptOut.EmailUnsubscribe)
		})

		r.Group(func(r chi.Router) {
			if cfg.SenderLimiter != nil {
				r.Use(httpx.LimitMiddleware(cfg.SenderLimiter, SenderKey, cfg.Logger, true))
			}
			r.Post("/webhooks/sms", cfg.OptOut.InboundSMS)
		})
	}
	r.Route("/api/v1", routes)
	r.Route("/api", routes)
	return r
}
