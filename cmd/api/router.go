package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-groupbuy/internal/auth"
	"github.com/noah-isme/backend-groupbuy/internal/checkout"
	"github.com/noah-isme/backend-groupbuy/internal/commitment"
	"github.com/noah-isme/backend-groupbuy/internal/config"
	"github.com/noah-isme/backend-groupbuy/internal/health"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
	"github.com/noah-isme/backend-groupbuy/internal/ratelimit"
	"github.com/noah-isme/backend-groupbuy/internal/security"
	"github.com/noah-isme/backend-groupbuy/internal/vat"
)

const checkoutBodyLimit = 16 << 10

type routerDeps struct {
	Logger         zerolog.Logger
	Config         *config.Config
	Tracing        bool
	HTTPMetrics    *obs.HTTPMetrics
	ServeMetrics   bool
	Health         health.Handler
	Expire         commitment.Handler
	CronLimiter    ratelimit.Allower
	Checkout       *checkout.Handler
	CheckoutLimit  func(http.Handler) http.Handler
	Auth           auth.Middleware
	VAT            vat.Handler
	SecurityHeader bool
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{
		Enable:     d.SecurityHeader,
		EnableHSTS: d.Config.IsProduction(),
	}.Middleware)

	if d.ServeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	cronLimit := ratelimit.Handler{
		Limiter: d.CronLimiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("cron"),
			Window: d.Config.CronRateLimitWindow,
			Max:    d.Config.CronRateLimitMax,
		},
		OnError: func(err error) {
			d.Logger.Warn().Err(err).Msg("cron rate limiter unavailable")
		},
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Options("/cron/expire-commitments", security.CronPreflight)
		v.With(security.PermissiveCORS, cronLimit.Middleware).Post("/cron/expire-commitments", d.Expire.Expire)

		v.Group(func(pub chi.Router) {
			pub.Use(cors.Handler(cors.Options{
				AllowedOrigins:   allowedOrigins(d.Config),
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
				AllowCredentials: len(d.Config.CORSAllowedOrigins) > 0,
				MaxAge:           300,
			}))
			pub.Get("/vat/quote", d.VAT.Quote)

			pub.Route("/checkout", func(co chi.Router) {
				co.Use(d.Auth.Authenticate)
				if d.CheckoutLimit != nil {
					co.Use(d.CheckoutLimit)
				}
				co.Get("/policy", d.Checkout.Policy)
				co.With(security.BodyLimit{Max: checkoutBodyLimit}.Middleware).Post("/admission", d.Checkout.Admission)
			})
		})
	})
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
