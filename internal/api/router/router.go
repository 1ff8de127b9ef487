package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/audit"
	"github.com/wolfman30/salon-booking-platform/internal/customers"
	httpmiddleware "github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/internal/livefeed"
	"github.com/wolfman30/salon-booking-platform/internal/payments/promptpay"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Appointments       *appointments.Handler
	Customers          *customers.Handler
	Settings           *settings.Handler
	PromptPay          *promptpay.Handler
	Audit              *audit.Handler
	LiveFeed           *livefeed.Hub
	Ready              map[string]Pinger
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	LineVerifier       httpmiddleware.LineTokenVerifier
	TrustLineHeader    bool
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.Ready))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Customer API. The LIFF front end identifies the caller with a LINE ID
	// token.
	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Compress(5))
		api.Use(httpmiddleware.LineAuth(cfg.LineVerifier, cfg.TrustLineHeader))
		if cfg.RateLimitRPS > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}
		if cfg.Appointments != nil {
			cfg.Appointments.PublicRoutes(api)
		}
		if cfg.PromptPay != nil {
			cfg.PromptPay.PublicRoutes(api)
		}
	})

	// Staff routes (HMAC JWT). Employees reach appointments and the live
	// feed; the lifecycle limits what they may change.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, httpmiddleware.RoleAdmin, httpmiddleware.RoleEmployee))
			if cfg.Appointments != nil {
				admin.With(middleware.Compress(5)).Mount("/appointments", cfg.Appointments.AdminRoutes())
			}
			if cfg.LiveFeed != nil {
				admin.Get("/live", cfg.LiveFeed.HandleWebSocket)
			}

			admin.Group(func(owner chi.Router) {
				owner.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, httpmiddleware.RoleAdmin))
				if cfg.Customers != nil {
					owner.Mount("/customers", cfg.Customers.Routes())
				}
				if cfg.Settings != nil {
					owner.Mount("/settings", cfg.Settings.Routes())
				}
				if cfg.Audit != nil {
					owner.Mount("/audit", cfg.Audit.Routes())
				}
			})
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready pings every dependency and reports each result.
func ready(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		body := map[string]any{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
