// Package api exposes the module's only HTTP surface: the three
// bearer-token-authenticated endpoints freshly provisioned instances call
// during boot, plus the Mailer delivery-status webhook (spec.md §6).
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.redcell.dev/rangeops/internal/common/metrics"
	"go.redcell.dev/rangeops/internal/mailer"
	"go.redcell.dev/rangeops/internal/platform/instance"
	"go.redcell.dev/rangeops/internal/platform/license"
	"go.redcell.dev/rangeops/internal/platform/participant"
	"go.redcell.dev/rangeops/internal/ratelimit"
)

// Dependencies bundles everything the router needs to build its handlers.
type Dependencies struct {
	Instances       instance.Repository
	Licenses        *license.Service
	Users           participant.Repository
	WebhookVerifier *mailer.WebhookVerifier
	CORSOrigins     []string
	// AcquireLimiter throttles /license/queue/acquire attempts per client
	// IP, the one endpoint a network attacker could use to brute-force
	// license tokens. Optional — nil disables throttling.
	AcquireLimiter ratelimit.Limiter
}

// NewRouter builds the chi router serving every HTTP endpoint this module
// owns. Everything named out of scope in spec.md §1 remains an external
// collaborator with no handler here.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(instrumentRequests)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	cloudInit := NewCloudInitHandler(deps.Instances)
	r.Get("/cloud-init/vpn-config", cloudInit.VPNConfig)

	licenseHandler := NewLicenseHandler(deps.Licenses)
	r.Get("/license/blob", licenseHandler.Blob)
	r.Route("/license/queue", func(r chi.Router) {
		if deps.AcquireLimiter != nil {
			r.With(throttleByIP(deps.AcquireLimiter)).Post("/acquire", licenseHandler.Acquire)
		} else {
			r.Post("/acquire", licenseHandler.Acquire)
		}
		r.Post("/release", licenseHandler.Release)
	})

	webhookHandler := NewWebhookHandler(deps.WebhookVerifier, deps.Users)
	r.Post("/mailer/webhook", webhookHandler.Deliveries)

	return r
}

// throttleByIP rejects requests past limiter's attempt budget for the
// caller's IP with 429 + Retry-After, rather than letting an attacker spam
// /license/queue/acquire with guessed tokens as fast as the network allows.
func throttleByIP(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Allow(r.Context(), r.RemoteAddr)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !result.Allowed {
				writeTooManyRequests(w, result.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// instrumentRequests records HTTPRequestsTotal/HTTPRequestDuration for every
// request. The route pattern (not the raw path) is used as a label so token
// and ID path segments don't blow up cardinality.
func instrumentRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPActiveConnections.Inc()
		defer metrics.HTTPActiveConnections.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
