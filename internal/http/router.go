package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/tour-package-bookings/internal/idempotency"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/robertarktes/tour-package-bookings/internal/rateLimit"
)

// SetupRouter builds the API. rl may be nil to disable rate limiting.
func SetupRouter(h *Handlers, logger observability.Logger, auth *Authenticator, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(Authenticate(auth))
	if rl != nil {
		r.Use(RateLimitMiddleware(rl))
	}

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/v1/packages", h.ListPackages)
	r.Get("/v1/packages/{id}", h.GetPackage)
	r.Get("/v1/packages/{id}/availability", h.Availability)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.With(IdempotencyMiddleware(idemp)).Post("/v1/bookings", h.CreateBooking)
		r.Get("/v1/bookings", h.ListMyBookings)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.With(IdempotencyMiddleware(idemp)).Post("/v1/bookings/{id}/payment", h.RecordPayment)
		r.Post("/v1/bookings/{id}/remainder", h.SubmitRemainder)
		r.Post("/v1/uploads/payment-proof", h.UploadPaymentProof)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(RequireAdmin)

		r.Get("/bookings", h.AdminListBookings)
		r.Post("/bookings/{id}/decision", h.Decide)
		r.Put("/bookings/{id}/notes", h.UpdateNotes)
		r.Get("/stats/bookings", h.BookingStats)

		r.Get("/packages", h.AdminListPackages)
		r.Post("/packages", h.CreatePackage)
		r.Put("/packages/{id}", h.UpdatePackage)
		r.Put("/packages/{id}/active", h.SetPackageActive)
		r.Delete("/packages/{id}", h.DeletePackage)
		r.Put("/packages/{id}/details", h.SaveDetails)
		r.Post("/packages/{id}/dates", h.AddDate)
		r.Put("/dates/{id}", h.UpdateDate)
		r.Delete("/dates/{id}", h.DeleteDate)
	})

	return r
}
