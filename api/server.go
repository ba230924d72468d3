/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/calendars/*   Availability and waitlists
  /api/members/*     Member surface: bookings, balances, advance requests
  /api/bookings/*    Administrative booking decisions
  /api/admin/*       Allotment administration, paid-in-lieu payouts

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Calendar routes
		r.Route("/calendars/{calendarID}", func(r chi.Router) {
			r.Get("/availability", h.GetAvailability)
			r.Get("/waitlist", h.GetWaitlist)
		})

		// Member routes
		r.Route("/members/{memberID}", func(r chi.Router) {
			r.Get("/", h.GetMember)
			r.Get("/balance", h.GetBalance)
			r.Get("/bookings", h.ListBookings)
			r.Post("/bookings", h.SubmitBooking)
			r.Get("/advance-requests", h.ListAdvanceRequests)
			r.Post("/advance-requests", h.SubmitAdvance)
			r.Delete("/advance-requests/{requestID}", h.WithdrawAdvance)
		})

		// Booking decision routes
		r.Route("/bookings/{bookingID}", func(r chi.Router) {
			r.Get("/", h.GetBooking)
			r.Post("/approve", h.ApproveBooking)
			r.Post("/deny", h.DenyBooking)
			r.Post("/cancel", h.CancelBooking)
			r.Post("/confirm-cancellation", h.ConfirmCancellation)
			r.Post("/revert-cancellation", h.RevertCancellation)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Put("/calendars/{calendarID}/allotments/years/{year}", h.PutYearAllotment)
			r.Put("/calendars/{calendarID}/allotments/{date}", h.PutDateAllotment)
			r.Delete("/calendars/{calendarID}/allotments/{date}", h.DeleteDateAllotment)
			r.Post("/members/{memberID}/paid-in-lieu", h.GrantPaidInLieu)
		})
	})

	return r
}
