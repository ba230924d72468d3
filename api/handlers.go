/*
handlers.go - HTTP API handlers for the leave scheduling engine

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Availability:
    GET    /api/calendars/{calendarID}/availability   Classify a date range
    GET    /api/calendars/{calendarID}/waitlist       Per-date waitlist

  Members:
    GET    /api/members/{memberID}                    Member details
    GET    /api/members/{memberID}/balance            Entitlement balances
    GET    /api/members/{memberID}/bookings           Booking history
    POST   /api/members/{memberID}/bookings           Submit a leave request
    GET    /api/members/{memberID}/advance-requests   List advance requests
    POST   /api/members/{memberID}/advance-requests   Queue advance request
    DELETE /api/members/{memberID}/advance-requests/{requestID}  Withdraw

  Bookings (admin decisions):
    GET    /api/bookings/{bookingID}
    POST   /api/bookings/{bookingID}/approve
    POST   /api/bookings/{bookingID}/deny
    POST   /api/bookings/{bookingID}/cancel
    POST   /api/bookings/{bookingID}/confirm-cancellation
    POST   /api/bookings/{bookingID}/revert-cancellation

  Admin:
    PUT    /api/admin/calendars/{calendarID}/allotments/{date}   Date override
    DELETE /api/admin/calendars/{calendarID}/allotments/{date}   Remove override
    PUT    /api/admin/calendars/{calendarID}/allotments/years/{year}  Year default
    POST   /api/admin/members/{memberID}/paid-in-lieu            Record payout

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, reconciler)
  4. Invalidate/refresh the availability cache for touched dates
  5. Publish the change event (best effort; never fails the request)
  6. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, business rejections (window, entitlement, capacity)
  - 404: Resource not found
  - 409: Conflict (duplicates, illegal transitions, lost capacity races)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public; the
  admin group is expected to sit behind a gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - sweeper.go: Background advance-queue sweep
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/leave-scheduler/cache"
	"github.com/warp/leave-scheduler/engine"
	"github.com/warp/leave-scheduler/notify"
)

// maxAvailabilityRange caps the availability query span in days.
const maxAvailabilityRange = 370

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine     *engine.Engine
	Reconciler *engine.Reconciler
	Store      engine.TxStore
	Cache      cache.AvailabilityCache
	Publisher  notify.Publisher
	Log        zerolog.Logger
}

// NewHandler creates a handler with no-op cache and publisher; callers
// replace them when Redis or a broker is configured.
func NewHandler(store engine.TxStore, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:     engine.NewEngine(store),
		Reconciler: engine.NewReconciler(store),
		Store:      store,
		Cache:      cache.Nop{},
		Publisher:  notify.Nop{},
		Log:        log,
	}
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// GetAvailability classifies every date in [from, to] for a calendar.
// GET /api/calendars/{calendarID}/availability?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	cal := engine.CalendarID(chi.URLParam(r, "calendarID"))

	from, err := engine.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := engine.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from", nil)
		return
	}
	if from.AddDays(maxAvailabilityRange).Before(to) {
		writeError(w, http.StatusBadRequest, "date range too large", nil)
		return
	}

	// One today snapshot for the whole range, so a render near midnight
	// cannot mix two different windows.
	today := engine.Today()

	var days []DayAvailabilityDTO
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		avail, hit, err := h.Cache.Get(r.Context(), cal, d)
		if err != nil {
			h.Log.Warn().Err(err).Str("date", d.String()).Msg("availability cache read failed")
			hit = false
		}
		if !hit {
			avail, err = h.Engine.Classifier.Classify(r.Context(), cal, d, today)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to classify date", err)
				return
			}
			if err := h.Cache.Set(r.Context(), cal, d, avail); err != nil {
				h.Log.Warn().Err(err).Str("date", d.String()).Msg("availability cache write failed")
			}
		}
		days = append(days, DayAvailabilityDTO{
			Date:         d.String(),
			Availability: string(avail),
			Selectable:   avail != engine.Unavailable,
		})
	}

	writeJSON(w, http.StatusOK, days)
}

// GetWaitlist returns the waitlist for a date in original queue order.
// GET /api/calendars/{calendarID}/waitlist?date=YYYY-MM-DD
func (h *Handler) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	cal := engine.CalendarID(chi.URLParam(r, "calendarID"))

	date, err := engine.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	waitlist, err := h.Engine.Waitlist(r.Context(), cal, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load waitlist", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(waitlist))
}

// =============================================================================
// MEMBERS
// =============================================================================

// GetMember returns a member's identity and entitlements.
// GET /api/members/{memberID}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "memberID"))

	member, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// GetBalance returns the member's balances, one per leave type.
// GET /api/members/{memberID}/balance?year=2026
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "memberID"))
	year, err := yearParam(r, engine.Today().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	member, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get member", err)
		return
	}

	balances := make([]BalanceDTO, 0, 2)
	for _, lt := range []engine.LeaveType{engine.LeavePLD, engine.LeaveSDV} {
		b, err := h.Engine.Accountant.Balance(r.Context(), member, year, lt)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		balances = append(balances, toBalanceDTO(b))
	}
	writeJSON(w, http.StatusOK, balances)
}

// ListBookings returns the member's bookings for a year, any status.
// GET /api/members/{memberID}/bookings?year=2026
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "memberID"))
	year, err := yearParam(r, engine.Today().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	bookings, err := h.Store.BookingsForMember(r.Context(), id,
		engine.StartOfYear(year), engine.EndOfYear(year))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

// SubmitBooking submits a leave request. Normal-window dates create a
// booking (pending or waitlisted); advance-window dates are routed to the
// advance-request queue and answered with 202.
// POST /api/members/{memberID}/bookings
func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "memberID"))

	var req SubmitBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, lt, err := parseDateAndType(req.Date, req.LeaveType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	booking, err := h.Engine.Submit(r.Context(), id, date, lt)
	if errors.Is(err, engine.ErrAdvanceWindow) {
		ar, arErr := h.Reconciler.SubmitAdvance(r.Context(), id, date, lt)
		if arErr != nil {
			h.writeEngineError(w, "Failed to queue advance request", arErr)
			return
		}
		h.publish(r, notify.FromAdvance(notify.AdvanceQueued, ar, time.Now()))
		writeJSON(w, http.StatusAccepted, SubmitOutcomeDTO{
			Kind:           "advance_request",
			AdvanceRequest: ptr(toAdvanceRequestDTO(ar)),
		})
		return
	}
	if err != nil {
		h.writeEngineError(w, "Failed to submit booking", err)
		return
	}

	h.invalidate(r, booking.CalendarID, booking.Date)
	h.publish(r, notify.FromBooking(notify.BookingSubmitted, booking, time.Now()))
	writeJSON(w, http.StatusCreated, SubmitOutcomeDTO{
		Kind:    "booking",
		Booking: ptr(toBookingDTO(booking)),
	})
}

// ListAdvanceRequests returns the member's advance requests for a year.
// GET /api/members/{memberID}/advance-requests?year=2027
func (h *Handler) ListAdvanceRequests(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "memberID"))
	year, err := yearParam(r, engine.Today().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	requests, err := h.Reconciler.ListForMember(r.Context(), id, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list advance requests", err)
		return
	}
	dtos := make([]AdvanceRequestDTO, len(requests))
	for i, ar := range requests {
		dtos[i] = toAdvanceRequestDTO(ar)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitAdvance queues an advance request directly.
// POST /api/members/{memberID}/advance-requests
func (h *Handler) SubmitAdvance(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "memberID"))

	var req SubmitAdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, lt, err := parseDateAndType(req.Date, req.LeaveType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ar, err := h.Reconciler.SubmitAdvance(r.Context(), id, date, lt)
	if err != nil {
		h.writeEngineError(w, "Failed to queue advance request", err)
		return
	}
	h.publish(r, notify.FromAdvance(notify.AdvanceQueued, ar, time.Now()))
	writeJSON(w, http.StatusCreated, toAdvanceRequestDTO(ar))
}

// WithdrawAdvance deletes the member's unprocessed advance request.
// DELETE /api/members/{memberID}/advance-requests/{requestID}
func (h *Handler) WithdrawAdvance(w http.ResponseWriter, r *http.Request) {
	memberID := engine.MemberID(chi.URLParam(r, "memberID"))
	requestID := engine.AdvanceRequestID(chi.URLParam(r, "requestID"))

	ar, err := h.Store.GetAdvanceRequest(r.Context(), requestID)
	if err != nil {
		h.writeEngineError(w, "Failed to get advance request", err)
		return
	}
	if err := h.Reconciler.Withdraw(r.Context(), requestID, memberID); err != nil {
		h.writeEngineError(w, "Failed to withdraw advance request", err)
		return
	}
	h.publish(r, notify.FromAdvance(notify.AdvanceWithdrawn, ar, time.Now()))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BOOKING DECISIONS
// =============================================================================

// GetBooking returns a single booking.
// GET /api/bookings/{bookingID}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := engine.BookingID(chi.URLParam(r, "bookingID"))

	booking, err := h.Store.GetBooking(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

// ApproveBooking approves a pending booking, or promotes a waitlisted one
// into freed capacity.
// POST /api/bookings/{bookingID}/approve
func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Engine.Approve, notify.BookingApproved, "Failed to approve booking")
}

// DenyBooking denies a pending booking.
// POST /api/bookings/{bookingID}/deny
func (h *Handler) DenyBooking(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Engine.Deny, notify.BookingDenied, "Failed to deny booking")
}

func (h *Handler) decide(
	w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id engine.BookingID) (*engine.Booking, error),
	kind notify.Kind, msg string,
) {
	id := engine.BookingID(chi.URLParam(r, "bookingID"))

	booking, err := op(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, msg, err)
		return
	}
	h.invalidate(r, booking.CalendarID, booking.Date)
	h.publish(r, notify.FromBooking(kind, booking, time.Now()))
	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

// CancelBooking moves a booking toward cancelled along the path its status
// dictates: waitlisted and pending cancel outright, approved enters
// cancellation_pending awaiting admin confirmation.
// POST /api/bookings/{bookingID}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.cancelStep(w, r, h.Engine.Cancel, "Failed to cancel booking")
}

// ConfirmCancellation finalizes cancellation_pending -> cancelled.
// POST /api/bookings/{bookingID}/confirm-cancellation
func (h *Handler) ConfirmCancellation(w http.ResponseWriter, r *http.Request) {
	h.cancelStep(w, r, h.Engine.ConfirmCancellation, "Failed to confirm cancellation")
}

// RevertCancellation denies the cancellation, restoring approved.
// POST /api/bookings/{bookingID}/revert-cancellation
func (h *Handler) RevertCancellation(w http.ResponseWriter, r *http.Request) {
	h.cancelStep(w, r, h.Engine.RevertCancellation, "Failed to revert cancellation")
}

func (h *Handler) cancelStep(
	w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id engine.BookingID) (*engine.CancellationResult, error),
	msg string,
) {
	id := engine.BookingID(chi.URLParam(r, "bookingID"))

	result, err := op(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, msg, err)
		return
	}

	b := result.Booking
	h.invalidate(r, b.CalendarID, b.Date)

	kind := notify.BookingCancelled
	if b.Status == engine.StatusCancellationPending {
		kind = notify.BookingCancelRequested
	} else if b.Status == engine.StatusApproved {
		// Reverted cancellation: the booking is approved again.
		kind = notify.BookingApproved
	}
	h.publish(r, notify.FromBooking(kind, b, time.Now()))

	writeJSON(w, http.StatusOK, CancellationDTO{
		Booking:      toBookingDTO(b),
		Availability: string(result.Availability),
	})
}

// =============================================================================
// ADMIN: ALLOTMENTS AND PAYOUTS
// =============================================================================

// PutDateAllotment creates or replaces a date-scoped capacity override.
// PUT /api/admin/calendars/{calendarID}/allotments/{date}
func (h *Handler) PutDateAllotment(w http.ResponseWriter, r *http.Request) {
	cal := engine.CalendarID(chi.URLParam(r, "calendarID"))

	date, err := engine.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	var req AllotmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.Ledger.ApplyOverride(r.Context(), cal, date, req.MaxAllotment); err != nil {
		h.writeEngineError(w, "Failed to apply allotment override", err)
		return
	}
	h.invalidate(r, cal, date)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteDateAllotment removes the override; the date reverts to the year
// default or to zero.
// DELETE /api/admin/calendars/{calendarID}/allotments/{date}
func (h *Handler) DeleteDateAllotment(w http.ResponseWriter, r *http.Request) {
	cal := engine.CalendarID(chi.URLParam(r, "calendarID"))

	date, err := engine.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	if err := h.Engine.Ledger.RemoveOverride(r.Context(), cal, date); err != nil {
		h.writeEngineError(w, "Failed to remove allotment override", err)
		return
	}
	h.invalidate(r, cal, date)
	w.WriteHeader(http.StatusNoContent)
}

// PutYearAllotment creates or replaces the year-scoped default. Cached
// classifications for the year are not enumerated; the cache TTL bounds
// how long stale classes survive.
// PUT /api/admin/calendars/{calendarID}/allotments/years/{year}
func (h *Handler) PutYearAllotment(w http.ResponseWriter, r *http.Request) {
	cal := engine.CalendarID(chi.URLParam(r, "calendarID"))

	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	var req AllotmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.Ledger.SetYearDefault(r.Context(), cal, year, req.MaxAllotment); err != nil {
		h.writeEngineError(w, "Failed to set year allotment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantPaidInLieu records a day paid out instead of taken.
// POST /api/admin/members/{memberID}/paid-in-lieu
func (h *Handler) GrantPaidInLieu(w http.ResponseWriter, r *http.Request) {
	id := engine.MemberID(chi.URLParam(r, "memberID"))

	var req PaidInLieuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, lt, err := parseDateAndType(req.Date, req.LeaveType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	booking, err := h.Engine.GrantPaidInLieu(r.Context(), id, date, lt)
	if err != nil {
		h.writeEngineError(w, "Failed to record paid-in-lieu day", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(booking))
}

// =============================================================================
// HELPERS
// =============================================================================

// invalidate drops the cached classification for a written (calendar, date).
func (h *Handler) invalidate(r *http.Request, cal engine.CalendarID, date engine.Day) {
	if err := h.Cache.Invalidate(r.Context(), cal, date); err != nil {
		h.Log.Warn().Err(err).
			Str("calendar", string(cal)).
			Str("date", date.String()).
			Msg("availability cache invalidation failed")
	}
}

// publish emits a change event. Failures are logged, never surfaced: the
// state change has already committed.
func (h *Handler) publish(r *http.Request, ev notify.Event) {
	if err := h.Publisher.Publish(r.Context(), ev); err != nil {
		h.Log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("event publish failed")
	}
}

// writeEngineError maps engine errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, msg string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case errors.Is(err, engine.ErrDuplicateBooking),
		errors.Is(err, engine.ErrDuplicateAdvanceRequest),
		errors.Is(err, engine.ErrInvalidTransition),
		engine.IsRetryable(err):
		writeError(w, http.StatusConflict, msg, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	default:
		h.Log.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

func parseDateAndType(dateStr, typeStr string) (engine.Day, engine.LeaveType, error) {
	date, err := engine.ParseDay(dateStr)
	if err != nil {
		return engine.Day{}, "", errors.New("invalid date format (use YYYY-MM-DD)")
	}
	lt := engine.LeaveType(typeStr)
	if !lt.Valid() {
		return engine.Day{}, "", errors.New("leaveType must be PLD or SDV")
	}
	return date, lt, nil
}

func yearParam(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func ptr[T any](v T) *T { return &v }
