// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/apiutil"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/authz"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/availability"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/lifecycle"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/recurrence"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

var (
	controller *lifecycle.Controller
	q          *queries.Queries
	initOnce   sync.Once
)

const queryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(ctrl *lifecycle.Controller, queries *queries.Queries) {
	if ctrl == nil || queries == nil {
		return
	}
	initOnce.Do(func() {
		controller = ctrl
		q = queries
	})
}

type bookingResponse struct {
	ID            int64      `json:"id"`
	CourtID       int64      `json:"court_id"`
	UserID        int64      `json:"user_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        string     `json:"status"`
	BookingType   string     `json:"booking_type"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	RecurrenceTag string     `json:"recurrence_tag,omitempty"`
}

func toBookingResponse(b queries.Booking) bookingResponse {
	resp := bookingResponse{
		ID:          b.ID,
		CourtID:     b.CourtID,
		UserID:      b.UserID,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Status:      b.Status,
		BookingType: b.BookingType,
	}
	if b.ExpiresAt.Valid {
		t := b.ExpiresAt.Time
		resp.ExpiresAt = &t
	}
	if b.RecurrenceTag.Valid {
		resp.RecurrenceTag = b.RecurrenceTag.String
	}
	return resp
}

func writeDecision(w http.ResponseWriter, result lifecycle.Result) {
	if result.Decision.Rejected() {
		status := http.StatusConflict
		switch result.Decision.Reason {
		case availability.ReasonSlotTaken, availability.ReasonCourtUnderMaintenance:
			status = http.StatusConflict
		default:
			status = http.StatusUnprocessableEntity
		}
		_ = apiutil.WriteJSON(w, status, map[string]string{
			"rejected": string(result.Decision.Reason),
		})
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, toBookingResponse(result.Booking))
}

// slotFromRequest validates that the start is a top-of-hour facility time
// and builds the one-hour slot.
func slotFromRequest(courtID int64, start time.Time) (calendar.Slot, error) {
	local := start.In(controller.Calendar().Location())
	if local.Minute() != 0 || local.Second() != 0 || local.Nanosecond() != 0 {
		return calendar.Slot{}, apiutil.FieldError{Field: "start_time", Reason: "must be at the top of the hour"}
	}
	return calendar.Slot{
		CourtID: courtID,
		Interval: calendar.Interval{
			Start: start,
			End:   start.Add(calendar.SlotDuration),
		},
	}, nil
}

type createBookingRequest struct {
	CourtID       int64  `json:"court_id"`
	StartTime     string `json:"start_time"`
	PaymentMethod string `json:"payment_method,omitempty"`
	UserID        int64  `json:"user_id,omitempty"` // cash path: the member being booked for
}

// POST /api/v1/bookings
func HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createBookingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CourtID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "court_id must be greater than 0")
		return
	}
	start, err := apiutil.ParseRFC3339Field(req.StartTime, "start_time")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	slot, err := slotFromRequest(req.CourtID, start)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	var result lifecycle.Result
	if req.PaymentMethod == "cash" {
		// Cash bookings are entered at the front desk on a member's behalf.
		if !actor.Privileged() {
			apiutil.WriteError(w, http.StatusForbidden, "cash bookings require an operator")
			return
		}
		if req.UserID <= 0 {
			apiutil.WriteError(w, http.StatusBadRequest, "user_id is required for cash bookings")
			return
		}
		result, err = controller.CreatePaid(ctx, req.UserID, slot, actor.UserID)
	} else {
		result, err = controller.CreatePending(ctx, actor.UserID, slot)
	}
	if err != nil {
		writeLifecycleError(w, logger, err)
		return
	}
	writeDecision(w, result)
}

type confirmRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// POST /api/v1/bookings/{id}/confirm
func HandleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req confirmRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentRef == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "payment_ref is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	booking, err := controller.ConfirmPaid(ctx, id, req.PaymentRef)
	if err != nil {
		writeLifecycleError(w, logger, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, toBookingResponse(booking))
}

// POST /api/v1/bookings/{id}/cancel
func HandleCancelBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if !authorizeBookingAccess(ctx, w, actor, id) {
		return
	}
	if err := controller.Cancel(ctx, id); err != nil {
		writeLifecycleError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rescheduleRequest struct {
	CourtID   int64  `json:"court_id"`
	StartTime string `json:"start_time"`
}

// POST /api/v1/bookings/{id}/reschedule
func HandleReschedule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req rescheduleRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CourtID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "court_id must be greater than 0")
		return
	}
	start, err := apiutil.ParseRFC3339Field(req.StartTime, "start_time")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	slot, err := slotFromRequest(req.CourtID, start)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if !authorizeBookingAccess(ctx, w, actor, id) {
		return
	}
	result, err := controller.Reschedule(ctx, id, slot, lifecycle.Actor{
		UserID: actor.UserID,
		Role:   actor.Role,
	})
	if err != nil {
		writeLifecycleError(w, logger, err)
		return
	}
	writeDecision(w, result)
}

type slotStatusResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

// GET /api/v1/courts/{id}/availability?date=2006-01-02
func HandleDayAvailability(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	courtID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	cal := controller.Calendar()
	date, err := apiutil.ParseDateField(r.URL.Query().Get("date"), "date", cal.Location())
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	court, err := q.GetCourt(ctx, courtID)
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "court not found")
		return
	}

	dayStart := cal.DayStart(date)
	dayEnd := cal.DayEnd(date)
	now := controller.Now()

	liveRows, err := q.ListLiveBookings(ctx, queries.ListLiveBookingsParams{
		CourtID:   courtID,
		StartTime: dayStart,
		EndTime:   dayEnd,
		Now:       now,
	})
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to load live bookings")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}
	windowRows, err := q.ListActiveWindowsOverlapping(ctx, queries.ListActiveWindowsOverlappingParams{
		CourtID:   courtID,
		StartTime: dayStart,
		EndTime:   dayEnd,
	})
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to load maintenance windows")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	live := make([]calendar.Interval, 0, len(liveRows))
	for _, b := range liveRows {
		live = append(live, calendar.Interval{Start: b.StartTime, End: b.EndTime})
	}
	maintenance := make([]calendar.Interval, 0, len(windowRows))
	for _, win := range windowRows {
		maintenance = append(maintenance, calendar.Interval{Start: win.StartTime, End: win.EndTime})
	}

	statuses, err := controller.Resolver().DayAvailability(courtID,
		calendar.OperatingHours{Open: court.OpenTime, Close: court.CloseTime},
		date, now, live, maintenance)
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to enumerate slots")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	resp := make([]slotStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		resp = append(resp, slotStatusResponse{
			StartTime: s.Slot.Start,
			EndTime:   s.Slot.End,
			Available: s.Available,
			Reason:    string(s.Reason),
		})
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"court_id": courtID,
		"date":     r.URL.Query().Get("date"),
		"slots":    resp,
	})
}

type createSeriesRequest struct {
	CourtID     int64  `json:"court_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	StartHour   int    `json:"start_hour"`
	EndHour     int    `json:"end_hour"`
	Date        string `json:"date"`
	Weekdays    []int  `json:"weekdays,omitempty"`
	Weeks       int    `json:"weeks,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

type occurrenceFailureResponse struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// POST /api/v1/bookings/series
func HandleCreateSeries(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	actor, err := authz.RequirePrivileged(r.Context())
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	var req createSeriesRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CourtID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "court_id must be greater than 0")
		return
	}
	if req.Title == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	cal := controller.Calendar()
	date, err := apiutil.ParseDateField(req.Date, "date", cal.Location())
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	weekdays, err := apiutil.ParseWeekdaysField(req.Weekdays, "weekdays")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var endDate *time.Time
	if req.EndDate != "" {
		parsed, err := apiutil.ParseDateField(req.EndDate, "end_date", cal.Location())
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		endDate = &parsed
	}

	intent := recurrence.FromRequest(date, weekdays, req.Weeks, endDate)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := controller.CreateSeries(ctx, intent, lifecycle.SeriesTemplate{
		CourtID:       req.CourtID,
		ReferenceUser: actor.UserID,
		Title:         req.Title,
		Description:   req.Description,
		EventType:     req.EventType,
		StartHour:     req.StartHour,
		EndHour:       req.EndHour,
	})
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrInvalidEventHours),
			errors.Is(err, recurrence.ErrEndBeforeStart),
			errors.Is(err, recurrence.ErrNoWeekdays),
			errors.Is(err, recurrence.ErrNoWeeks):
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			writeLifecycleError(w, logger, err)
		}
		return
	}

	created := make([]bookingResponse, 0, len(result.Created))
	for _, b := range result.Created {
		created = append(created, toBookingResponse(b))
	}
	failed := make([]occurrenceFailureResponse, 0, len(result.Failed))
	for _, f := range result.Failed {
		entry := occurrenceFailureResponse{
			Date:   f.Date.In(cal.Location()).Format("2006-01-02"),
			Reason: string(f.Reason),
		}
		if f.Err != nil {
			entry.Error = f.Err.Error()
		}
		failed = append(failed, entry)
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"recurrence_tag": result.Tag,
		"created":        created,
		"failed":         failed,
	})
}

// POST /api/v1/bookings/series/{tag}/cancel
func HandleCancelSeries(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	tag := r.PathValue("tag")
	if tag == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "tag is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if err := controller.CancelSeries(ctx, tag); err != nil {
		logger.Error().Err(err).Str("recurrence_tag", tag).Msg("Failed to cancel series")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to cancel series")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeBookingAccess permits the booking's owner and operators.
func authorizeBookingAccess(ctx context.Context, w http.ResponseWriter, actor authz.Actor, bookingID int64) bool {
	if actor.Privileged() {
		return true
	}
	booking, err := q.GetBooking(ctx, bookingID)
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "booking not found")
		return false
	}
	if booking.UserID != actor.UserID {
		apiutil.WriteError(w, http.StatusForbidden, "not your booking")
		return false
	}
	return true
}

func writeAuthzError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		apiutil.WriteError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, authz.ErrForbidden):
		apiutil.WriteError(w, http.StatusForbidden, "operator role required")
	default:
		apiutil.WriteError(w, http.StatusInternalServerError, "authorization failed")
	}
}

func writeLifecycleError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, lifecycle.ErrCourtNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "court not found")
	case errors.Is(err, lifecycle.ErrCourtDisabled):
		apiutil.WriteError(w, http.StatusUnprocessableEntity, "court is disabled")
	case errors.Is(err, lifecycle.ErrBookingCancelled):
		apiutil.WriteError(w, http.StatusConflict, "booking is cancelled")
	case errors.Is(err, lifecycle.ErrBookingExpired):
		apiutil.WriteError(w, http.StatusConflict, "booking hold has expired")
	case errors.Is(err, lifecycle.ErrPaymentRefMismatch):
		apiutil.WriteError(w, http.StatusConflict, "payment reference mismatch")
	default:
		logger.Error().Err(err).Msg("Booking operation failed")
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
