// internal/api/maintenance/handlers.go
package maintenance

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
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/closure"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

var (
	resolver *closure.Resolver
	initOnce sync.Once
)

const queryTimeout = 10 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(r *closure.Resolver) {
	if r == nil {
		return
	}
	initOnce.Do(func() {
		resolver = r
	})
}

type targetRequest struct {
	CourtID   int64 `json:"court_id,omitempty"`
	AllCourts bool  `json:"all_courts,omitempty"`
}

func (t targetRequest) toTarget() closure.Target {
	return closure.Target{CourtID: t.CourtID, AllCourts: t.AllCourts}
}

func (t targetRequest) valid() bool {
	return t.AllCourts || t.CourtID > 0
}

type conflictResponse struct {
	BookingID int64     `json:"booking_id"`
	CourtID   int64     `json:"court_id"`
	UserID    int64     `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func toConflictResponses(bookings []queries.Booking) []conflictResponse {
	resp := make([]conflictResponse, 0, len(bookings))
	for _, b := range bookings {
		resp = append(resp, conflictResponse{
			BookingID: b.ID,
			CourtID:   b.CourtID,
			UserID:    b.UserID,
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
		})
	}
	return resp
}

type previewRequest struct {
	Target    targetRequest `json:"target"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
}

// POST /api/v1/maintenance/preview
// Returns the bookings a planned closure would conflict with, plus the
// same-sport courts they could transfer to, so the operator can choose a
// resolution before committing anything.
func HandlePreviewClosure(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	var req previewRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Target.valid() {
		apiutil.WriteError(w, http.StatusBadRequest, "target requires a court_id or all_courts")
		return
	}
	interval, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	conflicts, err := resolver.FindConflicts(ctx, req.Target.toTarget(), interval)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to compute closure conflicts")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to compute conflicts")
		return
	}

	payload := map[string]any{
		"conflicts": toConflictResponses(conflicts),
	}
	if !req.Target.AllCourts {
		candidates, err := resolver.TransferCandidates(ctx, req.Target.CourtID)
		if err != nil {
			if errors.Is(err, closure.ErrCourtNotFound) {
				apiutil.WriteError(w, http.StatusNotFound, "court not found")
				return
			}
			logger.Error().Err(err).Msg("Failed to list transfer candidates")
			apiutil.WriteError(w, http.StatusInternalServerError, "failed to list transfer candidates")
			return
		}
		ids := make([]int64, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}
		payload["transfer_candidates"] = ids
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, payload)
}

type applyRequest struct {
	Target            targetRequest `json:"target"`
	StartTime         string        `json:"start_time"`
	EndTime           string        `json:"end_time"`
	Reason            string        `json:"reason"`
	Resolution        string        `json:"resolution,omitempty"` // cancel_all | transfer | abort
	AlternateCourtID  int64         `json:"alternate_court_id,omitempty"`
	ExpectedReopening string        `json:"expected_reopening,omitempty"`
}

type resultResponse struct {
	WindowID    int64             `json:"window_id"`
	Cancelled   []int64           `json:"cancelled,omitempty"`
	Transferred []int64           `json:"transferred,omitempty"`
	Flagged     []int64           `json:"flagged,omitempty"`
	Failures    []transferFailure `json:"failures,omitempty"`
}

type transferFailure struct {
	BookingID int64  `json:"booking_id"`
	Error     string `json:"error"`
}

func toResultResponse(result *closure.Result) resultResponse {
	resp := resultResponse{
		WindowID:    result.Window.ID,
		Cancelled:   result.Cancelled,
		Transferred: result.Transferred,
		Flagged:     result.Flagged,
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, transferFailure{
			BookingID: f.BookingID,
			Error:     f.Err.Error(),
		})
	}
	return resp
}

// POST /api/v1/maintenance
func HandleApplyClosure(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	var req applyRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Target.valid() {
		apiutil.WriteError(w, http.StatusBadRequest, "target requires a court_id or all_courts")
		return
	}
	if req.Reason == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "reason is required")
		return
	}
	interval, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resolution, err := parseResolution(req.Resolution)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	request := closure.Request{
		Target:           req.Target.toTarget(),
		Interval:         interval,
		Reason:           req.Reason,
		Resolution:       resolution,
		AlternateCourtID: req.AlternateCourtID,
	}
	if req.ExpectedReopening != "" {
		reopening, err := apiutil.ParseRFC3339Field(req.ExpectedReopening, "expected_reopening")
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		request.ExpectedReopening = &reopening
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	result, err := resolver.Apply(ctx, request)
	if err != nil {
		writeClosureError(w, logger, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, toResultResponse(result))
}

type emergencyRequest struct {
	Target            targetRequest `json:"target"`
	Reason            string        `json:"reason"`
	ExpectedReopening string        `json:"expected_reopening,omitempty"`
}

// POST /api/v1/maintenance/emergency
func HandleEmergencyClosure(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	var req emergencyRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Target.valid() {
		apiutil.WriteError(w, http.StatusBadRequest, "target requires a court_id or all_courts")
		return
	}
	if req.Reason == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "reason is required")
		return
	}
	var reopening *time.Time
	if req.ExpectedReopening != "" {
		parsed, err := apiutil.ParseRFC3339Field(req.ExpectedReopening, "expected_reopening")
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		reopening = &parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	result, err := resolver.ApplyEmergency(ctx, req.Target.toTarget(), req.Reason, reopening)
	if err != nil {
		writeClosureError(w, logger, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, toResultResponse(result))
}

// POST /api/v1/maintenance/reopen
func HandleReopen(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	var req targetRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.valid() {
		apiutil.WriteError(w, http.StatusBadRequest, "target requires a court_id or all_courts")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	reopened, err := resolver.Reopen(ctx, req.toTarget())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reopen courts")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to reopen courts")
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]int{"reopened": reopened})
}

func parseInterval(rawStart, rawEnd string) (calendar.Interval, error) {
	start, err := apiutil.ParseRFC3339Field(rawStart, "start_time")
	if err != nil {
		return calendar.Interval{}, err
	}
	end, err := apiutil.ParseRFC3339Field(rawEnd, "end_time")
	if err != nil {
		return calendar.Interval{}, err
	}
	if !end.After(start) {
		return calendar.Interval{}, apiutil.FieldError{Field: "end_time", Reason: "must be after start_time"}
	}
	return calendar.Interval{Start: start, End: end}, nil
}

func parseResolution(raw string) (closure.Resolution, error) {
	switch raw {
	case "", "abort":
		return closure.ResolutionAbort, nil
	case "cancel_all":
		return closure.ResolutionCancelAll, nil
	case "transfer":
		return closure.ResolutionTransfer, nil
	default:
		return 0, apiutil.FieldError{Field: "resolution", Reason: "must be cancel_all, transfer or abort"}
	}
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

func writeClosureError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, closure.ErrResolutionMissing):
		apiutil.WriteError(w, http.StatusConflict, "closure has conflicts; choose a resolution")
	case errors.Is(err, closure.ErrCourtNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "court not found")
	case errors.Is(err, closure.ErrTransferNeedsCourt),
		errors.Is(err, closure.ErrTransferWrongSport),
		errors.Is(err, closure.ErrNoTransferCourt),
		errors.Is(err, closure.ErrUnknownResolution),
		errors.Is(err, closure.ErrTargetCourtRequired):
		apiutil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Error().Err(err).Msg("Closure operation failed")
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
