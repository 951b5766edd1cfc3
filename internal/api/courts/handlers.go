// internal/api/courts/handlers.go
package courts

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/apiutil"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/authz"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/rules"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

var (
	q        *queries.Queries
	initOnce sync.Once
)

const queryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(queries *queries.Queries) {
	if queries == nil {
		return
	}
	initOnce.Do(func() {
		q = queries
	})
}

type courtResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SportType string `json:"sport_type"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
	Active    bool   `json:"active"`
}

func toCourtResponse(c queries.Court) courtResponse {
	return courtResponse{
		ID:        c.ID,
		Name:      c.Name,
		SportType: c.SportType,
		OpenTime:  c.OpenTime,
		CloseTime: c.CloseTime,
		Active:    c.Active,
	}
}

// GET /api/v1/courts
func HandleListCourts(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	courts, err := q.ListCourts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list courts")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to list courts")
		return
	}
	resp := make([]courtResponse, 0, len(courts))
	for _, c := range courts {
		resp = append(resp, toCourtResponse(c))
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, resp)
}

type createCourtRequest struct {
	Name      string `json:"name"`
	SportType string `json:"sport_type"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// POST /api/v1/courts
func HandleCreateCourt(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	var req createCourtRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.SportType != rules.SportTennis && req.SportType != rules.SportPadel {
		apiutil.WriteError(w, http.StatusBadRequest, "sport_type must be tennis or padel")
		return
	}
	hours := calendar.OperatingHours{Open: req.OpenTime, Close: req.CloseTime}
	if err := hours.Validate(); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "operating hours must be HH:MM wall-clock times")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	court, err := q.CreateCourt(ctx, queries.CreateCourtParams{
		Name:      req.Name,
		SportType: req.SportType,
		OpenTime:  req.OpenTime,
		CloseTime: req.CloseTime,
	})
	if err != nil {
		logger.Error().Err(err).Str("name", req.Name).Msg("Failed to create court")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to create court")
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, toCourtResponse(court))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// POST /api/v1/courts/{id}/active
// Courts are soft-disabled, never deleted, so booking history stays intact.
func HandleSetCourtActive(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req setActiveRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if _, err := q.GetCourt(ctx, id); err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "court not found")
		return
	}
	if err := q.SetCourtActive(ctx, queries.SetCourtActiveParams{ID: id, Active: req.Active}); err != nil {
		logger.Error().Err(err).Int64("court_id", id).Msg("Failed to update court active flag")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to update court")
		return
	}
	logger.Info().Int64("court_id", id).Bool("active", req.Active).Msg("Court active flag updated")
	w.WriteHeader(http.StatusNoContent)
}

type ruleResponse struct {
	SportType         string `json:"sport_type"`
	MinAdvanceMinutes int64  `json:"min_advance_minutes"`
	MaxDaysAhead      int64  `json:"max_days_ahead"`
	MaxActiveBookings int64  `json:"max_active_bookings"`
	AllowConsecutive  bool   `json:"allow_consecutive"`
	MinGapMinutes     int64  `json:"min_gap_minutes"`
}

// GET /api/v1/rules/{sport}
func HandleGetRule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	sport := r.PathValue("sport")
	if sport != rules.SportTennis && sport != rules.SportPadel {
		apiutil.WriteError(w, http.StatusNotFound, "unknown sport type")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	row, err := q.GetBookingRule(ctx, sport)
	if errors.Is(err, sql.ErrNoRows) {
		// No configured row falls back to the documented defaults.
		defaults := rules.Defaults(sport)
		_ = apiutil.WriteJSON(w, http.StatusOK, ruleResponse{
			SportType:         sport,
			MinAdvanceMinutes: int64(defaults.MinAdvanceNotice / time.Minute),
			MaxDaysAhead:      int64(defaults.MaxDaysAhead),
			MaxActiveBookings: int64(defaults.MaxActiveBookingsPerUser),
			AllowConsecutive:  defaults.AllowConsecutive,
			MinGapMinutes:     int64(defaults.MinGap / time.Minute),
		})
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("sport_type", sport).Msg("Failed to load booking rule")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, ruleResponse{
		SportType:         row.SportType,
		MinAdvanceMinutes: row.MinAdvanceMinutes,
		MaxDaysAhead:      row.MaxDaysAhead,
		MaxActiveBookings: row.MaxActiveBookings,
		AllowConsecutive:  row.AllowConsecutive,
		MinGapMinutes:     row.MinGapMinutes,
	})
}

type upsertRuleRequest struct {
	MinAdvanceMinutes int64 `json:"min_advance_minutes"`
	MaxDaysAhead      int64 `json:"max_days_ahead"`
	MaxActiveBookings int64 `json:"max_active_bookings"`
	AllowConsecutive  bool  `json:"allow_consecutive"`
	MinGapMinutes     int64 `json:"min_gap_minutes"`
}

// PUT /api/v1/rules/{sport}
func HandleUpsertRule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequirePrivileged(r.Context()); err != nil {
		writeAuthzError(w, err)
		return
	}
	sport := r.PathValue("sport")
	if sport != rules.SportTennis && sport != rules.SportPadel {
		apiutil.WriteError(w, http.StatusNotFound, "unknown sport type")
		return
	}
	var req upsertRuleRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MinAdvanceMinutes < 0 || req.MaxDaysAhead <= 0 || req.MaxActiveBookings <= 0 || req.MinGapMinutes < 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "rule values out of range")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if err := q.UpsertBookingRule(ctx, queries.UpsertBookingRuleParams{
		SportType:         sport,
		MinAdvanceMinutes: req.MinAdvanceMinutes,
		MaxDaysAhead:      req.MaxDaysAhead,
		MaxActiveBookings: req.MaxActiveBookings,
		AllowConsecutive:  req.AllowConsecutive,
		MinGapMinutes:     req.MinGapMinutes,
	}); err != nil {
		logger.Error().Err(err).Str("sport_type", sport).Msg("Failed to upsert booking rule")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}
	logger.Info().Str("sport_type", sport).Msg("Booking rule updated")
	w.WriteHeader(http.StatusNoContent)
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
