package courts

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/authz"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/testutil"
)

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/courts", HandleListCourts)
	mux.HandleFunc("POST /api/v1/courts", HandleCreateCourt)
	mux.HandleFunc("POST /api/v1/courts/{id}/active", HandleSetCourtActive)
	mux.HandleFunc("GET /api/v1/rules/{sport}", HandleGetRule)
	mux.HandleFunc("PUT /api/v1/rules/{sport}", HandleUpsertRule)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string, user queries.User) *httptest.ResponseRecorder {
	t.Helper()
	if body == "" {
		body = "{}"
	}
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if user.ID != 0 {
		r = r.WithContext(authz.ContextWithActor(r.Context(), authz.Actor{
			UserID: user.ID,
			Role:   user.Role,
		}))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

// The handler package keeps its dependencies in init-once globals, so the
// whole HTTP flow runs as one test over a shared database.
func TestCourtHandlers(t *testing.T) {
	database := testutil.NewTestDB(t)
	InitHandlers(database.Queries)

	admin := testutil.SeedUser(t, database, "Marta", "marta@example.com", queries.RoleAdmin)
	member := testutil.SeedUser(t, database, "Ana", "ana@example.com", queries.RoleUser)
	mux := newMux()

	t.Run("create requires operator role", func(t *testing.T) {
		body := `{"name": "Court 1", "sport_type": "tennis", "open_time": "08:00", "close_time": "22:00"}`
		w := doJSON(t, mux, "POST", "/api/v1/courts", body, member)
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})

	var courtID int64
	t.Run("create", func(t *testing.T) {
		body := `{"name": "Court 1", "sport_type": "tennis", "open_time": "08:00", "close_time": "22:00"}`
		w := doJSON(t, mux, "POST", "/api/v1/courts", body, admin)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp struct {
			ID        int64  `json:"id"`
			SportType string `json:"sport_type"`
			Active    bool   `json:"active"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.SportType != queries.SportTennis || !resp.Active {
			t.Errorf("unexpected court: %+v", resp)
		}
		courtID = resp.ID
	})

	t.Run("create rejects unknown sport", func(t *testing.T) {
		body := `{"name": "Squash 1", "sport_type": "squash", "open_time": "08:00", "close_time": "22:00"}`
		w := doJSON(t, mux, "POST", "/api/v1/courts", body, admin)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		w := doJSON(t, mux, "GET", "/api/v1/courts", "", member)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp []struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp) != 1 || resp[0].ID != courtID {
			t.Errorf("expected only court %d, got %+v", courtID, resp)
		}
	})

	t.Run("soft disable", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/courts/%d/active", courtID)
		w := doJSON(t, mux, "POST", path, `{"active": false}`, admin)
		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("unconfigured rule falls back to defaults", func(t *testing.T) {
		w := doJSON(t, mux, "GET", "/api/v1/rules/padel", "", member)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp struct {
			MaxDaysAhead      int64 `json:"max_days_ahead"`
			MaxActiveBookings int64 `json:"max_active_bookings"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.MaxDaysAhead != 30 || resp.MaxActiveBookings != 4 {
			t.Errorf("defaults = %+v, want horizon 30 and cap 4", resp)
		}
	})

	t.Run("upsert then get", func(t *testing.T) {
		body := `{"min_advance_minutes": 60, "max_days_ahead": 14, "max_active_bookings": 2, "allow_consecutive": false, "min_gap_minutes": 60}`
		w := doJSON(t, mux, "PUT", "/api/v1/rules/padel", body, admin)
		if w.Code != http.StatusNoContent {
			t.Fatalf("upsert status = %d, body = %s", w.Code, w.Body.String())
		}

		w = doJSON(t, mux, "GET", "/api/v1/rules/padel", "", member)
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp struct {
			MaxDaysAhead      int64 `json:"max_days_ahead"`
			MaxActiveBookings int64 `json:"max_active_bookings"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.MaxDaysAhead != 14 || resp.MaxActiveBookings != 2 {
			t.Errorf("stored rule = %+v, want horizon 14 and cap 2", resp)
		}
	})

	t.Run("store failure is not masked as defaults", func(t *testing.T) {
		// A closed connection must surface as an error, not as the
		// default rule set.
		if err := database.Close(); err != nil {
			t.Fatalf("close database: %v", err)
		}
		w := doJSON(t, mux, "GET", "/api/v1/rules/tennis", "", member)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500, body = %s", w.Code, w.Body.String())
		}
	})
}
