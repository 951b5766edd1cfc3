package queries

import (
	"context"
	"database/sql"
	"time"
)

const windowColumns = `id, court_id, start_time, end_time, reason, active,
	emergency, expected_reopening, created_at`

func scanWindow(row interface{ Scan(...interface{}) error }) (MaintenanceWindow, error) {
	var w MaintenanceWindow
	err := row.Scan(&w.ID, &w.CourtID, &w.StartTime, &w.EndTime, &w.Reason,
		&w.Active, &w.Emergency, &w.ExpectedReopening, &w.CreatedAt)
	return w, err
}

func (q *Queries) listWindows(ctx context.Context, query string, args ...interface{}) ([]MaintenanceWindow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []MaintenanceWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

type InsertMaintenanceWindowParams struct {
	CourtID           sql.NullInt64 // NULL means all courts
	StartTime         time.Time
	EndTime           time.Time
	Reason            string
	Emergency         bool
	ExpectedReopening sql.NullTime
}

func (q *Queries) InsertMaintenanceWindow(ctx context.Context, params InsertMaintenanceWindowParams) (MaintenanceWindow, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO maintenance_windows (
			court_id, start_time, end_time, reason, emergency, expected_reopening
		) VALUES (?, ?, ?, ?, ?, ?)`,
		params.CourtID, params.StartTime, params.EndTime, params.Reason,
		params.Emergency, params.ExpectedReopening,
	)
	if err != nil {
		return MaintenanceWindow{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return MaintenanceWindow{}, err
	}
	return q.GetMaintenanceWindow(ctx, id)
}

func (q *Queries) GetMaintenanceWindow(ctx context.Context, id int64) (MaintenanceWindow, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+windowColumns+` FROM maintenance_windows WHERE id = ?`, id)
	return scanWindow(row)
}

type ListActiveWindowsOverlappingParams struct {
	CourtID   int64
	StartTime time.Time
	EndTime   time.Time
}

// ListActiveWindowsOverlapping returns active windows that affect the court
// (court-specific or all-courts) and intersect [StartTime, EndTime).
func (q *Queries) ListActiveWindowsOverlapping(ctx context.Context, params ListActiveWindowsOverlappingParams) ([]MaintenanceWindow, error) {
	return q.listWindows(ctx, `
		SELECT `+windowColumns+` FROM maintenance_windows
		WHERE active = 1
		  AND (court_id IS NULL OR court_id = ?)
		  AND start_time < ?
		  AND end_time > ?
		ORDER BY start_time`,
		params.CourtID, params.EndTime, params.StartTime,
	)
}

// ListActiveEmergencyWindows returns active emergency windows scoped to the
// given court, or every active emergency window when courtID is NULL. A
// facility-wide window (NULL court_id) is only returned by the NULL form:
// reopening one court must not end a closure that covers the whole facility.
func (q *Queries) ListActiveEmergencyWindows(ctx context.Context, courtID sql.NullInt64) ([]MaintenanceWindow, error) {
	return q.listWindows(ctx, `
		SELECT `+windowColumns+` FROM maintenance_windows
		WHERE active = 1
		  AND emergency = 1
		  AND (? IS NULL OR court_id = ?)
		ORDER BY start_time`,
		courtID, courtID,
	)
}

func (q *Queries) DeactivateMaintenanceWindow(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE maintenance_windows SET active = 0 WHERE id = ?`, id)
	return err
}

// DeactivateExpiredMaintenanceWindows ends non-emergency windows whose end
// time has passed. Emergency windows are only closed by an explicit reopen.
func (q *Queries) DeactivateExpiredMaintenanceWindows(ctx context.Context, now time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE maintenance_windows
		SET active = 0
		WHERE active = 1 AND emergency = 0 AND end_time <= ?`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
