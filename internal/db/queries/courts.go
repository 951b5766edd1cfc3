package queries

import (
	"context"
)

func scanCourt(row interface{ Scan(...interface{}) error }) (Court, error) {
	var c Court
	err := row.Scan(&c.ID, &c.Name, &c.SportType, &c.OpenTime, &c.CloseTime, &c.Active, &c.CreatedAt)
	return c, err
}

const courtColumns = `id, name, sport_type, open_time, close_time, active, created_at`

type CreateCourtParams struct {
	Name      string
	SportType string
	OpenTime  string
	CloseTime string
}

func (q *Queries) CreateCourt(ctx context.Context, params CreateCourtParams) (Court, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO courts (name, sport_type, open_time, close_time)
		VALUES (?, ?, ?, ?)`,
		params.Name, params.SportType, params.OpenTime, params.CloseTime,
	)
	if err != nil {
		return Court{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Court{}, err
	}
	return q.GetCourt(ctx, id)
}

func (q *Queries) GetCourt(ctx context.Context, id int64) (Court, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+courtColumns+` FROM courts WHERE id = ?`, id)
	return scanCourt(row)
}

func (q *Queries) ListCourts(ctx context.Context) ([]Court, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+courtColumns+` FROM courts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courts []Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, err
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

// ListActiveCourtsBySportType returns active courts of one sport type,
// used to find transfer siblings during closure resolution.
func (q *Queries) ListActiveCourtsBySportType(ctx context.Context, sportType string) ([]Court, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+courtColumns+` FROM courts
		WHERE sport_type = ? AND active = 1
		ORDER BY name`,
		sportType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courts []Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, err
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

type SetCourtActiveParams struct {
	ID     int64
	Active bool
}

// SetCourtActive soft-disables or re-enables a court. Courts are never
// deleted while bookings reference them.
func (q *Queries) SetCourtActive(ctx context.Context, params SetCourtActiveParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE courts SET active = ? WHERE id = ?`, params.Active, params.ID)
	return err
}

type UpdateCourtHoursParams struct {
	ID        int64
	OpenTime  string
	CloseTime string
}

func (q *Queries) UpdateCourtHours(ctx context.Context, params UpdateCourtHoursParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE courts SET open_time = ?, close_time = ? WHERE id = ?`,
		params.OpenTime, params.CloseTime, params.ID)
	return err
}
