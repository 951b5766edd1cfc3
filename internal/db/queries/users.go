package queries

import (
	"context"
	"database/sql"
)

type CreateUserParams struct {
	FullName string
	Email    string
	Phone    sql.NullString
	Role     string
}

func (q *Queries) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	role := params.Role
	if role == "" {
		role = RoleUser
	}
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO users (full_name, email, phone, role)
		VALUES (?, ?, ?, ?)`,
		params.FullName, params.Email, params.Phone, role,
	)
	if err != nil {
		return User{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return q.GetUser(ctx, id)
}

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, phone, role, created_at
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.Role, &u.CreatedAt)
	return u, err
}
