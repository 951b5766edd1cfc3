package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/db"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// SeedCourt inserts an active court with standard operating hours.
func SeedCourt(t *testing.T, database *db.DB, name, sportType string) queries.Court {
	t.Helper()

	court, err := database.Queries.CreateCourt(context.Background(), queries.CreateCourtParams{
		Name:      name,
		SportType: sportType,
		OpenTime:  "08:00",
		CloseTime: "22:00",
	})
	if err != nil {
		t.Fatalf("seed court %s: %v", name, err)
	}
	return court
}

// SeedUser inserts a user with the given role.
func SeedUser(t *testing.T, database *db.DB, name, email, role string) queries.User {
	t.Helper()

	user, err := database.Queries.CreateUser(context.Background(), queries.CreateUserParams{
		FullName: name,
		Email:    email,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return user
}
