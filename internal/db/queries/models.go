package queries

import (
	"database/sql"
	"time"
)

// Booking lifecycle states.
const (
	BookingStatusPendingPayment = "pending_payment"
	BookingStatusPaid           = "paid"
	BookingStatusCancelled      = "cancelled"
)

// Booking kinds. Special bookings are event reservations with a reference
// user and no payment.
const (
	BookingTypeStandard = "standard"
	BookingTypeSpecial  = "special"
)

// Court sport types, mirroring the sport_type CHECK constraint.
const (
	SportTennis = "tennis"
	SportPadel  = "padel"
)

// User roles.
const (
	RoleUser       = "user"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

type User struct {
	ID        int64
	FullName  string
	Email     string
	Phone     sql.NullString
	Role      string
	CreatedAt time.Time
}

type Court struct {
	ID        int64
	Name      string
	SportType string
	OpenTime  string
	CloseTime string
	Active    bool
	CreatedAt time.Time
}

type BookingRule struct {
	ID                int64
	SportType         string
	MinAdvanceMinutes int64
	MaxDaysAhead      int64
	MaxActiveBookings int64
	AllowConsecutive  bool
	MinGapMinutes     int64
}

type Booking struct {
	ID            int64
	CourtID       int64
	UserID        int64
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	ExpiresAt     sql.NullTime
	PaymentRef    sql.NullString
	ProcessedBy   sql.NullInt64
	BookingType   string
	Title         sql.NullString
	Description   sql.NullString
	EventType     sql.NullString
	RecurrenceTag sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Live reports whether the booking blocks its slot at the given instant:
// paid, or pending payment and not yet expired.
func (b Booking) Live(now time.Time) bool {
	switch b.Status {
	case BookingStatusPaid:
		return true
	case BookingStatusPendingPayment:
		return !b.ExpiresAt.Valid || b.ExpiresAt.Time.After(now)
	default:
		return false
	}
}

type MaintenanceWindow struct {
	ID                int64
	CourtID           sql.NullInt64 // NULL means all courts
	StartTime         time.Time
	EndTime           time.Time
	Reason            string
	Active            bool
	Emergency         bool
	ExpectedReopening sql.NullTime
	CreatedAt         time.Time
}

type AffectedBooking struct {
	ID            int64
	BookingID     int64
	WindowID      int64
	Rescheduled   bool
	RescheduledAt sql.NullTime
	CreatedAt     time.Time
}
