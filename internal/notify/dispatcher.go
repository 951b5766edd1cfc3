package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

const sendTimeout = 5 * time.Second

// BookingConfirmedEvent is the broker payload for a confirmed booking.
type BookingConfirmedEvent struct {
	BookingID int64     `json:"booking_id"`
	CourtID   int64     `json:"court_id"`
	CourtName string    `json:"court_name"`
	UserID    int64     `json:"user_id"`
	Phone     string    `json:"phone,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ClosureCreatedEvent is the broker payload for a new maintenance window.
type ClosureCreatedEvent struct {
	WindowID  int64     `json:"window_id"`
	CourtID   *int64    `json:"court_id,omitempty"` // nil means all courts
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	Emergency bool      `json:"emergency"`
}

// Dispatcher fans booking state changes out to email and the event broker.
// Delivery is fire-and-forget: failures are logged and never surface to the
// booking flow.
type Dispatcher struct {
	q           *queries.Queries
	sender      EmailSender
	publisher   EventPublisher
	phoneRegion string
}

func NewDispatcher(q *queries.Queries, sender EmailSender, publisher EventPublisher, phoneRegion string) *Dispatcher {
	return &Dispatcher{
		q:           q,
		sender:      sender,
		publisher:   publisher,
		phoneRegion: phoneRegion,
	}
}

// BookingConfirmed notifies the user and publishes the confirmation event.
func (d *Dispatcher) BookingConfirmed(ctx context.Context, booking queries.Booking) {
	if d == nil {
		return
	}
	logger := log.Ctx(ctx)

	user, err := d.q.GetUser(ctx, booking.UserID)
	if err != nil {
		logger.Error().Err(err).
			Int64("user_id", booking.UserID).
			Msg("Failed to load user for booking confirmation")
		return
	}
	court, err := d.q.GetCourt(ctx, booking.CourtID)
	if err != nil {
		logger.Error().Err(err).
			Int64("court_id", booking.CourtID).
			Msg("Failed to load court for booking confirmation")
		return
	}

	if d.sender != nil {
		recipient := strings.TrimSpace(user.Email)
		if recipient != "" {
			subject := fmt.Sprintf("Booking confirmed: %s", court.Name)
			body := fmt.Sprintf(
				"Hi %s,\n\nYour booking on %s is confirmed.\nStart: %s\nEnd: %s\n",
				user.FullName, court.Name,
				booking.StartTime.Format(time.RFC1123),
				booking.EndTime.Format(time.RFC1123),
			)
			go func() {
				sendCtx, cancel := newSendContext(ctx)
				defer cancel()
				if err := d.sender.Send(sendCtx, recipient, subject, body); err != nil {
					log.Error().Err(err).
						Int64("booking_id", booking.ID).
						Msg("Failed to send booking confirmation email")
				}
			}()
		}
	}

	if d.publisher != nil {
		event := BookingConfirmedEvent{
			BookingID: booking.ID,
			CourtID:   booking.CourtID,
			CourtName: court.Name,
			UserID:    booking.UserID,
			StartTime: booking.StartTime,
			EndTime:   booking.EndTime,
		}
		if user.Phone.Valid {
			phone, err := NormalizePhone(user.Phone.String, d.phoneRegion)
			if err != nil {
				logger.Warn().Err(err).
					Int64("user_id", user.ID).
					Msg("Skipping unparseable phone number in event payload")
			} else {
				event.Phone = phone
			}
		}
		d.publish(ctx, KeyBookingConfirmed, event, booking.ID)
	}
}

// ClosureCreated publishes a maintenance window event for downstream
// consumers to notify affected members.
func (d *Dispatcher) ClosureCreated(ctx context.Context, window queries.MaintenanceWindow) {
	if d == nil || d.publisher == nil {
		return
	}
	event := ClosureCreatedEvent{
		WindowID:  window.ID,
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		Reason:    window.Reason,
		Emergency: window.Emergency,
	}
	if window.CourtID.Valid {
		id := window.CourtID.Int64
		event.CourtID = &id
	}
	d.publish(ctx, KeyClosureCreated, event, window.ID)
}

func (d *Dispatcher) publish(ctx context.Context, key string, event any, subjectID int64) {
	go func() {
		pubCtx, cancel := newSendContext(ctx)
		defer cancel()
		if err := d.publisher.PublishJSON(pubCtx, key, event); err != nil {
			log.Error().Err(err).
				Str("routing_key", key).
				Int64("subject_id", subjectID).
				Msg("Failed to publish booking event")
		}
	}()
}

// newSendContext detaches cancellation so handler-scoped contexts don't
// abort async deliveries.
func newSendContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	parent = context.WithoutCancel(parent)
	return context.WithTimeout(parent, sendTimeout)
}
