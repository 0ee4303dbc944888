package domain

import (
	"fmt"
	"time"
)

type NotificationKind string

const (
	NotificationBookingRequested NotificationKind = "booking-requested"
	NotificationBookingConfirmed NotificationKind = "booking-confirmed"
	NotificationBookingRejected  NotificationKind = "booking-rejected"
	NotificationBookingCancelled NotificationKind = "booking-cancelled"
)

func (k NotificationKind) IsValid() bool {
	switch k {
	case NotificationBookingRequested, NotificationBookingConfirmed,
		NotificationBookingRejected, NotificationBookingCancelled:
		return true
	}
	return false
}

// Notification is an event log entry. Only the read flag changes after
// creation, and only by the recipient.
type Notification struct {
	ID        string           `json:"id"`
	Recipient Party            `json:"recipient"`
	Sender    Party            `json:"sender"`
	Kind      NotificationKind `json:"kind"`
	BookingID string           `json:"booking_id"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

type NotificationInput struct {
	Kind      NotificationKind
	Sender    Party
	Recipient Party
	BookingID string
	Message   string
}

func (in NotificationInput) Validate() error {
	if !in.Kind.IsValid() {
		return fmt.Errorf("%w: unknown notification kind %q", ErrInvalidInput, in.Kind)
	}
	if !in.Recipient.Type.IsValid() || in.Recipient.ID == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if !in.Sender.Type.IsValid() || in.Sender.ID == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidInput)
	}
	if in.BookingID == "" {
		return fmt.Errorf("%w: booking reference is required", ErrInvalidInput)
	}
	return nil
}
